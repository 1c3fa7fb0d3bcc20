// Package launcher runs the benchmark command through a generated bash
// script that prepares the suite environment and captures the run log.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	// ScriptName is the launcher file written into the iteration dir.
	ScriptName = "specrun"
	// LogName receives the combined output of the benchmark command.
	LogName = "spec.log"

	// TimeoutStatus is reported when the run exceeds its deadline.
	TimeoutStatus = 124
)

// ErrScript marks failures to produce or start the launcher script.
var ErrScript = errors.New("launcher script unavailable")

// Result is the outcome of one launch.
type Result struct {
	ExitStatus int
	Output     string
	LogPath    string
	Duration   time.Duration
}

// Launcher executes a benchmark command line to completion.
type Launcher interface {
	Launch(ctx context.Context, command string) (Result, error)
}

// Func adapts a function to Launcher.
type Func func(ctx context.Context, command string) (Result, error)

// Launch calls f.
func (f Func) Launch(ctx context.Context, command string) (Result, error) {
	return f(ctx, command)
}

// HugePages configures libhugetlbfs preloading.
type HugePages struct {
	Enabled bool
	Lib64   string
	Lib32   string
	// Free reports HugePages_Free; preloading is skipped when it is zero.
	Free func() (int64, error)
}

// Library returns the preload library to use, or "" when huge pages are off,
// no library is installed or no huge pages are free.
func (h HugePages) Library() string {
	if !h.Enabled {
		return ""
	}
	lib := ""
	switch {
	case h.Lib64 != "" && fileExists(h.Lib64):
		lib = h.Lib64
	case h.Lib32 != "" && fileExists(h.Lib32):
		lib = h.Lib32
	default:
		log.Printf("launcher: huge pages requested but libhugetlbfs is not installed")
		return ""
	}
	if h.Free == nil {
		return ""
	}
	free, err := h.Free()
	if err != nil || free <= 0 {
		log.Printf("launcher: huge pages requested but none are free")
		return ""
	}
	return lib
}

// ScriptLauncher writes <IterationDir>/specrun and runs it with bash.
type ScriptLauncher struct {
	SuitePath    string
	IterationDir string
	HugePages    HugePages
	Timeout      time.Duration
	Shell        string
}

// Script renders the launcher for command.
func (l ScriptLauncher) Script(command string) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "export SPEC=%s\n", shellQuote(l.SuitePath))
	fmt.Fprintf(&b, "cd %s\n", shellQuote(l.SuitePath))
	b.WriteString("source shrc\n")
	b.WriteString("ulimit -s unlimited\n")
	if lib := l.HugePages.Library(); lib != "" {
		b.WriteString("export HUGETLB_MORECORE=yes\n")
		fmt.Fprintf(&b, "export LD_PRELOAD=%s\n", shellQuote(lib))
	}
	fmt.Fprintf(&b, "%s &> %s\n", command, shellQuote(l.LogPath()))
	b.WriteString("echo $?\n")
	return b.String()
}

// ScriptPath is where the launcher is written.
func (l ScriptLauncher) ScriptPath() string {
	return filepath.Join(l.IterationDir, ScriptName)
}

// LogPath is where the benchmark output is captured.
func (l ScriptLauncher) LogPath() string {
	return filepath.Join(l.IterationDir, LogName)
}

// Launch writes the script, runs it and returns the benchmark exit status
// echoed by the script together with the captured log.
func (l ScriptLauncher) Launch(ctx context.Context, command string) (Result, error) {
	result := Result{LogPath: l.LogPath()}
	if err := os.MkdirAll(l.IterationDir, 0o755); err != nil {
		return result, fmt.Errorf("%w: create iteration dir: %v", ErrScript, err)
	}
	if err := os.WriteFile(l.ScriptPath(), []byte(l.Script(command)), 0o755); err != nil {
		return result, fmt.Errorf("%w: write %s: %v", ErrScript, l.ScriptPath(), err)
	}

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	shell := l.Shell
	if shell == "" {
		shell = "bash"
	}

	log.Printf("launcher: running %s (timeout %s)", command, l.Timeout)
	start := time.Now()
	cmd := exec.CommandContext(ctx, shell, l.ScriptPath())
	// runspec and its children share the script's process group so a
	// deadline stops the whole run, not just bash.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	out, err := cmd.Output()
	result.Duration = time.Since(start)

	switch {
	case ctx.Err() != nil:
		log.Printf("launcher: run stopped after %s: %v", result.Duration.Round(time.Second), ctx.Err())
		result.ExitStatus = TimeoutStatus
	case err != nil && len(out) == 0:
		return result, fmt.Errorf("%w: run %s: %v", ErrScript, l.ScriptPath(), err)
	default:
		status, parseErr := ParseStatus(string(out))
		if parseErr != nil {
			return result, fmt.Errorf("%w: %v", ErrScript, parseErr)
		}
		result.ExitStatus = status
	}

	if data, readErr := os.ReadFile(result.LogPath); readErr == nil {
		result.Output = string(data)
	}
	return result, nil
}

// ParseStatus reads the exit status echoed on the last non-empty line.
func ParseStatus(out string) (int, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	status, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("parse exit status %q: %w", last, err)
	}
	return status, nil
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
