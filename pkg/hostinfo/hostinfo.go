// Package hostinfo answers the questions the harness asks about the host:
// CPU and memory totals, NUMA support, free disk space, huge pages and
// whether the benchmark suite was patched to quote macro values.
package hostinfo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// MeminfoPath is the Linux memory statistics file.
const MeminfoPath = "/proc/meminfo"

var utilPatchedPattern = regexp.MustCompile(`(?sU)"'\.\$macros->\{\$macro\}\.'"'`)

// Prober is implemented by System and by test fakes.
type Prober interface {
	NUMAAvailable(ctx context.Context) bool
	FreeDiskMB(path string) (int64, error)
}

// System probes the running host.
type System struct {
	MeminfoPath string
}

// NUMAAvailable reports whether numactl is installed and exits cleanly.
func (s System) NUMAAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("numactl"); err != nil {
		return false
	}
	return exec.CommandContext(ctx, "numactl", "--show").Run() == nil
}

// FreeDiskMB returns the free space, in megabytes, of the filesystem holding path.
func (s System) FreeDiskMB(path string) (int64, error) {
	return freeDiskMB(path)
}

// MemTotalKB returns MemTotal from the meminfo file.
func (s System) MemTotalKB() (int64, error) {
	return readMeminfoField(s.meminfo(), "MemTotal")
}

// HugePagesFree returns HugePages_Free from the meminfo file.
func (s System) HugePagesFree() (int64, error) {
	return readMeminfoField(s.meminfo(), "HugePages_Free")
}

// CPUCount returns the number of logical CPUs usable by this process.
func (s System) CPUCount() int {
	return runtime.NumCPU()
}

// Is64Bit reports whether the process runs on a 64-bit architecture.
func (s System) Is64Bit() bool {
	return strconv.IntSize == 64
}

func (s System) meminfo() string {
	if s.MeminfoPath != "" {
		return s.MeminfoPath
	}
	return MeminfoPath
}

func readMeminfoField(path string, field string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open meminfo: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(key) != field {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return 0, fmt.Errorf("meminfo field %s has no value", field)
		}
		v, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse meminfo field %s: %w", field, err)
		}
		return v, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan meminfo: %w", err)
	}
	return 0, fmt.Errorf("meminfo field %s not found", field)
}

// UtilPatched reports whether the suite's bin/util.pl quotes macro values,
// which is required to pass values containing spaces, dashes or periods.
func UtilPatched(suitePath string) bool {
	data, err := os.ReadFile(filepath.Join(suitePath, "bin", "util.pl"))
	if err != nil {
		return false
	}
	return utilPatchedPattern.Match(data)
}
