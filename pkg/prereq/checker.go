package prereq

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/hostinfo"
)

const (
	severityBlocker = "blocker"
	severityWarning = "warning"
)

// Exit statuses attached to failing blocker checks.
const (
	ExitSuiteMissing      = 1
	ExitConfigNotWritable = 2
	ExitInsufficientDisk  = 9
)

// CheckResult is one prerequisite evaluation row.
type CheckResult struct {
	Name        string `json:"name"`
	Pass        bool   `json:"pass"`
	Severity    string `json:"severity"`
	Current     string `json:"current"`
	Required    string `json:"required"`
	Remediation string `json:"remediation"`
	ExitCode    int    `json:"exit_code,omitempty"`
}

// Report is the full prereq check result.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	HostOS      string        `json:"host_os"`
	HostArch    string        `json:"host_arch"`
	SuitePath   string        `json:"suite_path"`
	Checks      []CheckResult `json:"checks"`
	Pass        bool          `json:"pass"`
}

// Snapshot captures host facts before evaluation.
type Snapshot struct {
	HostOS            string
	HostArch          string
	SuitePath         string
	SuiteInstalled    bool
	ConfigDirWritable bool
	DiskCheck         bool
	FreeDiskMB        int64
	RequiredDiskMB    int64
	DiskProbeErr      error
	HasBash           bool
	HasNumactl        bool
}

// Inputs selects what CollectSnapshot probes.
type Inputs struct {
	SuitePath string
	// DiskCheck enables the free space check under <suite>/benchspec.
	DiskCheck      bool
	RequiredDiskMB int64
}

// CollectSnapshot gathers host facts for the suite at in.SuitePath.
func CollectSnapshot(in Inputs, prober hostinfo.Prober) Snapshot {
	snapshot := Snapshot{
		HostOS:            runtime.GOOS,
		HostArch:          runtime.GOARCH,
		SuitePath:         in.SuitePath,
		SuiteInstalled:    isDir(filepath.Join(in.SuitePath, "config")),
		ConfigDirWritable: dirWritable(filepath.Join(in.SuitePath, "config")),
		DiskCheck:         in.DiskCheck,
		RequiredDiskMB:    in.RequiredDiskMB,
		HasBash:           hasBinary("bash"),
		HasNumactl:        hasBinary("numactl"),
	}
	if in.DiskCheck && prober != nil {
		snapshot.FreeDiskMB, snapshot.DiskProbeErr = prober.FreeDiskMB(filepath.Join(in.SuitePath, "benchspec"))
	}
	return snapshot
}

// Evaluate returns a report with pass/fail checks.
func Evaluate(snapshot Snapshot) Report {
	checks := []CheckResult{
		{
			Name:        "suite_installed",
			Pass:        snapshot.SuiteInstalled,
			Severity:    severityBlocker,
			Current:     boolLabel(snapshot.SuiteInstalled),
			Required:    "true",
			Remediation: fmt.Sprintf("Install the benchmark suite so that %s/config exists, or set suite.path.", snapshot.SuitePath),
			ExitCode:    ExitSuiteMissing,
		},
		{
			Name:        "config_dir_writable",
			Pass:        snapshot.ConfigDirWritable,
			Severity:    severityBlocker,
			Current:     boolLabel(snapshot.ConfigDirWritable),
			Required:    "true",
			Remediation: "Run as a user that can write the suite config directory.",
			ExitCode:    ExitConfigNotWritable,
		},
		buildDiskCheck(snapshot),
		{
			Name:        "bash_installed",
			Pass:        snapshot.HasBash,
			Severity:    severityWarning,
			Current:     boolLabel(snapshot.HasBash),
			Required:    "true",
			Remediation: "Install bash; the run launcher is a bash script.",
		},
		{
			Name:        "numactl_installed",
			Pass:        snapshot.HasNumactl,
			Severity:    severityWarning,
			Current:     boolLabel(snapshot.HasNumactl),
			Required:    "true",
			Remediation: "Install numactl to allow interleaved memory allocation on NUMA hosts.",
		},
	}

	pass := true
	for _, check := range checks {
		if check.Severity == severityBlocker && !check.Pass {
			pass = false
			break
		}
	}

	return Report{
		GeneratedAt: time.Now().UTC(),
		HostOS:      snapshot.HostOS,
		HostArch:    snapshot.HostArch,
		SuitePath:   snapshot.SuitePath,
		Checks:      checks,
		Pass:        pass,
	}
}

// RunLocal executes prereq evaluation on the current host.
func RunLocal(in Inputs) Report {
	return Evaluate(CollectSnapshot(in, hostinfo.System{}))
}

// FirstBlocker returns the first failing blocker check in evaluation order.
func FirstBlocker(report Report) (CheckResult, bool) {
	for _, check := range report.Checks {
		if check.Severity == severityBlocker && !check.Pass {
			return check, true
		}
	}
	return CheckResult{}, false
}

// StrictPass returns true only if all checks pass, including warnings.
func StrictPass(report Report) bool {
	for _, check := range report.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// MarshalJSON returns pretty JSON for external reporting.
func MarshalJSON(report Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

func buildDiskCheck(snapshot Snapshot) CheckResult {
	check := CheckResult{
		Name:        "disk_space",
		Severity:    severityBlocker,
		Required:    fmt.Sprintf(">=%d MB", snapshot.RequiredDiskMB),
		Remediation: "Free space under the suite benchspec directory or lower the copy count.",
		ExitCode:    ExitInsufficientDisk,
	}
	switch {
	case !snapshot.DiskCheck:
		check.Pass = true
		check.Current = "skipped"
	case snapshot.DiskProbeErr != nil:
		check.Current = snapshot.DiskProbeErr.Error()
	default:
		check.Pass = snapshot.FreeDiskMB >= snapshot.RequiredDiskMB
		check.Current = fmt.Sprintf("%d MB", snapshot.FreeDiskMB)
	}
	return check
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func dirWritable(path string) bool {
	if !isDir(path) {
		return false
	}
	probe, err := os.CreateTemp(path, ".harness-write-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return true
}

func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
