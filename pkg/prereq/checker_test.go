package prereq

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeProber struct {
	freeMB int64
	err    error
	path   string
}

func (f *fakeProber) NUMAAvailable(context.Context) bool { return false }

func (f *fakeProber) FreeDiskMB(path string) (int64, error) {
	f.path = path
	return f.freeMB, f.err
}

func TestEvaluateBlockers(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		pass     bool
		exitCode int
	}{
		{
			name:     "suite missing",
			snapshot: Snapshot{SuitePath: "/opt/cpu2006"},
			exitCode: ExitSuiteMissing,
		},
		{
			name:     "config read only",
			snapshot: Snapshot{SuiteInstalled: true},
			exitCode: ExitConfigNotWritable,
		},
		{
			name:     "not enough disk",
			snapshot: Snapshot{SuiteInstalled: true, ConfigDirWritable: true, DiskCheck: true, FreeDiskMB: 1000, RequiredDiskMB: 4096},
			exitCode: ExitInsufficientDisk,
		},
		{
			name:     "disk probe failed",
			snapshot: Snapshot{SuiteInstalled: true, ConfigDirWritable: true, DiskCheck: true, DiskProbeErr: errors.New("statfs failed")},
			exitCode: ExitInsufficientDisk,
		},
		{
			name:     "disk check skipped",
			snapshot: Snapshot{SuiteInstalled: true, ConfigDirWritable: true, FreeDiskMB: 0, RequiredDiskMB: 4096},
			pass:     true,
		},
		{
			name:     "enough disk",
			snapshot: Snapshot{SuiteInstalled: true, ConfigDirWritable: true, DiskCheck: true, FreeDiskMB: 8192, RequiredDiskMB: 4096},
			pass:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Evaluate(tt.snapshot)
			if report.Pass != tt.pass {
				t.Fatalf("expected pass=%v, got %v", tt.pass, report.Pass)
			}
			blocker, found := FirstBlocker(report)
			if tt.pass {
				if found {
					t.Fatalf("unexpected blocker %s", blocker.Name)
				}
				return
			}
			if !found || blocker.ExitCode != tt.exitCode {
				t.Fatalf("expected exit code %d, got %+v", tt.exitCode, blocker)
			}
		})
	}
}

func TestCollectSnapshot(t *testing.T) {
	suite := t.TempDir()
	if err := os.MkdirAll(filepath.Join(suite, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	prober := &fakeProber{freeMB: 10240}

	snapshot := CollectSnapshot(Inputs{SuitePath: suite, DiskCheck: true, RequiredDiskMB: 2048}, prober)
	if !snapshot.SuiteInstalled || !snapshot.ConfigDirWritable {
		t.Fatalf("expected installed writable suite, got %+v", snapshot)
	}
	if prober.path != filepath.Join(suite, "benchspec") {
		t.Fatalf("disk probed at %q", prober.path)
	}
	if !Evaluate(snapshot).Pass {
		t.Fatalf("expected passing report")
	}

	entries, err := os.ReadDir(filepath.Join(suite, "config"))
	if err != nil {
		t.Fatalf("read config dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("write probe left files behind: %v", entries)
	}
}

func TestCollectSnapshotMissingSuite(t *testing.T) {
	prober := &fakeProber{}
	snapshot := CollectSnapshot(Inputs{SuitePath: filepath.Join(t.TempDir(), "absent")}, prober)
	if snapshot.SuiteInstalled || snapshot.ConfigDirWritable {
		t.Fatalf("expected missing suite, got %+v", snapshot)
	}
	if prober.path != "" {
		t.Fatalf("disk must not be probed when the check is disabled")
	}
}

func TestStrictPass(t *testing.T) {
	report := Report{
		Checks: []CheckResult{
			{Name: "blocker_ok", Pass: true, Severity: severityBlocker},
			{Name: "warning_failed", Pass: false, Severity: severityWarning},
		},
		Pass: true,
	}

	if StrictPass(report) {
		t.Fatalf("strict pass should fail when warning check fails")
	}
}
