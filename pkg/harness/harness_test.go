package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/artifacts"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harnesscfg"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/launcher"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/marker"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
)

type fakeProber struct {
	numa   bool
	freeMB int64
}

func (f fakeProber) NUMAAvailable(context.Context) bool { return f.numa }

func (f fakeProber) FreeDiskMB(string) (int64, error) { return f.freeMB, nil }

func newSuite(t *testing.T) string {
	t.Helper()
	suite := t.TempDir()
	for _, dir := range []string{"config", "benchspec/CPU2006/401.bzip2/run"} {
		if err := os.MkdirAll(filepath.Join(suite, dir), 0o755); err != nil {
			t.Fatalf("create suite dir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(suite, "config", "default.cfg"), []byte("# default\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return suite
}

func newTestHarness(t *testing.T, env map[string]string) *Harness {
	t.Helper()
	iter := t.TempDir()
	values := map[string]string{
		"bm_param_spec_dir": newSuite(t),
		"bm_iteration_dir":  iter,
		"bm_run_dir":        iter,
		"bm_cpu_count":      "4",
		"bm_memory_total":   "8388608",
	}
	for k, v := range env {
		values[k] = v
	}
	h := New(harnesscfg.Default(), params.FromMap(values))
	h.Prober = fakeProber{freeMB: 1 << 20}
	h.SIMDProbe = func() string { return "SSE4.2" }
	h.Markers = marker.NewMemoryStore()
	return h
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		code int
		want Class
	}{
		{0, ClassOK},
		{1, ClassEnvironmentUnavailable},
		{2, ClassEnvironmentUnavailable},
		{3, ClassConfigurationInvalid},
		{8, ClassConfigurationInvalid},
		{9, ClassEnvironmentUnavailable},
		{10, ClassInvocationFailed},
		{11, ClassResultsUnparseable},
		{12, ClassUnknown},
		{124, ClassUnknown},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.code); got != tt.want {
			t.Fatalf("ClassOf(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitOK {
		t.Fatalf("nil error must exit 0")
	}
	wrapped := errors.Join(errors.New("context"), fail(ExitTune, errors.New("bad tune")))
	if ExitCode(wrapped) != ExitTune {
		t.Fatalf("expected wrapped tune error to exit %d", ExitTune)
	}
	if ExitCode(errors.New("boom")) != ExitUnknown {
		t.Fatalf("unclassified errors must exit %d", ExitUnknown)
	}
}

func TestValidateLadder(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		free int64
		want int
	}{
		{name: "suite missing", env: map[string]string{"bm_param_spec_dir": "/nonexistent/cpu2006"}, want: ExitSuiteMissing},
		{name: "no benchmarks", env: map[string]string{"bm_param_benchmark": "999.nothing"}, want: ExitNoBenchmarks},
		{name: "copies", env: map[string]string{"bm_param_copies": "|"}, want: ExitCopies},
		{name: "config file", env: map[string]string{"bm_param_config": "/nonexistent/custom.cfg"}, want: ExitConfigFile},
		{name: "output formats", env: map[string]string{"bm_param_output_format": "bogus"}, want: ExitOutputFormats},
		{name: "size", env: map[string]string{"bm_param_size": "huge"}, want: ExitSize},
		{name: "tune", env: map[string]string{"bm_param_tune": "fast"}, want: ExitTune},
		{name: "disk", env: map[string]string{"bm_param_validate_disk_space": "1"}, free: 10, want: ExitInsufficientDisk},
		{name: "disk not validated", env: map[string]string{}, free: 10, want: ExitOK},
		{name: "valid", env: map[string]string{"bm_param_benchmark": "bzip2 mcf", "bm_param_size": "test"}, want: ExitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t, tt.env)
			if tt.free > 0 {
				h.Prober = fakeProber{freeMB: tt.free}
			}
			_, err := h.Validate(context.Background())
			if got := ExitCode(err); got != tt.want {
				t.Fatalf("expected exit %d, got %d (%v)", tt.want, got, err)
			}
			if err != nil {
				var herr *Error
				if !errors.As(err, &herr) || herr.Class != ClassOf(tt.want) {
					t.Fatalf("expected classified error, got %#v", err)
				}
			}
		})
	}
}

func TestValidatePlan(t *testing.T) {
	h := newTestHarness(t, map[string]string{
		"bm_param_benchmark":     "bzip2 nothing 429",
		"bm_param_output_format": "html,bogus,html",
	})
	plan, err := h.Validate(context.Background())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if strings.Join(plan.Benchmarks, " ") != "401.bzip2 429.mcf" {
		t.Fatalf("unexpected benchmarks %v", plan.Benchmarks)
	}
	// 100%/1GB on 4 cpus and 8 GB picks the lower term.
	if plan.Copies != 4 {
		t.Fatalf("expected 4 copies, got %d", plan.Copies)
	}
	if len(plan.OutputFormats) != 1 || plan.OutputFormats[0] != "html" {
		t.Fatalf("unexpected formats %v", plan.OutputFormats)
	}
	if plan.ConfigFile != "default.cfg" {
		t.Fatalf("unexpected config %s", plan.ConfigFile)
	}
}

func TestCommandFromPlan(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom.cfg")
	if err := os.WriteFile(custom, []byte("# custom\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	h := newTestHarness(t, map[string]string{
		"bm_param_benchmark":  "401",
		"bm_param_config":     custom,
		"bm_param_size":       "test",
		"bm_param_delay":      "5",
		"bm_param_iterations": "3",
		"bm_param_review":     "yes",
		"bm_param_comment":    "nightly",
	})
	plan, err := h.Validate(context.Background())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(plan.SuitePath, "config", "custom.cfg")); err != nil {
		t.Fatalf("config must be copied into the suite: %v", err)
	}

	got := h.Command(plan).String()
	for _, want := range []string{
		"runspec --noreportable --config=custom.cfg",
		`--output_format="default,csv"`,
		`--comment="nightly"`,
		"--delay=5",
		"--nobuild",
		"--rate 4",
		"--size=test",
		"--tune=base",
		"--define rate=4 401.bzip2",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("command %q missing %q", got, want)
		}
	}
	for _, unwanted := range []string{"--iterations", "--review"} {
		if strings.Contains(got, unwanted) {
			t.Fatalf("command %q must not contain %q", got, unwanted)
		}
	}
}

func TestRunDegradesOnceAndClassifiesFailure(t *testing.T) {
	h := newTestHarness(t, map[string]string{
		"bm_param_benchmark":       "401.bzip2",
		"bm_param_failover_no_sse": "1",
	})
	var commands []string
	h.Launcher = launcher.Func(func(_ context.Context, command string) (launcher.Result, error) {
		commands = append(commands, command)
		return launcher.Result{ExitStatus: 2}, nil
	})

	out, err := h.Run(context.Background())
	if ExitCode(err) != ExitInvocationFailed {
		t.Fatalf("expected exit %d, got %v", ExitInvocationFailed, err)
	}
	if len(commands) != 2 {
		t.Fatalf("expected one retry, got %d attempts", len(commands))
	}
	if !strings.Contains(commands[0], "--define sse=\"SSE4.2\"") || strings.Contains(commands[1], "sse=") {
		t.Fatalf("second attempt must drop the sse define: %q", commands)
	}
	if !h.Markers.Exists(marker.SSESkip) {
		t.Fatalf("sse skip marker must be created")
	}

	summary, err := artifacts.LoadSummary(h.ArtifactsDir())
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if summary.Status != ExitInvocationFailed || summary.Class != string(ClassInvocationFailed) {
		t.Fatalf("unexpected summary status %d/%s", summary.Status, summary.Class)
	}
	if len(summary.Attempts) != 2 || len(summary.Degrades) != 1 || summary.Degrades[0] != "sse_degrade" {
		t.Fatalf("unexpected attempts %+v degrades %v", summary.Attempts, summary.Degrades)
	}
	if out.Status() != ExitInvocationFailed {
		t.Fatalf("unexpected result status %d", out.Status())
	}
}

func TestRunWithoutResultsIsUnparseable(t *testing.T) {
	h := newTestHarness(t, map[string]string{"bm_param_benchmark": "401.bzip2"})
	h.Launcher = launcher.Func(func(context.Context, string) (launcher.Result, error) {
		if err := os.WriteFile(h.LogPath(), []byte("runspec finished\n"), 0o644); err != nil {
			return launcher.Result{}, err
		}
		return launcher.Result{LogPath: h.LogPath()}, nil
	})

	_, err := h.Run(context.Background())
	if ExitCode(err) != ExitResultsUnparseable {
		t.Fatalf("expected exit %d, got %v", ExitResultsUnparseable, err)
	}
}

func TestRunLauncherErrorIsUnknown(t *testing.T) {
	h := newTestHarness(t, map[string]string{"bm_param_benchmark": "401.bzip2"})
	h.Launcher = launcher.Func(func(context.Context, string) (launcher.Result, error) {
		return launcher.Result{}, launcher.ErrScript
	})

	_, err := h.Run(context.Background())
	if ExitCode(err) != ExitUnknown || !errors.Is(err, launcher.ErrScript) {
		t.Fatalf("expected unknown launcher failure, got %v", err)
	}
}

func TestParseWithoutLog(t *testing.T) {
	h := newTestHarness(t, nil)
	if _, err := h.Parse(context.Background()); err == nil {
		t.Fatalf("expected error without a run log")
	}
}
