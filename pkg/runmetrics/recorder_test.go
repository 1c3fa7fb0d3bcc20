package runmetrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecorderTextfile(t *testing.T) {
	r := New()
	r.Attempt("process_failed", 90*time.Second)
	r.Attempt("success", 30*time.Minute)
	r.Degrade("sse")
	r.SetCopies(4)
	r.SetTier("SSE4.2", []string{"SSE4.2", "AVX"})
	r.Finish(0, time.Unix(1700000000, 0))
	exported := r.ObserveResults([][2]string{
		{"base_rate1_401.bzip2", "24.1"},
		{"peak_ratio2_470.lbm", "28.6"},
		{"base_selected1_401.bzip2", "1"},
		{"benchmarks", "401.bzip2"},
		{"base_rate1_429.mcf", "n/a"},
	})
	if exported != 2 {
		t.Fatalf("expected 2 exported results, got %d", exported)
	}

	path := filepath.Join(t.TempDir(), "spec_harness.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(raw)

	for _, want := range []string{
		`spec_harness_attempts_total{outcome="process_failed"} 1`,
		`spec_harness_attempts_total{outcome="success"} 1`,
		`spec_harness_degrades_total{kind="sse"} 1`,
		`spec_harness_copies 4`,
		`spec_harness_simd_tier{tier="AVX"} 0`,
		`spec_harness_simd_tier{tier="SSE4.2"} 1`,
		`spec_harness_exit_status 0`,
		`spec_harness_attempt_duration_seconds_count 2`,
		`spec_harness_benchmark_result{benchmark="401.bzip2",iteration="1",metric="rate",tuning="base"} 24.1`,
		`spec_harness_benchmark_result{benchmark="470.lbm",iteration="2",metric="ratio",tuning="peak"} 28.6`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("textfile missing %q:\n%s", want, text)
		}
	}
}
