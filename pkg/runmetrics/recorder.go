// Package runmetrics exposes run-level Prometheus metrics and writes them in
// the node-exporter textfile format once a run finishes.
package runmetrics

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var scoreKeyPattern = regexp.MustCompile(`^(base|peak)_(rate|ratio|run_time)([0-9]+)_(.+)$`)

// Recorder holds the registry of one harness process.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	degrades        *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	copies          prometheus.Gauge
	exitStatus      prometheus.Gauge
	lastRun         prometheus.Gauge
	tier            *prometheus.GaugeVec
	scores          *prometheus.GaugeVec
}

// New registers the harness metrics on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spec_harness_attempts_total",
			Help: "Benchmark invocations by outcome.",
		}, []string{"outcome"}),
		degrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spec_harness_degrades_total",
			Help: "Degrade-and-retry transitions by kind.",
		}, []string{"kind"}),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spec_harness_attempt_duration_seconds",
			Help:    "Wall time of one benchmark invocation.",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 57600, 115200, 259200},
		}),
		copies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spec_harness_copies",
			Help: "Resolved number of concurrent benchmark copies.",
		}),
		exitStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spec_harness_exit_status",
			Help: "Final harness exit status.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spec_harness_last_run_timestamp_seconds",
			Help: "Unix timestamp of the latest finished run.",
		}),
		tier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spec_harness_simd_tier",
			Help: "Selected instruction tier (one-hot gauge).",
		}, []string{"tier"}),
		scores: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spec_harness_benchmark_result",
			Help: "Per-benchmark results by tuning, metric and iteration.",
		}, []string{"benchmark", "tuning", "metric", "iteration"}),
	}

	registry.MustRegister(
		r.attempts,
		r.degrades,
		r.attemptDuration,
		r.copies,
		r.exitStatus,
		r.lastRun,
		r.tier,
		r.scores,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attempt counts one invocation.
func (r *Recorder) Attempt(outcome string, d time.Duration) {
	r.attempts.WithLabelValues(outcome).Inc()
	r.attemptDuration.Observe(d.Seconds())
}

// Degrade counts one degrade transition.
func (r *Recorder) Degrade(kind string) {
	r.degrades.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetCopies(n int) {
	r.copies.Set(float64(n))
}

// SetTier marks selected among all known tiers.
func (r *Recorder) SetTier(selected string, all []string) {
	for _, name := range all {
		v := 0.0
		if name == selected {
			v = 1
		}
		r.tier.WithLabelValues(name).Set(v)
	}
}

// Finish records the exit status and the completion time.
func (r *Recorder) Finish(status int, at time.Time) {
	r.exitStatus.Set(float64(status))
	r.lastRun.Set(float64(at.UTC().Unix()))
}

// ObserveResults exports every numeric per-benchmark metric among pairs and
// returns how many were exported.
func (r *Recorder) ObserveResults(pairs [][2]string) int {
	n := 0
	for _, kv := range pairs {
		match := scoreKeyPattern.FindStringSubmatch(kv[0])
		if match == nil {
			continue
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			continue
		}
		r.scores.WithLabelValues(match[4], match[1], match[2], match[3]).Set(v)
		n++
	}
	return n
}

// WriteTextfile writes the registry to path for a textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
