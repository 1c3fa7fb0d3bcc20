package schema

import "time"

// AttemptSummary is one benchmark invocation in a RunSummary.
type AttemptSummary struct {
	Number          int     `json:"number"`
	Command         string  `json:"command,omitempty"`
	Outcome         string  `json:"outcome"`
	ExitStatus      int     `json:"exit_status"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// RunSummary is the results.json envelope written next to the artifacts.
type RunSummary struct {
	RunID       string            `json:"run_id,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Status      int               `json:"status"`
	Class       string            `json:"class"`
	Benchmarks  []string          `json:"benchmarks"`
	Copies      int               `json:"copies"`
	SIMDTier    string            `json:"simd_tier,omitempty"`
	Command     string            `json:"command,omitempty"`
	Attempts    []AttemptSummary  `json:"attempts"`
	Degrades    []string          `json:"degrades,omitempty"`
	Metrics     map[string]string `json:"metrics"`
	Artifacts   []string          `json:"artifacts,omitempty"`
	Valid       bool              `json:"valid"`
}
