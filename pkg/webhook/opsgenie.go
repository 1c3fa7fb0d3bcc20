package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
)

// Opsgenie Alert API payload.
type opsgeniePayload struct {
	Message     string            `json:"message"`
	Alias       string            `json:"alias"`
	Description string            `json:"description"`
	Priority    string            `json:"priority"`
	Source      string            `json:"source"`
	Tags        []string          `json:"tags"`
	Details     map[string]string `json:"details"`
	Entity      string            `json:"entity"`
}

var opsgeniePriorities = map[string]string{
	"ok":                      "P5",
	"configuration_invalid":   "P4",
	"environment_unavailable": "P3",
	"invocation_failed":       "P2",
	"results_unparseable":     "P2",
}

// BuildOpsgeniePayload formats a RunSummary as an Opsgenie alert.
func BuildOpsgeniePayload(summary schema.RunSummary) ([]byte, error) {
	priority, ok := opsgeniePriorities[summary.Class]
	if !ok {
		priority = "P1"
	}

	benchmarks := strings.Join(summary.Benchmarks, " ")
	payload := opsgeniePayload{
		Message:     fmt.Sprintf("[%s] benchmark run %s", benchmarks, summary.Class),
		Alias:       summary.RunID,
		Description: fmt.Sprintf("Status: %d\nCopies: %d\nAttempts: %d\nDegrades: %s\nCommand: %s", summary.Status, summary.Copies, len(summary.Attempts), strings.Join(summary.Degrades, ", "), summary.Command),
		Priority:    priority,
		Source:      "spec-cpu-harness",
		Tags:        append([]string{"spec-cpu", summary.Class}, summary.Benchmarks...),
		Details: map[string]string{
			"run_id":    summary.RunID,
			"status":    fmt.Sprintf("%d", summary.Status),
			"class":     summary.Class,
			"copies":    fmt.Sprintf("%d", summary.Copies),
			"simd_tier": summary.SIMDTier,
		},
		Entity: benchmarks,
	}

	return json.Marshal(payload)
}
