package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
)

// PagerDuty Events API v2 payload.
type pagerDutyPayload struct {
	RoutingKey  string         `json:"routing_key"`
	EventAction string         `json:"event_action"`
	DedupKey    string         `json:"dedup_key,omitempty"`
	Payload     pdEventPayload `json:"payload"`
}

type pdEventPayload struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	Timestamp     string            `json:"timestamp"`
	Component     string            `json:"component"`
	Group         string            `json:"group"`
	CustomDetails map[string]string `json:"custom_details"`
}

// BuildPagerDutyPayload formats a RunSummary as a PagerDuty Events v2
// trigger. Successful runs resolve the run's dedup key instead.
func BuildPagerDutyPayload(summary schema.RunSummary) ([]byte, error) {
	action := "trigger"
	severity := "error"
	switch {
	case summary.Status == 0:
		action = "resolve"
		severity = "info"
	case summary.Class == "configuration_invalid":
		severity = "warning"
	}

	payload := pagerDutyPayload{
		EventAction: action,
		DedupKey:    summary.RunID,
		Payload: pdEventPayload{
			Summary:   fmt.Sprintf("[%s] benchmark run %s (status=%d)", strings.Join(summary.Benchmarks, " "), summary.Class, summary.Status),
			Source:    "spec-cpu-harness",
			Severity:  severity,
			Timestamp: summary.GeneratedAt.Format("2006-01-02T15:04:05.000+0000"),
			Component: strings.Join(summary.Benchmarks, ","),
			Group:     summary.SIMDTier,
			CustomDetails: map[string]string{
				"run_id":   summary.RunID,
				"class":    summary.Class,
				"copies":   fmt.Sprintf("%d", summary.Copies),
				"attempts": fmt.Sprintf("%d", len(summary.Attempts)),
				"degrades": strings.Join(summary.Degrades, ", "),
				"command":  summary.Command,
			},
		},
	}

	return json.Marshal(payload)
}
