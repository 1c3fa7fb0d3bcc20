package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
)

const (
	SummaryFile = "results.json"
	ReportFile  = "report.md"
)

// WriteBundle validates summary and writes results.json and report.md into dir.
func WriteBundle(dir string, summary schema.RunSummary) error {
	if err := schema.ValidateRunSummary(summary); err != nil {
		return fmt.Errorf("validate run summary: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, SummaryFile), summary); err != nil {
		return err
	}
	return writeReportMarkdown(filepath.Join(dir, ReportFile), summary)
}

// LoadSummary reads the results.json written into dir by an earlier pass.
func LoadSummary(dir string) (schema.RunSummary, error) {
	var summary schema.RunSummary
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return summary, fmt.Errorf("read run summary: %w", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return summary, fmt.Errorf("decode run summary: %w", err)
	}
	return summary, nil
}

func writeJSON(path string, payload interface{}) error {
	bytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, bytes, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

func writeReportMarkdown(path string, summary schema.RunSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b,
		"# Benchmark Run Report\n\n"+
			"- Run ID: `%s`\n"+
			"- Status: `%d` (%s)\n"+
			"- Benchmarks: `%s`\n"+
			"- Copies: `%d`\n"+
			"- SIMD tier: `%s`\n"+
			"- Valid: `%t`\n\n",
		summary.RunID,
		summary.Status,
		summary.Class,
		strings.Join(summary.Benchmarks, " "),
		summary.Copies,
		orNone(summary.SIMDTier),
		summary.Valid,
	)

	b.WriteString("## Attempts\n\n")
	b.WriteString("| # | Outcome | Exit status | Duration (s) |\n|---|---|---|---|\n")
	for _, attempt := range summary.Attempts {
		fmt.Fprintf(&b, "| %d | %s | %d | %.0f |\n", attempt.Number, attempt.Outcome, attempt.ExitStatus, attempt.DurationSeconds)
	}
	if len(summary.Degrades) > 0 {
		fmt.Fprintf(&b, "\nDegrades: `%s`\n", strings.Join(summary.Degrades, ", "))
	}

	scores := scoreKeys(summary.Metrics)
	if len(scores) > 0 {
		b.WriteString("\n## Results\n\n| Metric | Value |\n|---|---|\n")
		for _, key := range scores {
			fmt.Fprintf(&b, "| `%s` | %s |\n", key, summary.Metrics[key])
		}
	}

	if len(summary.Artifacts) > 0 {
		b.WriteString("\n## Bundle\n\n")
		for _, artifact := range summary.Artifacts {
			fmt.Fprintf(&b, "- `%s`\n", filepath.Base(artifact))
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write report markdown: %w", err)
	}
	return nil
}

func scoreKeys(metrics map[string]string) []string {
	var keys []string
	for key := range metrics {
		if strings.HasPrefix(key, "base_") || strings.HasPrefix(key, "peak_") || strings.HasPrefix(key, "SPEC") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
