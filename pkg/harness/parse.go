package harness

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/artifacts"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/macros"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/marker"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/report"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/selection"
)

// ParseResult is what a parse pass produced.
type ParseResult struct {
	Metrics   *report.Metrics
	Files     report.OutputFiles
	Artifacts []string
	Summary   schema.RunSummary
}

// Parse reduces the CSV reports of the last run into metrics, saves the
// requested report files and purges the rest of the benchmark output.
func (h *Harness) Parse(ctx context.Context) (ParseResult, error) {
	ctx, span := h.tracer().Start(ctx, "harness.parse")
	defer span.End()

	var out ParseResult
	files, err := report.ValidateLog(h.LogPath())
	out.Files = files
	if err != nil {
		return out, fmt.Errorf("locate results: %w", err)
	}

	benchmarks, _ := selection.Benchmarks(h.Store.Param("benchmark"), h.Config.Benchmarks)
	formats, _ := h.outputFormats()
	m := h.initialMetrics(ctx, benchmarks, formats)

	reducer, err := report.ReduceCSVFiles(files["csv"], m, report.OptionsFromStore(h.Store))
	if err != nil {
		return out, fmt.Errorf("reduce results: %w", err)
	}
	if h.markers().Exists(marker.SSESkip) {
		m.Delete("sse")
	}
	out.Metrics = m
	log.Printf("harness: parsed %d iteration(s), aggregate=%t", reducer.Iterations(), reducer.HasAggregate())

	out.Artifacts, err = artifacts.Collect(h.ArtifactsDir(), artifacts.Select(formats, files))
	if err != nil {
		log.Printf("harness: %v", err)
	}
	logText, err := os.ReadFile(h.LogPath())
	if err != nil {
		log.Printf("harness: read run log: %v", err)
	}
	if err := artifacts.Purge(h.SuitePath(), h.IterationDir(), string(logText), files, h.Store.Param("purge_output") == "0"); err != nil {
		log.Printf("harness: purge output: %v", err)
	}

	out.Summary = h.parseSummary(benchmarks, m, out.Artifacts)
	if err := artifacts.WriteBundle(h.ArtifactsDir(), out.Summary); err != nil {
		log.Printf("harness: unable to write run summary: %v", err)
	}
	h.Recorder.ObserveResults(m.Emitted())
	h.finish(out.Summary.Status)
	h.deliver(ctx, out.Summary)
	return out, nil
}

func (h *Harness) initialMetrics(ctx context.Context, benchmarks []string, formats []string) *report.Metrics {
	set := h.MacroResolver().Resolve(ctx)
	config, err := selection.ConfigFile(h.Store.ParamOrDefault("config", h.Config.Run.DefaultConfigFile), filepath.Join(h.SuitePath(), "config"))
	if err != nil {
		log.Printf("harness: %v", err)
	}

	m := report.NewMetrics()
	m.Set("benchmarks", report.String(strings.Join(benchmarks, " ")))
	m.Set("config", report.String(config))
	m.Set("copies", report.Null())
	m.Set("flagsurl", report.String(h.Store.Param("flagsurl")))
	m.Set("iterations", report.Null())
	m.Set("numa", macroValue(set.Get(macros.NameNUMA)))
	m.Set("output_format", report.String(strings.Join(formats, ",")))
	m.Set("size", report.String(h.Store.ParamOrDefault("size", "ref")))
	m.Set("sse", macroValue(set.Get(macros.NameSSE)))
	m.Set("tune", report.Null())
	m.Set("valid", report.Bool(false))
	m.Set("x64", macroValue(set.Get(macros.NameX64)))
	return m
}

func macroValue(v macros.Value) report.Value {
	switch v.Kind {
	case macros.True:
		return report.Bool(true)
	case macros.Text:
		return report.String(v.Text)
	}
	return report.Null()
}

// parseSummary extends the summary left by the run pass, or starts a fresh
// one when the run was driven by something else.
func (h *Harness) parseSummary(benchmarks []string, m *report.Metrics, saved []string) schema.RunSummary {
	at := h.now().UTC()
	summary, err := artifacts.LoadSummary(h.ArtifactsDir())
	if err != nil {
		n, cerr := h.CopyResolver().Copies()
		if cerr != nil || n < 1 {
			n = 1
		}
		summary = schema.RunSummary{
			RunID:      "run-" + at.Format("20060102T150405Z"),
			Class:      string(ClassOK),
			Benchmarks: benchmarks,
			Copies:     n,
			Attempts:   []schema.AttemptSummary{},
		}
	}
	summary.GeneratedAt = at
	summary.Metrics = make(map[string]string, m.Len())
	for _, kv := range m.Emitted() {
		summary.Metrics[kv[0]] = kv[1]
	}
	summary.Valid = m.Text("valid") == "1"
	summary.Artifacts = saved
	return summary
}
