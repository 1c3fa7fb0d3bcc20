package harness

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/artifacts"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/invoke"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/launcher"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/macros"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/report"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/schema"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/simd"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/telemetry"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/webhook"
)

// RunResult is what a run pass leaves behind.
type RunResult struct {
	Plan       Plan
	Invocation invoke.Result
	Summary    schema.RunSummary
}

// Status is the exit status of the run.
func (r RunResult) Status() int {
	return r.Summary.Status
}

// Run validates the request and invokes the benchmark tool, degrading on
// failure as the failover parameters allow. A non-nil error is always an
// *Error carrying the exit status.
func (h *Harness) Run(ctx context.Context) (RunResult, error) {
	ctx, span := h.tracer().Start(ctx, "harness.run")
	defer span.End()

	var out RunResult
	plan, err := h.Validate(ctx)
	out.Plan = plan
	if err != nil {
		log.Printf("harness: run validation failed: %v", err)
		out.Summary.Status = ExitCode(err)
		h.finish(out.Summary.Status)
		return out, err
	}
	h.Recorder.SetCopies(plan.Copies)

	ctrl := &invoke.Controller{
		Base:     h.Command(plan),
		Macros:   h.MacroResolver(),
		Markers:  h.markers(),
		Launcher: h.launcher(plan),
		Validate: h.validateResults,
		Policy: invoke.Policy{
			FailoverNoSSE: h.Store.Enabled("failover_no_sse"),
			ArchFailover:  h.Store.Enabled("x64_failover"),
		},
		Observer: h.Recorder,
		Tracer:   h.tracer(),
	}
	res, err := ctrl.Run(ctx)
	out.Invocation = res

	status := res.Status()
	if err != nil {
		status = ExitUnknown
	}
	tier := h.MacroResolver().Resolve(ctx).Get(macros.NameSSE).Text
	h.Recorder.SetTier(tier, simd.Names())

	out.Summary = h.runSummary(plan, res, status, tier)
	if werr := artifacts.WriteBundle(h.ArtifactsDir(), out.Summary); werr != nil {
		log.Printf("harness: unable to write run summary: %v", werr)
	}
	h.finish(status)

	switch {
	case err != nil:
		return out, fail(status, err)
	case status != ExitOK:
		h.deliver(ctx, out.Summary)
		return out, fail(status, invocationError(res))
	}
	log.Printf("harness: run finished after %d attempt(s)", len(res.Attempts))
	return out, nil
}

func invocationError(res invoke.Result) error {
	switch res.Outcome {
	case invoke.ProcessFailed:
		last := res.Attempts[len(res.Attempts)-1]
		return fmt.Errorf("runspec exited with a non-zero status code %d", last.ExitStatus)
	case invoke.NoResultsProduced:
		return fmt.Errorf("run did not generate a valid CSV results file")
	}
	if n := len(res.Attempts); n > 0 && res.Attempts[n-1].Err != nil {
		return res.Attempts[n-1].Err
	}
	return fmt.Errorf("unknown error running runscript")
}

func (h *Harness) launcher(plan Plan) launcher.Launcher {
	if h.Launcher != nil {
		return h.Launcher
	}
	timeout := h.Config.Timeout()
	if seconds, ok := h.Store.Int(params.KeyRunTimeout); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	return launcher.ScriptLauncher{
		SuitePath:    plan.SuitePath,
		IterationDir: h.IterationDir(),
		HugePages: launcher.HugePages{
			Enabled: h.Store.Enabled("huge_pages"),
			Lib64:   h.Config.Suite.HugePagesLib64,
			Lib32:   h.Config.Suite.HugePagesLib32,
			Free:    h.System.HugePagesFree,
		},
		Timeout: timeout,
	}
}

func (h *Harness) validateResults(res launcher.Result) (report.OutputFiles, error) {
	path := res.LogPath
	if path == "" {
		path = h.LogPath()
	}
	return report.ValidateLog(path)
}

func (h *Harness) runSummary(plan Plan, res invoke.Result, status int, tier string) schema.RunSummary {
	at := h.now().UTC()
	summary := schema.RunSummary{
		RunID:       "run-" + at.Format("20060102T150405Z"),
		GeneratedAt: at,
		Status:      status,
		Class:       string(ClassOf(status)),
		Benchmarks:  plan.Benchmarks,
		Copies:      plan.Copies,
		SIMDTier:    tier,
		Command:     res.Command,
		Attempts:    make([]schema.AttemptSummary, 0, len(res.Attempts)),
		Metrics:     map[string]string{},
	}
	for _, attempt := range res.Attempts {
		summary.Attempts = append(summary.Attempts, schema.AttemptSummary{
			Number:          attempt.Number,
			Command:         attempt.Command,
			Outcome:         attempt.Outcome.String(),
			ExitStatus:      attempt.ExitStatus,
			DurationSeconds: attempt.Duration.Seconds(),
		})
	}
	for _, state := range res.Degrades {
		summary.Degrades = append(summary.Degrades, state.String())
	}
	return summary
}

func (h *Harness) finish(status int) {
	h.Recorder.Finish(status, h.now())
	if path := h.Config.Metrics.Textfile; path != "" {
		if err := h.Recorder.WriteTextfile(path); err != nil {
			log.Printf("harness: %v", err)
		}
	}
}

// deliver forwards summary to the configured logs endpoint and webhook.
// Delivery failures are logged and never change the exit status.
func (h *Harness) deliver(ctx context.Context, summary schema.RunSummary) {
	if endpoint := h.Config.Telemetry.LogsEndpoint; endpoint != "" {
		exporter := telemetry.NewSummaryExporter(endpoint, h.Config.Telemetry.ServiceName, tracerName, 0)
		if err := exporter.Export(ctx, summary); err != nil {
			log.Printf("harness: export run summary: %v", err)
		}
	}
	cfg := h.Config.Webhook
	if cfg.Enabled && cfg.URL != "" {
		hook := webhook.New(cfg.URL, cfg.Secret, webhook.ParseFormat(cfg.Format), cfg.TimeoutMS)
		if err := hook.Send(ctx, summary); err != nil {
			log.Printf("harness: webhook delivery: %v", err)
		}
	}
}
