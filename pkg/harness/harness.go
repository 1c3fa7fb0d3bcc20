// Package harness runs one benchmark iteration: it validates the request,
// drives the invocation controller and turns the run output into results.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/artifacts"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/copies"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/harnesscfg"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/hostinfo"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/invoke"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/launcher"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/macros"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/marker"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/prereq"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/runmetrics"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/selection"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/simd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "spec-cpu-harness/harness"

// Harness holds the inputs of one iteration. Resolvers built from Store are
// memoized, so a Harness serves exactly one run or parse pass.
type Harness struct {
	Config harnesscfg.Config
	Store  params.Store

	// System supplies host facts the framework did not export.
	System hostinfo.System
	// Prober answers NUMA and disk space questions.
	Prober hostinfo.Prober
	// SIMDProbe returns the host's best tier for "optimal" requests.
	SIMDProbe func() string
	// Markers defaults to a file store in the run directory.
	Markers marker.Store
	// Launcher defaults to a ScriptLauncher in the iteration directory.
	Launcher launcher.Launcher
	Recorder *runmetrics.Recorder
	Tracer   trace.Tracer
	Now      func() time.Time

	copies *copies.Resolver
	macros *macros.Resolver
}

// New returns a harness probing the local host.
func New(cfg harnesscfg.Config, store params.Store) *Harness {
	return &Harness{
		Config:    cfg,
		Store:     store,
		Prober:    hostinfo.System{},
		SIMDProbe: simd.Detect,
		Recorder:  runmetrics.New(),
		Now:       time.Now,
	}
}

// Plan is the validated shape of a run.
type Plan struct {
	SuitePath     string
	Benchmarks    []string
	Copies        int
	ConfigFile    string
	OutputFormats []string
	Size          string
	Tune          string
}

// SuitePath is bm_param_spec_dir or the configured suite path.
func (h *Harness) SuitePath() string {
	return h.Store.ParamOrDefault("spec_dir", h.Config.Suite.Path)
}

// IterationDir holds the launcher, the captured log and the artifacts.
func (h *Harness) IterationDir() string {
	if dir := h.Store.Get(params.KeyIterationDir); dir != "" {
		return dir
	}
	return "."
}

// RunDir holds the failover markers shared by all iterations of a run.
func (h *Harness) RunDir() string {
	if dir := h.Store.Get(params.KeyRunDir); dir != "" {
		return dir
	}
	return h.IterationDir()
}

// LogPath is the captured benchmark output.
func (h *Harness) LogPath() string {
	return filepath.Join(h.IterationDir(), launcher.LogName)
}

// ArtifactsDir receives saved reports and the results summary.
func (h *Harness) ArtifactsDir() string {
	return filepath.Join(h.IterationDir(), artifacts.DirName)
}

func (h *Harness) markers() marker.Store {
	if h.Markers == nil {
		h.Markers = marker.NewFileStore(h.RunDir())
	}
	return h.Markers
}

func (h *Harness) tracer() trace.Tracer {
	if h.Tracer == nil {
		h.Tracer = otel.Tracer(tracerName)
	}
	return h.Tracer
}

func (h *Harness) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// CopyResolver returns the memoized copies resolver.
func (h *Harness) CopyResolver() *copies.Resolver {
	if h.copies == nil {
		fallback := copies.Host{CPUCount: h.System.CPUCount()}
		if kb, err := h.System.MemTotalKB(); err == nil {
			fallback.MemoryKB = kb
		}
		h.copies = copies.FromStore(h.Store, h.Config.Run.DefaultCopies, fallback)
	}
	return h.copies
}

// MacroResolver returns the memoized macro resolver.
func (h *Harness) MacroResolver() *macros.Resolver {
	if h.macros == nil {
		var numa func(context.Context) bool
		if h.Prober != nil {
			numa = h.Prober.NUMAAvailable
		}
		h.macros = macros.NewResolver(h.Store, h.markers(), numa, h.SIMDProbe)
	}
	return h.macros
}

// Validate runs the pre-invocation checks in order and returns the first
// failure as an *Error.
func (h *Harness) Validate(ctx context.Context) (Plan, error) {
	_, span := h.tracer().Start(ctx, "harness.validate")
	defer span.End()

	plan := Plan{SuitePath: h.SuitePath()}
	configDir := filepath.Join(plan.SuitePath, "config")

	report := prereq.Evaluate(prereq.CollectSnapshot(prereq.Inputs{SuitePath: plan.SuitePath}, h.Prober))
	if blocker, failed := prereq.FirstBlocker(report); failed {
		return plan, fail(blocker.ExitCode, fmt.Errorf("check %s: %s", blocker.Name, blocker.Remediation))
	}

	plan.Benchmarks, _ = selection.Benchmarks(h.Store.Param("benchmark"), h.Config.Benchmarks)
	if len(plan.Benchmarks) == 0 {
		return plan, fail(ExitNoBenchmarks, errors.New("no valid benchmarks were defined"))
	}

	n, err := h.CopyResolver().Copies()
	if err != nil {
		return plan, fail(ExitCopies, err)
	}
	plan.Copies = n

	plan.ConfigFile, err = selection.ConfigFile(h.Store.ParamOrDefault("config", h.Config.Run.DefaultConfigFile), configDir)
	if err != nil {
		return plan, fail(ExitConfigFile, err)
	}

	plan.OutputFormats, _ = h.outputFormats()
	if len(plan.OutputFormats) == 0 {
		return plan, fail(ExitOutputFormats, errors.New("unable to determine output formats"))
	}

	plan.Size = h.Store.Param("size")
	if err := selection.ValidateSize(plan.Size); err != nil {
		return plan, fail(ExitSize, err)
	}
	plan.Tune = h.Store.Param("tune")
	if err := selection.ValidateTune(plan.Tune); err != nil {
		return plan, fail(ExitTune, err)
	}

	if err := h.validateDisk(plan); err != nil {
		return plan, fail(ExitInsufficientDisk, err)
	}

	log.Printf("harness: run validation is successful (benchmarks=%v copies=%d config=%s)", plan.Benchmarks, plan.Copies, plan.ConfigFile)
	return plan, nil
}

func (h *Harness) outputFormats() ([]string, []string) {
	return selection.OutputFormats(h.Store.Param("output_format"), h.Config.OutputFormats, h.Config.Run.DefaultOutputFmt)
}

func (h *Harness) validateDisk(plan Plan) error {
	if !h.Store.Enabled("validate_disk_space") {
		log.Printf("harness: skipping disk space validation")
		return nil
	}
	required := int64(plan.Copies) * int64(h.Config.Run.DiskPerCopyMB)
	report := prereq.Evaluate(prereq.CollectSnapshot(prereq.Inputs{
		SuitePath:      plan.SuitePath,
		DiskCheck:      true,
		RequiredDiskMB: required,
	}, h.Prober))
	for _, check := range report.Checks {
		if check.ExitCode == prereq.ExitInsufficientDisk && !check.Pass {
			return fmt.Errorf("required disk space %dMB is not available in %s/benchspec (%s)", required, plan.SuitePath, check.Current)
		}
	}
	log.Printf("harness: required disk space %dMB is available", required)
	return nil
}

// Command builds the base invocation for plan. Defines are attached by the
// controller on every attempt.
func (h *Harness) Command(plan Plan) invoke.Command {
	cmd := invoke.Command{
		Reportable:    h.Store.Param("reportable") == "1",
		OutputFormats: selection.WithCSV(plan.OutputFormats),
		Comment:       h.Store.Param("comment"),
		FlagsURL:      h.Store.Param("flagsurl"),
		IgnoreErrors:  h.Store.Param("ignore_errors") == "1",
		NoBuild:       h.Store.Param("nobuild") != "0",
		Rate:          h.Store.Param("rate") != "0",
		Copies:        plan.Copies,
		Review:        h.Store.Param("review") == "1",
		Size:          plan.Size,
		Tune:          plan.Tune,
		Benchmarks:    plan.Benchmarks,
		QuotedValues:  hostinfo.UtilPatched(plan.SuitePath),
		NUMAPrefix:    h.Config.Run.NumaInterleavePrefix,
	}
	if plan.ConfigFile != h.Config.Run.DefaultConfigFile {
		cmd.ConfigFile = plan.ConfigFile
	}
	if delay, ok := h.Store.Int(params.ParamPrefix + "delay"); ok && delay > 0 {
		cmd.Delay = delay
	}
	if n, ok := selection.Iterations(h.Store); ok {
		cmd.Iterations = n
	}
	return cmd
}
