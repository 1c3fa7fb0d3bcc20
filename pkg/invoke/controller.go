package invoke

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/launcher"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/macros"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/marker"
	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/report"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Exit statuses of a finished invocation.
const (
	StatusOK            = 0
	StatusProcessFailed = 10
	StatusNoResults     = 11
	StatusLaunchFailed  = 12
)

const (
	tracerName      = "spec-cpu-harness/invoke"
	degradeKindSSE  = "sse"
	degradeKindArch = "x64"
)

// State is a step of the retry machine.
type State int

const (
	Attempting State = iota
	SseDegrade
	ArchDegrade
	Done
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case SseDegrade:
		return "sse_degrade"
	case ArchDegrade:
		return "arch_degrade"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome classifies one attempt.
type Outcome int

const (
	Success Outcome = iota
	ProcessFailed
	NoResultsProduced
	LaunchFailed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ProcessFailed:
		return "process_failed"
	case NoResultsProduced:
		return "no_results"
	case LaunchFailed:
		return "launch_failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Status maps an outcome to the harness exit status.
func (o Outcome) Status() int {
	switch o {
	case Success:
		return StatusOK
	case ProcessFailed:
		return StatusProcessFailed
	case NoResultsProduced:
		return StatusNoResults
	}
	return StatusLaunchFailed
}

// Policy enables the two degrade kinds.
type Policy struct {
	// FailoverNoSSE retries once without the sse define.
	FailoverNoSSE bool
	// ArchFailover retries once with the x64 define inverted.
	ArchFailover bool
}

// MacroSource yields the current macro set; it must re-read failover
// markers on every call.
type MacroSource interface {
	Resolve(ctx context.Context) macros.Set
}

// Validator checks a zero-exit run for parseable results.
type Validator func(res launcher.Result) (report.OutputFiles, error)

// Observer receives attempt and degrade events.
type Observer interface {
	Attempt(outcome string, d time.Duration)
	Degrade(kind string)
}

// Attempt records one invocation.
type Attempt struct {
	Number     int
	Command    string
	Outcome    Outcome
	ExitStatus int
	Duration   time.Duration
	Err        error
}

// Result is the final state of a controller run.
type Result struct {
	Outcome  Outcome
	Command  string
	Attempts []Attempt
	Degrades []State
	Files    report.OutputFiles
	Launch   launcher.Result
}

// Status is the harness exit status for the result.
func (r Result) Status() int {
	return r.Outcome.Status()
}

// Controller runs a command and degrades it on known failure signatures.
type Controller struct {
	Base     Command
	Macros   MacroSource
	Markers  marker.Store
	Launcher launcher.Launcher
	Validate Validator
	Policy   Policy
	Observer Observer
	Tracer   trace.Tracer
}

type transition struct {
	outcome    Outcome
	sseDefined bool
	archMarker bool
	cancelled  bool
	policy     Policy
}

// next is the single transition function of the retry machine. Only a
// failed process degrades; the SSE degrade takes precedence and each kind
// happens at most once because its marker is consulted before retrying.
func next(state State, in transition) State {
	switch state {
	case Attempting:
		if in.cancelled || in.outcome != ProcessFailed {
			return Done
		}
		if in.policy.FailoverNoSSE && in.sseDefined {
			return SseDegrade
		}
		if in.policy.ArchFailover && !in.archMarker {
			return ArchDegrade
		}
		return Done
	case SseDegrade, ArchDegrade:
		return Attempting
	}
	return Done
}

// Run drives the machine to Done. The returned error is set only when a
// failover marker could not be written.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	tracer := c.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "invoke.run")
	defer span.End()

	var (
		result Result
		cmd    Command
		last   Attempt
	)
	state := Attempting
	for state != Done {
		switch state {
		case Attempting:
			cmd = c.Base.WithDefines(c.Macros.Resolve(ctx))
			cmd.LogSkippedDefines()
			last = c.attempt(ctx, tracer, len(result.Attempts)+1, cmd, &result)
			result.Attempts = append(result.Attempts, last)
		case SseDegrade:
			log.Printf("invoke: runspec failed with sse=%s - re-attempting without sse", cmd.Defines.Get(macros.NameSSE).Text)
			if err := c.degrade(ctx, marker.SSESkip, degradeKindSSE); err != nil {
				return c.finish(span, result, last), err
			}
			result.Degrades = append(result.Degrades, state)
		case ArchDegrade:
			wide := cmd.Defines.Get(macros.NameX64).Truthy()
			log.Printf("invoke: runspec failed with x64=%t - re-attempting with x64=%t", wide, !wide)
			if err := c.degrade(ctx, marker.ArchFailover, degradeKindArch); err != nil {
				return c.finish(span, result, last), err
			}
			result.Degrades = append(result.Degrades, state)
		}

		state = next(state, transition{
			outcome:    last.Outcome,
			sseDefined: cmd.HasDefine(macros.NameSSE),
			archMarker: c.Markers.Exists(marker.ArchFailover),
			cancelled:  ctx.Err() != nil,
			policy:     c.Policy,
		})
	}
	return c.finish(span, result, last), nil
}

func (c *Controller) attempt(ctx context.Context, tracer trace.Tracer, n int, cmd Command, result *Result) Attempt {
	line := cmd.String()
	ctx, span := tracer.Start(ctx, "invoke.attempt", trace.WithAttributes(
		attribute.Int("harness.attempt", n),
		attribute.String("harness.command", line),
	))
	defer span.End()

	log.Printf("invoke: attempt %d: %s", n, line)
	at := Attempt{Number: n, Command: line}
	res, err := c.Launcher.Launch(ctx, line)
	at.ExitStatus = res.ExitStatus
	at.Duration = res.Duration
	result.Command = line
	result.Launch = res

	switch {
	case err != nil:
		at.Outcome = LaunchFailed
		at.Err = err
		log.Printf("invoke: unknown error running launcher: %v", err)
	case res.ExitStatus != 0:
		at.Outcome = ProcessFailed
		log.Printf("invoke: runspec exited with a non-zero status code %d", res.ExitStatus)
	default:
		at.Outcome = Success
		if c.Validate != nil {
			files, verr := c.Validate(res)
			result.Files = files
			if verr != nil {
				at.Outcome = NoResultsProduced
				at.Err = verr
				log.Printf("invoke: run did not generate a valid CSV results file: %v", verr)
			}
		}
		if at.Outcome == Success {
			log.Printf("invoke: runspec completed successfully")
		}
	}

	span.SetAttributes(
		attribute.String("harness.outcome", at.Outcome.String()),
		attribute.Int("harness.exit_status", at.ExitStatus),
	)
	if at.Outcome != Success {
		span.SetStatus(codes.Error, at.Outcome.String())
	}
	if c.Observer != nil {
		c.Observer.Attempt(at.Outcome.String(), at.Duration)
	}
	return at
}

func (c *Controller) degrade(ctx context.Context, name marker.Name, kind string) error {
	trace.SpanFromContext(ctx).AddEvent("invoke.degrade", trace.WithAttributes(attribute.String("harness.degrade", kind)))
	if err := c.Markers.Create(name); err != nil {
		return fmt.Errorf("create %s marker: %w", kind, err)
	}
	if c.Observer != nil {
		c.Observer.Degrade(kind)
	}
	return nil
}

func (c *Controller) finish(span trace.Span, result Result, last Attempt) Result {
	result.Outcome = last.Outcome
	span.SetAttributes(
		attribute.Int("harness.attempts", len(result.Attempts)),
		attribute.Int("harness.status", result.Status()),
	)
	if result.Outcome != Success {
		span.SetStatus(codes.Error, result.Outcome.String())
	}
	return result
}
