package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	taskerrors "github.com/corelane/taskcore/pkg/errors"
)

// StepRunner invokes a single step and returns its outcome. The default
// runner simply calls step.Run with panic recovery; pkg/orchestrator
// supplies a runner that wraps the call through a shared Throttle so that
// step invocations count against the same global concurrency limit as
// batch operations.
//
// A non-nil returned error means the step's context was cancelled (the
// outer run cancellation or a step-scoped derivation of it) and must
// propagate outwards uncaptured; it is never a normal step failure.
type StepRunner func(ctx context.Context, step Step, wctx *Context) (StepExecutionResult, error)

// DefaultStepRunner runs step.Run directly, recovering panics into a
// failed outcome the same way a returned error would be captured.
func DefaultStepRunner(ctx context.Context, step Step, wctx *Context) (result StepExecutionResult, cancelErr error) {
	start := time.Now()
	var outcome StepOutcome

	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = StepOutcome{Success: false, ErrorMessage: fmt.Sprintf("panic: %v", r)}
			}
		}()

		err := step.Run(ctx, wctx)
		switch {
		case err == nil:
			outcome = StepOutcome{Success: true}
		case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			cancelErr = err
		default:
			outcome = StepOutcome{Success: false, ErrorMessage: err.Error()}
		}
	}()

	if cancelErr != nil {
		return StepExecutionResult{}, cancelErr
	}
	return StepExecutionResult{
		Name:     step.Name,
		Success:  outcome.Success,
		Error:    outcome.ErrorMessage,
		Duration: time.Since(start),
	}, nil
}

// Engine schedules and runs a Workflow's steps wave by wave.
type Engine struct {
	name   string
	logger *slog.Logger
	runner StepRunner

	mu sync.Mutex // serializes calls into the caller-supplied progress sink
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithName labels this engine's metrics.
func WithName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.name = name
		}
	}
}

// WithLogger overrides the default logger (slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStepRunner overrides how individual steps are invoked, e.g. to route
// them through a shared Throttle.
func WithStepRunner(runner StepRunner) Option {
	return func(e *Engine) {
		if runner != nil {
			e.runner = runner
		}
	}
}

// New creates a workflow Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		name:   "default",
		logger: slog.Default(),
		runner: DefaultStepRunner,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run schedules wf's steps respecting predecessor constraints, running
// parallel-capable ready steps concurrently. A well-formed workflow with
// zero steps succeeds trivially with an empty step list.
func (e *Engine) Run(ctx context.Context, wf *Workflow, progress ProgressSink) (WorkflowResult, error) {
	if err := wf.validate(); err != nil {
		return WorkflowResult{}, err
	}

	runID := uuid.New().String()
	start := time.Now()
	wctx := NewContext()

	total := len(wf.Steps)
	if total == 0 {
		return WorkflowResult{
			RunID:        runID,
			Success:      true,
			Steps:        []StepExecutionResult{},
			FinalContext: wctx,
			Duration:     0,
		}, nil
	}

	executed := make(map[string]bool, total)
	results := make([]StepExecutionResult, 0, total)
	completed := 0

	emit := func(currentStepName string) {
		if progress == nil {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		progress(ProgressUpdate{Total: total, Completed: completed, CurrentStepName: currentStepName})
	}

	finalize := func(success bool) WorkflowResult {
		elapsed := time.Since(start)
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		workflowRunsTotal.WithLabelValues(e.name, outcome).Inc()
		workflowDuration.WithLabelValues(e.name).Observe(elapsed.Seconds())
		return WorkflowResult{
			RunID:        runID,
			Success:      success,
			Steps:        results,
			FinalContext: wctx,
			Duration:     elapsed,
		}
	}

	for len(executed) < total {
		ready := e.readySet(wf, executed)
		if len(ready) == 0 {
			return WorkflowResult{}, &taskerrors.InvariantError{
				Component: "workflow.Engine",
				Message:   "no ready steps but workflow is not complete — cycle or unreachable predecessor",
			}
		}

		var parallelGroup, sequentialGroup []Step
		if len(ready) > 1 {
			for _, s := range ready {
				if s.ParallelCapable {
					parallelGroup = append(parallelGroup, s)
				} else {
					sequentialGroup = append(sequentialGroup, s)
				}
			}
		} else {
			sequentialGroup = ready
		}

		for _, s := range sequentialGroup {
			e.logger.Debug("workflow step starting", "workflow", e.name, "run_id", runID, "step", s.Name)
			emit(s.Name)

			result, cancelErr := e.runner(ctx, s, wctx)
			if cancelErr != nil {
				return WorkflowResult{}, cancelErr
			}

			results = append(results, result)
			completed++
			executed[s.Name] = true
			e.recordStep(result)
			emit("")

			if !result.Success {
				e.logger.Warn("workflow step failed", "workflow", e.name, "run_id", runID, "step", s.Name, "error", result.Error)
				return finalize(false), nil
			}
		}

		if len(parallelGroup) == 0 {
			continue
		}

		type outcome struct {
			result StepExecutionResult
			err    error
		}
		outcomes := make(chan outcome, len(parallelGroup))

		for _, s := range parallelGroup {
			s := s
			go func() {
				e.logger.Debug("workflow step starting", "workflow", e.name, "run_id", runID, "step", s.Name)
				emit(s.Name)
				result, cancelErr := e.runner(ctx, s, wctx)
				outcomes <- outcome{result: result, err: cancelErr}
			}()
		}

		var firstCancelErr error
		anyFailed := false
		for i := 0; i < len(parallelGroup); i++ {
			o := <-outcomes
			if o.err != nil {
				if firstCancelErr == nil {
					firstCancelErr = o.err
				}
				continue
			}
			results = append(results, o.result)
			completed++
			executed[o.result.Name] = true
			e.recordStep(o.result)
			emit("")
			if !o.result.Success {
				anyFailed = true
				e.logger.Warn("workflow step failed", "workflow", e.name, "run_id", runID, "step", o.result.Name, "error", o.result.Error)
			}
		}

		if firstCancelErr != nil {
			return WorkflowResult{}, firstCancelErr
		}
		if anyFailed {
			return finalize(false), nil
		}
	}

	return finalize(true), nil
}

// readySet returns the steps not yet executed whose every predecessor has
// executed, in declaration order.
func (e *Engine) readySet(wf *Workflow, executed map[string]bool) []Step {
	var ready []Step
	for _, s := range wf.Steps {
		if executed[s.Name] {
			continue
		}
		ok := true
		for _, pred := range s.Predecessors {
			if !executed[pred] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}
	return ready
}

func (e *Engine) recordStep(result StepExecutionResult) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	workflowStepsTotal.WithLabelValues(e.name, outcome).Inc()
}
