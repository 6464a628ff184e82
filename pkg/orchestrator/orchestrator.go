// Package orchestrator composes a Throttle, a BatchExecutor, and a
// WorkflowEngine behind two entry points: parallel tool dispatch and
// workflow execution. Both funnel through the same Throttle, so one
// capacity knob bounds global concurrency across either path.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/corelane/taskcore/pkg/batch"
	"github.com/corelane/taskcore/pkg/task"
	"github.com/corelane/taskcore/pkg/throttle"
	"github.com/corelane/taskcore/pkg/workflow"
)

// ToolCall names a tool invocation for DispatchParallel.
type ToolCall struct {
	Name string
	Args string
}

// Orchestrator is the facade described above. It is a cheap, process-lived
// singleton: construct one per logical concurrency domain.
type Orchestrator struct {
	name     string
	throttle *throttle.Throttle
	registry *ToolRegistry
	engine   *workflow.Engine
	logger   *slog.Logger
}

type config struct {
	name   string
	logger *slog.Logger
}

// Option configures an Orchestrator at construction time.
type Option func(*config)

// WithName labels this orchestrator's throttle, batch, and workflow
// metrics so multiple instances in one process don't collide.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger overrides the default logger (slog.Default()), propagated to
// the underlying Throttle and Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an Orchestrator whose Throttle has the given capacity.
// capacity must be positive.
func New(capacity int, opts ...Option) (*Orchestrator, error) {
	c := &config{name: "default", logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	th, err := throttle.New(capacity, throttle.WithName(c.name), throttle.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	registry := NewToolRegistry()

	engine := workflow.New(
		workflow.WithName(c.name),
		workflow.WithLogger(c.logger),
		workflow.WithStepRunner(throttledStepRunner(th)),
	)

	return &Orchestrator{
		name:     c.name,
		throttle: th,
		registry: registry,
		engine:   engine,
		logger:   c.logger,
	}, nil
}

// Tools returns the orchestrator's tool registry, for callers to populate
// with Register and optionally SetInterceptor.
func (o *Orchestrator) Tools() *ToolRegistry {
	return o.registry
}

// Throttle returns the orchestrator's shared Throttle, primarily so
// callers can inspect Metrics() or, less commonly, SetCapacity.
func (o *Orchestrator) Throttle() *throttle.Throttle {
	return o.throttle
}

// DispatchParallel runs calls concurrently through the shared Throttle and
// a BatchExecutor. It never fails for a per-call tool failure or a missing
// tool — those are reported as ToolResult.OK == false entries in the
// returned BatchResult; DispatchParallel itself only fails on outer
// cancellation (or, in principle, an underlying BatchExecutor failure,
// which cannot occur here since calls never return an error to the
// batch layer).
func (o *Orchestrator) DispatchParallel(ctx context.Context, calls []ToolCall, opts ...batch.Option) (batch.BatchResult[ToolResult], error) {
	ops := make([]task.Operation[ToolResult], len(calls))
	for i, call := range calls {
		call := call
		ops[i] = func(ctx context.Context) (ToolResult, error) {
			return throttle.AcquireAndRun(ctx, o.throttle, func(ctx context.Context) (ToolResult, error) {
				return o.registry.Execute(ctx, call.Name, call.Args), nil
			})
		}
	}

	runOpts := append([]batch.Option{batch.WithName(o.name + ".dispatch_parallel"), batch.WithLogger(o.logger)}, opts...)
	return batch.Run(ctx, ops, runOpts...)
}

// RunWorkflow runs wf to completion, routing every step invocation through
// the same shared Throttle that bounds DispatchParallel. The returned
// WorkflowResult carries the full per-step detail; the ToolResult summarizes
// it for callers that treat a workflow run as just another tool call: on
// success Content reports "{succeeded}/{total} steps in {duration}", on
// failure Error names the step(s) that failed.
func (o *Orchestrator) RunWorkflow(ctx context.Context, wf *workflow.Workflow, progress workflow.ProgressSink) (workflow.WorkflowResult, ToolResult, error) {
	result, err := o.engine.Run(ctx, wf, progress)
	if err != nil {
		return result, ToolResult{}, err
	}
	return result, summarizeWorkflowResult(result), nil
}

func summarizeWorkflowResult(result workflow.WorkflowResult) ToolResult {
	succeeded := 0
	var failedSteps []string
	for _, step := range result.Steps {
		if step.Success {
			succeeded++
		} else {
			failedSteps = append(failedSteps, step.Name)
		}
	}

	if result.Success {
		return ToolResult{
			OK:      true,
			Content: fmt.Sprintf("%d/%d steps in %s", succeeded, len(result.Steps), result.Duration),
		}
	}
	return ToolResult{
		OK:    false,
		Error: fmt.Sprintf("step(s) failed: %s", strings.Join(failedSteps, ", ")),
	}
}

// throttledStepRunner adapts workflow.DefaultStepRunner to acquire a
// Throttle permit for the duration of each step, so step invocations count
// against the orchestrator's single global concurrency limit.
func throttledStepRunner(th *throttle.Throttle) workflow.StepRunner {
	return func(ctx context.Context, step workflow.Step, wctx *workflow.Context) (workflow.StepExecutionResult, error) {
		return throttle.AcquireAndRun(ctx, th, func(ctx context.Context) (workflow.StepExecutionResult, error) {
			return workflow.DefaultStepRunner(ctx, step, wctx)
		})
	}
}
