// Package workflow schedules a DAG of steps, running parallel-capable
// steps concurrently within each wave while honoring predecessor
// constraints.
package workflow

import (
	"context"
	"fmt"
	"time"

	taskerrors "github.com/corelane/taskcore/pkg/errors"
)

// StepOutcome is the result of a single step's run function.
type StepOutcome struct {
	Success      bool
	ErrorMessage string
}

// StepFunc is the work a step performs. It receives the shared workflow
// context and a cancellation signal. An error return (or panic, which the
// engine recovers) is captured as a failed StepOutcome rather than
// propagated — only outer cancellation propagates outwards.
type StepFunc func(ctx context.Context, wctx *Context) error

// Step is one node in a workflow's DAG.
type Step struct {
	// Name uniquely identifies this step within its workflow.
	Name string

	// Predecessors names the steps that must complete successfully before
	// this one becomes eligible to run.
	Predecessors []string

	// ParallelCapable hints that this step may run concurrently with
	// other ready, parallel-capable steps. It only takes effect when more
	// than one step is ready at once.
	ParallelCapable bool

	// Run is invoked at most once, only after every predecessor has
	// completed with success.
	Run StepFunc
}

// Workflow is a named DAG of steps. Step names must be unique; every name
// appearing in any Predecessors list must name an existing step.
type Workflow struct {
	Name  string
	Steps []Step
}

func (w *Workflow) validate() error {
	byName := make(map[string]struct{}, len(w.Steps))
	for _, s := range w.Steps {
		if s.Name == "" {
			return &taskerrors.ValidationError{Field: "steps", Message: "step name must not be empty"}
		}
		if _, dup := byName[s.Name]; dup {
			return &taskerrors.ValidationError{Field: "steps", Message: fmt.Sprintf("duplicate step name %q", s.Name)}
		}
		byName[s.Name] = struct{}{}
	}
	for _, s := range w.Steps {
		for _, pred := range s.Predecessors {
			if _, ok := byName[pred]; !ok {
				return &taskerrors.ValidationError{
					Field:   "predecessors",
					Message: fmt.Sprintf("step %q names unknown predecessor %q", s.Name, pred),
				}
			}
		}
	}
	return nil
}

// ProgressUpdate is emitted once when a step starts (CurrentStepName set)
// and once when it finishes (CurrentStepName empty, Completed incremented).
type ProgressUpdate struct {
	Total           int
	Completed       int
	CurrentStepName string
}

// ProgressSink receives ProgressUpdate values. It is invoked synchronously
// from whichever goroutine is driving the step and must be non-blocking or
// cheaply blocking; the engine serializes calls into it.
type ProgressSink func(ProgressUpdate)

// StepExecutionResult records how one step run resolved.
type StepExecutionResult struct {
	Name     string
	Success  bool
	Error    string
	Duration time.Duration
}

// WorkflowResult is the terminal outcome of a workflow run. Steps is
// ordered by completion time, not by declaration — within a sequential
// group that's the same thing, but within a parallel group it reflects
// whichever step actually finished first.
type WorkflowResult struct {
	// RunID correlates this run's log lines; the engine itself never
	// inspects it.
	RunID        string
	Success      bool
	Steps        []StepExecutionResult
	FinalContext *Context
	Duration     time.Duration
}
