package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/corelane/taskcore/internal/config"
	"github.com/corelane/taskcore/pkg/orchestrator"
	"github.com/corelane/taskcore/pkg/workflow"
)

type workflowFileStep struct {
	Name            string   `yaml:"name"`
	Predecessors    []string `yaml:"predecessors"`
	ParallelCapable bool     `yaml:"parallel_capable"`
	Tool            string   `yaml:"tool"`
	Args            string   `yaml:"args"`
}

type workflowFile struct {
	Name  string             `yaml:"name"`
	Steps []workflowFileStep `yaml:"steps"`
}

func loadWorkflow(path string, o *orchestrator.Orchestrator) (*workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	steps := make([]workflow.Step, len(file.Steps))
	for i, s := range file.Steps {
		tool, args := s.Tool, s.Args
		steps[i] = workflow.Step{
			Name:            s.Name,
			Predecessors:    s.Predecessors,
			ParallelCapable: s.ParallelCapable,
			Run: func(ctx context.Context, wctx *workflow.Context) error {
				result := o.Tools().Execute(ctx, tool, args)
				if !result.OK {
					return fmt.Errorf("tool %s: %s", tool, result.Error)
				}
				wctx.Set(tool, result.Content)
				return nil
			},
		}
	}

	return &workflow.Workflow{Name: file.Name, Steps: steps}, nil
}

func newRunCommand() *cobra.Command {
	var (
		concurrency int
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a YAML-defined workflow through the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.ThrottleCapacity = concurrency
			}

			o, err := orchestrator.New(cfg.ThrottleCapacity, orchestrator.WithName("run"))
			if err != nil {
				return err
			}
			registerExampleTools(o)

			if err := runWorkflowFileOnce(cmd.Context(), args[0], o, cmd); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchWorkflowFile(cmd.Context(), args[0], o, cmd)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override the configured throttle capacity")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run the workflow whenever the file changes")
	return cmd
}

func runWorkflowFileOnce(ctx context.Context, path string, o *orchestrator.Orchestrator, cmd *cobra.Command) error {
	wf, err := loadWorkflow(path, o)
	if err != nil {
		return err
	}

	result, toolResult, err := o.RunWorkflow(ctx, wf, func(u workflow.ProgressUpdate) {
		if u.CurrentStepName != "" {
			slog.Default().Debug("step starting", "workflow", wf.Name, "step", u.CurrentStepName)
		}
	})
	if err != nil {
		return err
	}

	if toolResult.OK {
		fmt.Fprintln(cmd.OutOrStdout(), toolResult.Content)
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), toolResult.Error)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func watchWorkflowFile(ctx context.Context, path string, o *orchestrator.Orchestrator, cmd *cobra.Command) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := runWorkflowFileOnce(ctx, path, o, cmd); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}
}
