package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/corelane/taskcore/internal/config"
	"github.com/corelane/taskcore/internal/exampletools"
	"github.com/corelane/taskcore/pkg/batch"
	"github.com/corelane/taskcore/pkg/orchestrator"
)

type dispatchFileCall struct {
	Tool string `yaml:"tool"`
	Args string `yaml:"args"`
}

type dispatchFile struct {
	Calls []dispatchFileCall `yaml:"calls"`
}

func newDispatchCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "dispatch <calls.yaml>",
		Short: "Run a list of tool calls in parallel through the shared throttle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.ThrottleCapacity = concurrency
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var file dispatchFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			o, err := orchestrator.New(cfg.ThrottleCapacity, orchestrator.WithName("dispatch"))
			if err != nil {
				return err
			}
			registerExampleTools(o)

			calls := make([]orchestrator.ToolCall, len(file.Calls))
			for i, c := range file.Calls {
				calls[i] = orchestrator.ToolCall{Name: c.Tool, Args: c.Args}
			}

			result, err := o.DispatchParallel(cmd.Context(), calls,
				batch.WithMaxParallelism(cfg.BatchMaxParallelism),
				batch.WithPerOpTimeout(cfg.BatchPerOpTimeout),
			)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override the configured throttle capacity")
	return cmd
}

func registerExampleTools(o *orchestrator.Orchestrator) {
	_ = o.Tools().Register("jq", exampletools.JQHandler)
	_ = o.Tools().Register("glob", exampletools.GlobHandler)
}
