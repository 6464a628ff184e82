package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	tclog "github.com/corelane/taskcore/internal/log"
)

var (
	configPath string
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskcore",
		Short: "Drive the task orchestration core from the command line",
		Long: `taskcore exercises the throttle, batch, workflow, and orchestrator
packages end to end: dispatch runs registered tools in parallel, run
executes a YAML-defined workflow, and serve-metrics exposes the
Prometheus registry of its own process. serve-metrics runs no dispatch or
workflow itself, so series recorded by other taskcore invocations do not
appear there.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(tclog.New(tclog.FromEnv()))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a taskcore YAML config file")

	cmd.AddCommand(newDispatchCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newServeMetricsCommand())
	return cmd
}
