package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeMetricsCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose this process's Prometheus registry on /metrics (it runs no dispatch or workflow itself)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			server := &http.Server{Addr: addr, Handler: mux}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on %s/metrics\n", addr)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9090", "address to serve /metrics on")
	return cmd
}
