package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"strata/internal/pipeline"
	"strata/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	var metricsPort int
	cmd := &cobra.Command{
		Use:   "run <pipeline.yml>",
		Short: "Run a pipeline until its source is exhausted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := pipeline.Compile(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			if metricsPort > 0 {
				srv := telemetry.Expose(metricsPort)
				defer srv.Close()
			}
			err = r.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Prometheus /metrics port (0 disables)")
	return cmd
}
