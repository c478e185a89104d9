package main

import (
	"github.com/spf13/cobra"

	"strata/internal/engine"
)

func newServeCmd() *cobra.Command {
	cfg := engine.Config{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inspector API, metrics and an optional pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := engine.Bootstrap(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return e.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.GRPCPort, "grpc-port", 7070, "gRPC listen port")
	f.IntVar(&cfg.MetricsPort, "metrics-port", 9100, "Prometheus /metrics port (0 disables)")
	f.StringVar(&cfg.PipelineYml, "pipeline", "", "pipeline YAML to run in the background")
	f.StringVar(&cfg.CacheConfig, "cache", "", "cache config used by the inspector")
	f.StringVar(&cfg.S3Config, "s3", "", "S3 endpoint config for s3:// URLs")
	f.BoolVar(&cfg.AllowLocal, "allow-local", false, "let the inspector read local paths")
	return cmd
}
