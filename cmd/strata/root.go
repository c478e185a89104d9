package main

import (
	"github.com/spf13/cobra"

	"strata/internal/logging"
)

type rootOptions struct {
	logLevel string
	logJSON  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "strata",
		Short: "Open keyed array-data files through a streaming pipeline",
		Long: `strata reads URLs from a source (a file pattern or a Kafka topic), opens each
one (optionally through a cache), parses it as a netCDF dataset and hands the
result to the configured sinks. Every element keeps its index end to end.`,
		Example: `  # Run a pipeline once and exit
  $ strata run pipeline.yml

  # Serve the inspector API and a long-running pipeline
  $ strata serve --pipeline pipeline.yml --grpc-port 7070

  # Describe a single file, locally or through a running engine
  $ strata inspect https://data.example/tas_2020.nc
  $ strata inspect --remote localhost:7070 s3://bucket/tas_2020.nc`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-json") {
				logging.InitFromEnv()
				return nil
			}
			if _, err := logging.ParseLevel(opts.logLevel); err != nil {
				return err
			}
			logging.Configure(logging.Options{Level: opts.logLevel, JSON: opts.logJSON})
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug|info|warn|error (default from STRATA_LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit JSON logs (default from STRATA_LOG_JSON)")

	cmd.AddCommand(newServeCmd(), newRunCmd(), newInspectCmd())
	return cmd
}
