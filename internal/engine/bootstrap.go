package engine

import (
	"context"
	"fmt"

	"strata/internal/logging"
	"strata/internal/opener"
	"strata/internal/pipeline"
	"strata/internal/storage"
	"strata/internal/telemetry"
	"strata/internal/transport"
)

func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	e := &Engine{}

	// 1. inspector cache
	if cfg.CacheConfig != "" {
		cc, err := storage.LoadConfig(cfg.CacheConfig)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		if e.cache, err = storage.NewCache(cc); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
	}

	if cfg.S3Config != "" {
		mc, err := storage.LoadMinioConfig(cfg.S3Config)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		if err := opener.RegisterS3(mc); err != nil {
			return nil, err
		}
	}

	// 2. transport server
	srv, err := transport.StartServer(cfg.GRPCPort, &transport.Inspector{Cache: e.cache, AllowLocal: cfg.AllowLocal})
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	e.transport = srv

	// 3. pipeline runner
	if cfg.PipelineYml != "" {
		e.runner, err = pipeline.Compile(cfg.PipelineYml)
		if err != nil {
			srv.Stop()
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		if err := e.runner.Start(ctx); err != nil {
			srv.Stop()
			return nil, err
		}
	}

	// 4. metrics
	if cfg.MetricsPort > 0 {
		e.metrics = telemetry.Expose(cfg.MetricsPort)
	}

	logging.L().Info("engine started", "grpc", srv.Addr().String(), "metrics_port", cfg.MetricsPort, "pipeline", cfg.PipelineYml)
	return e, nil
}
