package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"strata/internal/logging"
	"strata/internal/pipeline"
	"strata/internal/storage"
	"strata/internal/transport"
)

type Config struct {
	GRPCPort    int
	MetricsPort int    // <= 0 disables /metrics
	PipelineYml string // optional
	CacheConfig string // optional cache for the inspector service
	S3Config    string // optional endpoint for s3:// URLs
	AllowLocal  bool   // inspector may read local paths
}

type Engine struct {
	transport *transport.Server
	runner    *pipeline.Runner
	metrics   *http.Server
	cache     storage.Cache
}

// Addr is a dialable address of the gRPC server.
func (e *Engine) Addr() string {
	if ta, ok := e.transport.Addr().(*net.TCPAddr); ok && ta.IP.IsUnspecified() {
		return fmt.Sprintf("localhost:%d", ta.Port)
	}
	return e.transport.Addr().String()
}

func (e *Engine) Run(ctx context.Context) error {
	if e.runner != nil {
		go func() {
			err := e.runner.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				logging.L().Error("pipeline stopped", "err", err)
				return
			}
			logging.L().Info("pipeline done; still serving")
		}()
	}

	go func() {
		<-ctx.Done()
		e.transport.Stop()
		if e.runner != nil {
			_ = e.runner.Close()
		}
		if e.metrics != nil {
			_ = e.metrics.Close()
		}
		if e.cache != nil {
			_ = e.cache.Close()
		}
	}()

	return e.transport.Serve()
}
