package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strata/internal/logging"
)

var (
	StageElements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strata",
		Name:      "stage_elements_total",
		Help:      "Elements processed per pipeline stage, by outcome.",
	}, []string{"stage", "status"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "strata",
		Name:      "stage_duration_seconds",
		Help:      "Per-element processing time of a pipeline stage, retries included.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})

	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strata",
		Name:      "cache_requests_total",
		Help:      "URL opener cache lookups, by result (hit|miss).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(StageElements, StageDuration, CacheRequests)
}

// ObserveStage records one element's outcome for a stage.
func ObserveStage(stage string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StageElements.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// Expose serves /metrics on port in the background. The returned server can
// be shut down by the caller.
func Expose(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server stopped", "addr", srv.Addr, "err", err)
		}
	}()
	return srv
}
