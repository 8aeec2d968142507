package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"store", "method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "method"},
	)

	SessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_swept_total",
			Help: "Total number of expired sessions removed by the sweeper",
		},
	)

	registerOnce sync.Once
)

func InitMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(RepositoryCalls, RepositoryDuration, SessionsSwept)
	})
}

// TrackRepositoryCall starts a span for a repository method. The returned
// func must be called with the method's final error; it ends the span and
// records the call metrics.
func TrackRepositoryCall(ctx context.Context, store, method string) (context.Context, trace.Span, func(err error)) {
	ctx, span := otel.Tracer(store+"-repository").Start(ctx, method)
	start := time.Now()
	return ctx, span, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		RepositoryCalls.WithLabelValues(store, method, status).Inc()
		RepositoryDuration.WithLabelValues(store, method).Observe(time.Since(start).Seconds())
		span.End()
	}
}
