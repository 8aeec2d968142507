package observability

import (
	"context"

	"github.com/honeynil/account-ledger/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Setup initialises logging, metrics and tracing. The returned func flushes
// pending spans.
func Setup(ctx context.Context, serviceName, logLevel, otlpEndpoint string) (func(context.Context) error, error) {
	observability.InitLogger(logLevel)
	observability.InitMetrics(prometheus.DefaultRegisterer)
	return observability.InitTracing(ctx, serviceName, otlpEndpoint)
}
