package interfaces

import (
	"context"

	"resilient-feed/src/models"
)

// -----------------------------------------------------------------------------

// IBreakerStatus exposes breaker snapshots keyed by provider
type IBreakerStatus interface {
	Snapshot() map[string]models.MCircuitBreakerState
}

// IHealthStatus exposes the health monitor to the outer surfaces
type IHealthStatus interface {
	GetHealthStatus() map[string]models.MHealthRecord
	GetOverallHealth() models.HealthStatus
	CheckNow(ctx context.Context) models.MHealthReport
}

// IRealtimeControl exposes the realtime client to the outer surfaces
type IRealtimeControl interface {
	GetConnectionStatus() models.MConnectionStatus
	Subscriptions() []models.MSubscription
	Subscribe(topic string, params []string)
	Unsubscribe(topic string)
}

// IRequester performs one orchestrated request
type IRequester interface {
	Request(ctx context.Context, provider, endpoint string, params map[string]string, useCache bool) models.MResult
}

// IMetricsTotals exposes collected counter totals keyed by metric name
type IMetricsTotals interface {
	Totals(ctx context.Context) (map[string]int64, error)
}

// ICacheStats exposes cache performance counters
type ICacheStats interface {
	Stats() models.MCacheStats
}
