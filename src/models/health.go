package models

import "time"

// -----------------------------------------------------------------------------

// HealthStatus is the last known state of a monitored endpoint.
type HealthStatus string

const (
	HealthHealthy      HealthStatus = "healthy"
	HealthDegraded     HealthStatus = "degraded"
	HealthUnhealthy    HealthStatus = "unhealthy"
	HealthChecking     HealthStatus = "checking"
	HealthReconnecting HealthStatus = "reconnecting"
)

// -----------------------------------------------------------------------------

// MHealthRecord tracks one monitored endpoint. Only the health monitor writes it;
// everyone else receives copies.
type MHealthRecord struct {
	Name              string        `json:"name"`
	Provider          string        `json:"provider"`
	URL               string        `json:"url"`
	Status            HealthStatus  `json:"status"`
	LastCheck         time.Time     `json:"last_check,omitempty"`
	LastSuccess       time.Time     `json:"last_success,omitempty"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	ResponseTime      time.Duration `json:"response_time"`
	RetryCount        int           `json:"retry_count"`
	MaxRetries        int           `json:"max_retries"`
	LastError         string        `json:"last_error,omitempty"`
}

// -----------------------------------------------------------------------------

// MHealthReport is the batched result of one full monitoring cycle.
type MHealthReport struct {
	Overall   HealthStatus             `json:"overall"`
	Timestamp time.Time                `json:"timestamp"`
	Records   map[string]MHealthRecord `json:"records"`
}
