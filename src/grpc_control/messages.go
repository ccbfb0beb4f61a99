package grpc_control

import "resilient-feed/src/models"

// -----------------------------------------------------------------------------
// Control messages
// -----------------------------------------------------------------------------

type StatusRequest struct{}

type StatusResponse struct {
	Overall       models.HealthStatus                    `json:"overall"`
	Health        map[string]models.MHealthRecord        `json:"health"`
	Breakers      map[string]models.MCircuitBreakerState `json:"breakers"`
	Connection    *models.MConnectionStatus              `json:"connection,omitempty"`
	Subscriptions []models.MSubscription                 `json:"subscriptions,omitempty"`
	Timestamp     int64                                  `json:"timestamp"`
}

type CheckHealthRequest struct{}

type SubscribeRequest struct {
	Topic  string   `json:"topic"`
	Params []string `json:"params,omitempty"`
}

type UnsubscribeRequest struct {
	Topic string `json:"topic"`
}

type DataRequest struct {
	Provider string            `json:"provider"`
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params,omitempty"`
	NoCache  bool              `json:"no_cache,omitempty"`
}

// ControlResponse is the outcome of a mutating call. Failures are reported
// in the body with an ErrorCode, not as RPC errors.
type ControlResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	ErrorCode string `json:"error_code,omitempty"`
}
