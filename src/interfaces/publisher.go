package interfaces

import "resilient-feed/src/models"

// -----------------------------------------------------------------------------

// IPublisher fans resilience events out to a message broker
type IPublisher interface {
	// Connect establishes connection to the message broker
	Connect() error

	// Disconnect closes the connection to the message broker
	Disconnect() error

	// IsConnected returns the current connection status
	IsConnected() bool

	// OnEnvelope publishes a realtime update
	OnEnvelope(envelope models.MRealtimeEnvelope)

	// OnHealthChanged publishes a single endpoint status change
	OnHealthChanged(record models.MHealthRecord)

	// OnHealthReport publishes the batched result of one health cycle
	OnHealthReport(report models.MHealthReport)

	// OnBreakerTransition publishes a circuit breaker state change
	OnBreakerTransition(transition models.MBreakerTransition)

	// OnConnectionStatus publishes a realtime connection status change
	OnConnectionStatus(status models.MConnectionStatus)
}
