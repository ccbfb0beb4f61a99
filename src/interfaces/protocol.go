package interfaces

import "resilient-feed/src/models"

// -----------------------------------------------------------------------------

// IProtocol translates between subscriptions and push frames.
type IProtocol interface {
	// GetName returns the protocol name
	GetName() string

	// SubscribeMessage builds the frame announcing a subscription
	SubscribeMessage(sub models.MSubscription) ([]byte, error)

	// UnsubscribeMessage builds the frame withdrawing a subscription
	UnsubscribeMessage(topic string) ([]byte, error)

	// Decode parses an inbound frame. A nil envelope with a nil error means the
	// frame carried no data (ack, heartbeat).
	Decode(frame []byte) (*models.MRealtimeEnvelope, error)
}
