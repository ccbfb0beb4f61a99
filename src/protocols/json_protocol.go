package protocols

import (
	"encoding/json"
	"fmt"
	"time"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/models"
)

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// JSONProtocol is the default push wire format.
//
// Outbound:
//
//	{"action":"subscribe","topic":"price-update","params":["BTC"]}
//	{"action":"unsubscribe","topic":"price-update"}
//
// Inbound data frames carry "topic" and "data", optionally "timestamp" in
// unix milliseconds. Frames with a "type" of ack, subscribed, unsubscribed,
// heartbeat or pong carry no data.
type JSONProtocol struct {
	name       string
	logger     *logger.Logger
	serializer interfaces.ISerializer
	now        func() time.Time
}

type outboundFrame struct {
	Action string   `json:"action"`
	Topic  string   `json:"topic"`
	Params []string `json:"params,omitempty"`
}

type inboundFrame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Error     string          `json:"error"`
}

// -----------------------------------------------------------------------------
// CONSTRUCTOR AND REGISTRATION
// -----------------------------------------------------------------------------

func init() {
	if err := Register("json", NewJSONProtocol); err != nil {
		fmt.Printf("Error registering json protocol: %v\n", err)
	}
}

// -----------------------------------------------------------------------------

// NewJSONProtocol matches IProtocolConstructor.
func NewJSONProtocol(log *logger.Logger, serializer interfaces.ISerializer) interfaces.IProtocol {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &JSONProtocol{
		name:       "json",
		logger:     log,
		serializer: serializer,
		now:        time.Now,
	}
}

// -----------------------------------------------------------------------------
// IProtocol IMPLEMENTATION
// -----------------------------------------------------------------------------

// GetName returns the protocol name
func (p *JSONProtocol) GetName() string {
	return p.name
}

// -----------------------------------------------------------------------------

// SubscribeMessage creates the subscription frame for one topic
func (p *JSONProtocol) SubscribeMessage(sub models.MSubscription) ([]byte, error) {
	frame, err := p.serializer.Marshal(outboundFrame{
		Action: "subscribe",
		Topic:  sub.Topic,
		Params: sub.Params,
	})
	if err != nil {
		p.logger.Error("%s : failed to serialize subscription message for %s: %v", p.name, sub.Topic, err)
		return nil, fmt.Errorf("failed to serialize subscription message: %w", err)
	}
	return frame, nil
}

// -----------------------------------------------------------------------------

// UnsubscribeMessage creates the unsubscribe frame for one topic
func (p *JSONProtocol) UnsubscribeMessage(topic string) ([]byte, error) {
	frame, err := p.serializer.Marshal(outboundFrame{
		Action: "unsubscribe",
		Topic:  topic,
	})
	if err != nil {
		p.logger.Error("%s : failed to serialize unsubscription message for %s: %v", p.name, topic, err)
		return nil, fmt.Errorf("failed to serialize unsubscription message: %w", err)
	}
	return frame, nil
}

// -----------------------------------------------------------------------------

// Decode turns a data frame into a push envelope.
func (p *JSONProtocol) Decode(message []byte) (*models.MRealtimeEnvelope, error) {
	var frame inboundFrame
	if err := p.serializer.Unmarshal(message, &frame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	// 1. Control frames
	switch frame.Type {
	case "ack", "subscribed", "unsubscribed", "heartbeat", "pong":
		return nil, nil
	case "error":
		return nil, fmt.Errorf("server error for topic '%s': %s", frame.Topic, frame.Error)
	}

	// 2. Data frames
	if frame.Topic == "" {
		return nil, fmt.Errorf("missing topic field")
	}
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("missing data field for topic '%s'", frame.Topic)
	}

	timestamp := p.now()
	if frame.Timestamp > 0 {
		timestamp = time.UnixMilli(frame.Timestamp)
	}

	return &models.MRealtimeEnvelope{
		Topic:     frame.Topic,
		Payload:   append(json.RawMessage(nil), frame.Data...),
		Timestamp: timestamp,
		Origin:    models.OriginPush,
	}, nil
}
