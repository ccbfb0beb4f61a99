package models

import (
	"encoding/json"
	"time"
)

// -----------------------------------------------------------------------------

// Origin identifies which transport produced an envelope.
type Origin string

const (
	OriginPush Origin = "push"
	OriginPoll Origin = "poll"
)

// -----------------------------------------------------------------------------

// MSubscription is a topic the realtime client keeps delivering.
type MSubscription struct {
	Topic  string   `json:"topic" yaml:"topic"`
	Params []string `json:"params,omitempty" yaml:"params"`
}

// -----------------------------------------------------------------------------

// MRealtimeEnvelope is the uniform event handed to subscribers regardless of transport.
// It is built fresh for each update and never mutated afterwards.
type MRealtimeEnvelope struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    Origin          `json:"origin"`
}

// -----------------------------------------------------------------------------

// MConnectionStatus is a read-only snapshot of the realtime client.
type MConnectionStatus struct {
	Connected         bool      `json:"connected"`
	Connecting        bool      `json:"connecting"`
	UsingFallback     bool      `json:"using_fallback"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastConnected     time.Time `json:"last_connected,omitempty"`
	Error             string    `json:"error,omitempty"`
}
