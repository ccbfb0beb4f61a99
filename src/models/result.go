package models

import "encoding/json"

// -----------------------------------------------------------------------------

// ResultSource tells where an orchestrated payload came from.
type ResultSource string

const (
	SourceCache      ResultSource = "cache"
	SourcePrimary    ResultSource = "primary"
	SourceFallback   ResultSource = "fallback"
	SourceStale      ResultSource = "stale"
	SourceSubstitute ResultSource = "substitute"
)

// -----------------------------------------------------------------------------

// MResult is what the request orchestrator hands back. It always carries a payload.
type MResult struct {
	Provider string          `json:"provider"`
	Endpoint string          `json:"endpoint"`
	Source   ResultSource    `json:"source"`
	Served   string          `json:"served_by,omitempty"` // endpoint name that answered, if any
	Payload  json.RawMessage `json:"payload"`
}

// -----------------------------------------------------------------------------

// Degraded reports whether the payload is not a fresh upstream answer.
func (r MResult) Degraded() bool {
	return r.Source == SourceStale || r.Source == SourceSubstitute
}
