package interfaces

import (
	"context"

	"resilient-feed/src/models"
)

// -----------------------------------------------------------------------------

// IFetcher performs one request against one upstream endpoint.
// Non-2xx replies and transport failures both come back as errors.
type IFetcher interface {
	Fetch(ctx context.Context, endpoint models.MEndpointConfig, path string, params map[string]string) ([]byte, error)
}

// -----------------------------------------------------------------------------

// IProber performs a lightweight liveness request against an endpoint.
type IProber interface {
	Probe(ctx context.Context, endpoint models.MEndpointConfig) error
}

// -----------------------------------------------------------------------------

// IPoller fetches one topic snapshot over plain request/response while the
// push channel is unavailable.
type IPoller interface {
	Poll(ctx context.Context, url string, params []string) ([]byte, error)
}
