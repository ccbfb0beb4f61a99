package interfaces

import (
	"context"
)

// -----------------------------------------------------------------------------

// IPushSession is one live push connection. A session is never reused after
// it closes; the realtime client dials a new one instead.
type IPushSession interface {
	// Send writes one text frame
	Send(data []byte) error

	// Close closes the session locally. The close callback is not invoked.
	Close() error
}

// -----------------------------------------------------------------------------

// IPushDialer opens push sessions.
//
// onMessage receives every inbound frame in arrival order. onClose is called
// exactly once when the remote side ends the session; err is nil for a clean
// (normal) closure.
type IPushDialer interface {
	Dial(ctx context.Context, url string, onMessage func([]byte), onClose func(err error)) (IPushSession, error)
}
