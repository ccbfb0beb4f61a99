package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resilient-feed/src/backoff"
	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/metrics"
	"resilient-feed/src/models"
	"resilient-feed/src/observer"
)

// ErrNotConnected is returned when a frame cannot be sent for lack of a session.
var ErrNotConnected = errors.New("push session not connected")

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// timerHandle is the part of *time.Timer the client needs.
type timerHandle interface {
	Stop() bool
}

// -----------------------------------------------------------------------------

// Client keeps a single push session alive and degrades to polling.
//
// A transport drop schedules one reconnect after base_delay * 2^attempts,
// capped at max_delay. Once max_reconnect_attempts reconnects have failed the
// client stops reconnecting and polls every live subscription instead. Every
// successful connect replays the subscription set in insertion order.
type Client struct {
	name     string
	logger   *logger.Logger
	config   models.MRealtimeConfig
	dialer   interfaces.IPushDialer
	protocol interfaces.IProtocol
	poller   interfaces.IPoller
	metrics  *metrics.Metrics

	now       func() time.Time
	afterFunc func(time.Duration, func()) timerHandle

	mu            sync.Mutex
	state         connState
	wantConnected bool
	usingFallback bool
	attempts      int
	lastConnected time.Time
	lastError     string
	session       interfaces.IPushSession
	epoch         uint64 // bumped whenever the current session or dial is abandoned
	dialCancel    context.CancelFunc

	reconnectTimer timerHandle
	reconnectSeq   uint64

	poll *pollRun

	subscriptions []models.MSubscription

	envelopes *observer.Registry[models.MRealtimeEnvelope]
	statuses  *observer.Registry[models.MConnectionStatus]
}

// -----------------------------------------------------------------------------

// NewClient creates a disconnected client. m may be nil.
func NewClient(config models.MRealtimeConfig, dialer interfaces.IPushDialer, protocol interfaces.IProtocol, poller interfaces.IPoller, log *logger.Logger, m *metrics.Metrics) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		name:     "realtime",
		logger:   log,
		config:   config,
		dialer:   dialer,
		protocol: protocol,
		poller:   poller,
		metrics:  m,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) timerHandle {
			return time.AfterFunc(d, f)
		},
		envelopes: observer.New[models.MRealtimeEnvelope](log, "realtime-envelopes"),
		statuses:  observer.New[models.MConnectionStatus](log, "realtime-status"),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Connect opens the push session. A failed attempt is reported and also
// enters the reconnect schedule. Connecting while already connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.wantConnected = true
	c.stopReconnectTimerLocked()
	c.mu.Unlock()

	return c.dial(ctx)
}

// -----------------------------------------------------------------------------

// Disconnect closes the session, cancels any pending reconnect and stops
// polling. No reconnect follows a local disconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.wantConnected = false
	c.epoch++
	c.stopReconnectTimerLocked()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}

	session := c.session
	c.session = nil
	c.state = stateDisconnected
	c.usingFallback = false
	c.attempts = 0
	poll := c.stopPollingLocked()
	status := c.statusLocked()
	c.mu.Unlock()

	var err error
	if session != nil {
		err = session.Close()
	}
	poll.wait()

	c.logger.Info("%s : disconnected", c.name)
	c.statuses.Notify(status)
	return err
}

// -----------------------------------------------------------------------------

func (c *Client) dial(ctx context.Context) error {
	// 1. Move to connecting
	c.mu.Lock()
	if c.state != stateDisconnected || !c.wantConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = stateConnecting
	c.epoch++
	epoch := c.epoch

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()
	c.dialCancel = cancel

	status := c.statusLocked()
	c.mu.Unlock()
	c.statuses.Notify(status)

	// 2. Dial outside the lock
	session, err := c.dialer.Dial(dialCtx, c.config.Endpoint,
		func(frame []byte) { c.handleFrame(epoch, frame) },
		func(closeErr error) { c.handleClose(epoch, closeErr) })

	c.mu.Lock()
	c.dialCancel = nil

	// 3. Abandoned while dialing (Disconnect, or the session already dropped)
	if epoch != c.epoch {
		c.mu.Unlock()
		if session != nil {
			_ = session.Close()
		}
		return nil
	}

	// 4. Failed
	if err != nil {
		c.state = stateDisconnected
		c.lastError = err.Error()
		c.logger.Warning("%s : connect to %s failed: %v", c.name, c.config.Endpoint, err)
		c.scheduleReconnectLocked()
		status = c.statusLocked()
		c.mu.Unlock()
		c.statuses.Notify(status)
		return fmt.Errorf("failed to connect realtime session: %w", err)
	}

	// 5. Connected: reset, stop polling, replay
	c.session = session
	c.state = stateConnected
	c.attempts = 0
	c.usingFallback = false
	c.lastConnected = c.now()
	c.lastError = ""
	c.stopPollingLocked()
	c.replayLocked()
	status = c.statusLocked()
	c.mu.Unlock()

	c.logger.Info("%s : connected to %s", c.name, c.config.Endpoint)
	c.statuses.Notify(status)
	return nil
}

// -----------------------------------------------------------------------------

// replayLocked re-issues every subscription in insertion order. c.mu is held so
// no Subscribe can interleave.
func (c *Client) replayLocked() {
	for _, sub := range c.subscriptions {
		if err := c.sendSubscribeLocked(sub); err != nil {
			c.logger.Warning("%s : replay of %s failed: %v", c.name, sub.Topic, err)
		}
	}
	if len(c.subscriptions) > 0 {
		c.logger.Info("%s : replayed %d subscriptions", c.name, len(c.subscriptions))
	}
}

// -----------------------------------------------------------------------------
// Session callbacks
// -----------------------------------------------------------------------------

func (c *Client) handleClose(epoch uint64, closeErr error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}

	c.epoch++
	c.session = nil
	c.state = stateDisconnected

	if closeErr == nil {
		// the remote ended the session on purpose
		c.logger.Info("%s : remote closed the session cleanly, not reconnecting", c.name)
	} else {
		c.lastError = closeErr.Error()
		c.logger.Warning("%s : connection lost: %v", c.name, closeErr)
		c.scheduleReconnectLocked()
	}

	status := c.statusLocked()
	c.mu.Unlock()
	c.statuses.Notify(status)
}

// -----------------------------------------------------------------------------

func (c *Client) handleFrame(epoch uint64, frame []byte) {
	c.mu.Lock()
	current := epoch == c.epoch
	c.mu.Unlock()
	if !current {
		return
	}

	envelope, err := c.protocol.Decode(frame)
	if err != nil {
		c.logger.Warning("%s : dropping frame: %v", c.name, err)
		return
	}
	if envelope == nil {
		return
	}
	c.deliver(*envelope)
}

// -----------------------------------------------------------------------------
// Reconnect schedule
// -----------------------------------------------------------------------------

// scheduleReconnectLocked arms the single reconnect timer, or switches to
// polling once the attempt budget is spent.
func (c *Client) scheduleReconnectLocked() {
	if !c.wantConnected || c.usingFallback || c.reconnectTimer != nil {
		return
	}

	if c.attempts >= c.config.MaxReconnectAttempts {
		c.activateFallbackLocked()
		return
	}

	delay := backoff.Capped(c.config.BaseDelay, c.attempts, c.config.MaxDelay)
	c.attempts++
	c.reconnectSeq++
	seq := c.reconnectSeq

	c.reconnectTimer = c.afterFunc(delay, func() { c.onReconnectTimer(seq) })
	c.metrics.RecordReconnect()
	c.logger.Info("%s : reconnect %d/%d in %s", c.name, c.attempts, c.config.MaxReconnectAttempts, delay)
}

// -----------------------------------------------------------------------------

func (c *Client) onReconnectTimer(seq uint64) {
	c.mu.Lock()
	if seq != c.reconnectSeq || c.reconnectTimer == nil {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.mu.Unlock()

	// failures re-enter the schedule from dial
	_ = c.dial(context.Background())
}

// -----------------------------------------------------------------------------

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectSeq++
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Subscribe adds topic to the subscription set or replaces its params. The
// set is updated whatever the transport state; when connected the subscribe
// frame is also sent right away.
func (c *Client) Subscribe(topic string, params []string) {
	if topic == "" {
		c.logger.Warning("%s : ignoring subscription with empty topic", c.name)
		return
	}
	sub := models.MSubscription{Topic: topic, Params: append([]string(nil), params...)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexLocked(topic); i >= 0 {
		c.subscriptions[i] = sub
	} else {
		c.subscriptions = append(c.subscriptions, sub)
	}

	if c.state == stateConnected {
		if err := c.sendSubscribeLocked(sub); err != nil {
			c.logger.Warning("%s : subscribe %s not forwarded: %v", c.name, topic, err)
		}
	}
}

// -----------------------------------------------------------------------------

// Unsubscribe removes topic. Polling drops it on its next tick.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(topic)
	if i < 0 {
		return
	}
	c.subscriptions = append(c.subscriptions[:i], c.subscriptions[i+1:]...)

	if c.state == stateConnected {
		frame, err := c.protocol.UnsubscribeMessage(topic)
		if err == nil {
			err = c.sendLocked(frame)
		}
		if err != nil {
			c.logger.Warning("%s : unsubscribe %s not forwarded: %v", c.name, topic, err)
		}
	}
}

// -----------------------------------------------------------------------------

// Subscriptions returns the subscription set in insertion order.
func (c *Client) Subscriptions() []models.MSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]models.MSubscription, len(c.subscriptions))
	for i, sub := range c.subscriptions {
		subs[i] = models.MSubscription{Topic: sub.Topic, Params: append([]string(nil), sub.Params...)}
	}
	return subs
}

// -----------------------------------------------------------------------------

func (c *Client) indexLocked(topic string) int {
	for i, sub := range c.subscriptions {
		if sub.Topic == topic {
			return i
		}
	}
	return -1
}

func (c *Client) sendSubscribeLocked(sub models.MSubscription) error {
	frame, err := c.protocol.SubscribeMessage(sub)
	if err != nil {
		return err
	}
	return c.sendLocked(frame)
}

func (c *Client) sendLocked(frame []byte) error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.session.Send(frame)
}

// -----------------------------------------------------------------------------
// Status
// -----------------------------------------------------------------------------

// IsConnected reports whether updates are flowing, by push or by polling.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected || c.usingFallback
}

// GetConnectionStatus returns a snapshot of the connection state.
func (c *Client) GetConnectionStatus() models.MConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Client) statusLocked() models.MConnectionStatus {
	return models.MConnectionStatus{
		Connected:         c.state == stateConnected,
		Connecting:        c.state == stateConnecting,
		UsingFallback:     c.usingFallback,
		ReconnectAttempts: c.attempts,
		LastConnected:     c.lastConnected,
		Error:             c.lastError,
	}
}

// -----------------------------------------------------------------------------
// Observers
// -----------------------------------------------------------------------------

// OnEnvelope registers a handler for every delivered envelope.
func (c *Client) OnEnvelope(handler func(models.MRealtimeEnvelope)) string {
	return c.envelopes.Subscribe(handler)
}

// OnTopic registers a handler for the envelopes of one topic.
func (c *Client) OnTopic(topic string, handler func(models.MRealtimeEnvelope)) string {
	return c.envelopes.Subscribe(func(envelope models.MRealtimeEnvelope) {
		if envelope.Topic == topic {
			handler(envelope)
		}
	})
}

// OnConnectionStatus registers a handler for connection status changes.
func (c *Client) OnConnectionStatus(handler func(models.MConnectionStatus)) string {
	return c.statuses.Subscribe(handler)
}

// RemoveHandler removes a handler registered with any On* method.
func (c *Client) RemoveHandler(token string) bool {
	return c.envelopes.Unsubscribe(token) || c.statuses.Unsubscribe(token)
}

// -----------------------------------------------------------------------------

func (c *Client) deliver(envelope models.MRealtimeEnvelope) {
	c.metrics.RecordEnvelope(envelope)
	c.envelopes.Notify(envelope)
}
