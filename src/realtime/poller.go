package realtime

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"resilient-feed/src/models"
)

// -----------------------------------------------------------------------------

// activateFallbackLocked gives up on push delivery and starts polling.
func (c *Client) activateFallbackLocked() {
	c.usingFallback = true
	c.logger.Warning("%s : %d reconnects failed, falling back to polling every %s",
		c.name, c.attempts, c.config.PollInterval)
	c.startPollingLocked()
}

// -----------------------------------------------------------------------------

// pollRun is one poll loop. delivering is set while the loop goroutine is
// inside envelope handlers, so a handler that calls Disconnect does not wait
// on its own goroutine.
type pollRun struct {
	cancel     context.CancelFunc
	done       chan struct{}
	delivering atomic.Bool
}

// wait blocks until the loop has exited, unless it is called from one of the
// loop's own handlers. A nil run returns at once.
func (r *pollRun) wait() {
	if r == nil || r.delivering.Load() {
		return
	}
	<-r.done
}

// -----------------------------------------------------------------------------

func (c *Client) startPollingLocked() {
	if c.poll != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &pollRun{cancel: cancel, done: make(chan struct{})}
	c.poll = run

	go c.pollLoop(ctx, run)
}

// stopPollingLocked cancels the poll loop and returns it so the caller can
// wait for it to exit. The caller must not wait while holding c.mu.
func (c *Client) stopPollingLocked() *pollRun {
	run := c.poll
	if run == nil {
		return nil
	}
	run.cancel()
	c.poll = nil
	return run
}

// -----------------------------------------------------------------------------

// pollLoop polls once right away and then on every tick. Errors are logged
// and the loop carries on.
func (c *Client) pollLoop(ctx context.Context, run *pollRun) {
	defer close(run.done)

	c.pollOnce(ctx, run)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx, run)
		}
	}
}

// -----------------------------------------------------------------------------

// pollOnce polls every topic present in the subscription set at this tick.
func (c *Client) pollOnce(ctx context.Context, run *pollRun) {
	for _, sub := range c.Subscriptions() {
		if ctx.Err() != nil {
			return
		}

		target := c.pollURL(sub.Topic)
		if target == "" {
			c.logger.Error("%s : no poll endpoint for topic %s", c.name, sub.Topic)
			continue
		}

		pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
		payload, err := c.poller.Poll(pollCtx, target, sub.Params)
		cancel()

		c.metrics.RecordPoll(sub.Topic, err)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warning("%s : poll of %s failed: %v", c.name, sub.Topic, err)
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}

		run.delivering.Store(true)
		c.deliver(models.MRealtimeEnvelope{
			Topic:     sub.Topic,
			Payload:   asJSON(payload),
			Timestamp: c.now(),
			Origin:    models.OriginPoll,
		})
		run.delivering.Store(false)
	}
}

// -----------------------------------------------------------------------------

// pollURL maps a topic to its request/response equivalent.
func (c *Client) pollURL(topic string) string {
	if target, ok := c.config.PollEndpoints[topic]; ok && target != "" {
		return target
	}
	if c.config.PollBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.config.PollBaseURL, "/") + "/" + url.PathEscape(topic)
}

// asJSON keeps valid JSON as is and wraps anything else as a JSON string.
func asJSON(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return append(json.RawMessage(nil), payload...)
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}
