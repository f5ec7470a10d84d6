package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/orrery/internal/metrics"
)

// client manages a single SSE connection's writes.
type client struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger
	// bandwidth paces writes; nil means unlimited.
	bandwidth *rate.Limiter

	messagesSent int64
	bytesSent    int64
}

// newBandwidthLimiter returns a bytes-per-second limiter, or nil for 0.
func newBandwidthLimiter(bytesPerSecond int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)
}

// pace blocks until n bytes fit the bandwidth budget. Messages larger than
// the burst are paced in burst-sized pieces.
func (c *client) pace(n int) error {
	if c.bandwidth == nil {
		return nil
	}
	burst := c.bandwidth.Burst()
	for n > 0 {
		k := min(n, burst)
		if err := c.bandwidth.WaitN(c.ctx, k); err != nil {
			return fmt.Errorf("bandwidth wait: %w", err)
		}
		n -= k
	}
	return nil
}

// sendJSON marshals v and sends it as an SSE "data:" message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendRaw(data)
}

// sendRaw sends pre-encoded JSON as "data: {json}\n\n".
func (c *client) sendRaw(data []byte) error {
	if err := c.pace(len(data) + 8); err != nil {
		return err
	}
	if err := c.rc.SetWriteDeadline(time.Now().Add(30 * time.Second)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendKeepalive sends an SSE comment line.
func (c *client) sendKeepalive() error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(30 * time.Second)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return nil
}
