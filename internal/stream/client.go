package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
)

const writeWait = 10 * time.Second

// sseClient manages a single SSE connection's write operations.
type sseClient struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendJSON marshals v as JSON and sends it as an SSE "data:" message.
func (c *sseClient) sendJSON(msgType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	// Extend write deadline before each write to prevent timeout on long-lived connections.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	metrics.RecordStreamMessage(transportSSE, msgType, n)
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *sseClient) sendRetry(ms int) error {
	n, err := fmt.Fprintf(c.w, "retry: %d\n\n", ms)
	if err != nil {
		return fmt.Errorf("retry write: %w", err)
	}
	c.flusher.Flush()
	c.bytesSent += int64(n)
	return nil
}

// sendKeepalive sends an SSE comment line to keep the connection alive.
func (c *sseClient) sendKeepalive() error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.RecordStreamMessage(transportSSE, "keepalive", n)
	return nil
}
