// Package stream pushes simulation frames to browsers over Server-Sent
// Events (GET /api/v1/stream/frames) and WebSocket (GET /api/v1/ws).
//
// SSE message format:
//
//	data: {"type":"frame","scene":"solar-system","clock":{...},"sim_time":12.5,"bodies":[...]}\n\n
//
// First message is always a hello:
//
//	data: {"type":"hello","scene":"solar-system","star":{...},"bodies":5,"fps":30,"clock":{...}}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval when no frame
// went out. Reconnecting clients receive a fresh hello on each connection.
package stream

import (
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/httputil"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
)

const (
	transportSSE = "sse"
	transportWS  = "ws"

	minFPS = 1
	maxFPS = 60
)

// Simulation is the part of the simulation a stream reads and controls.
type Simulation interface {
	Snapshot() sim.Snapshot
	Apply(cmd sim.Command, direction int) (sim.Clock, error)
}

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive interval (default: 15s).
	DefaultFPS         int           // Frame rate when the client does not ask (default: 30).
	TrustProxy         bool          // Honour X-Forwarded-For for per-IP limits.
}

// Handler manages streaming connections.
type Handler struct {
	sim     Simulation
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(s Simulation, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 15 * time.Second
	}
	if config.DefaultFPS < minFPS || config.DefaultFPS > maxFPS {
		config.DefaultFPS = 30
	}
	return &Handler{
		sim:     s,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

// parseFPS reads the fps query parameter, falling back to the default.
func (h *Handler) parseFPS(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("fps")
	if v == "" {
		return h.config.DefaultFPS, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minFPS || n > maxFPS {
		return 0, false
	}
	return n, true
}

// acquire reserves a connection slot for the client of r, answering 429 when
// none is left.
func (h *Handler) acquire(w http.ResponseWriter, r *http.Request, transport string) (string, bool) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.RecordStreamError(transport, "rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"transport", transport,
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return "", false
	}
	return ip, true
}

// HandleFrames serves the SSE frame stream.
// GET /api/v1/stream/frames?fps=30
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	fps, ok := h.parseFPS(r)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "invalid fps parameter, must be 1-60")
		return
	}

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ip, ok := h.acquire(w, r, transportSSE)
	if !ok {
		return
	}

	metrics.StreamOpened(transportSSE)
	startTime := time.Now()
	h.logger.Info("stream connected",
		"transport", transportSSE,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"fps", fps,
	)

	c := &sseClient{w: w, flusher: flusher, rc: http.NewResponseController(w), logger: h.logger}

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.StreamClosed(transportSSE)
		h.logger.Info("stream disconnected",
			"transport", transportSSE,
			"remote_ip", ip,
			"messages", c.messagesSent,
			"bytes", c.bytesSent,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection; each write
	// sets its own deadline.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// Jittered retry interval (3-7s) prevents thundering-herd reconnection
	// storms when the server restarts.
	if err := c.sendRetry(3000 + rand.Intn(4000)); err != nil {
		metrics.RecordStreamError(transportSSE, "send_error")
		return
	}

	snap := h.sim.Snapshot()
	if err := c.sendJSON("hello", newHello(snap, fps)); err != nil {
		metrics.RecordStreamError(transportSSE, "send_error")
		h.logger.Warn("stream send error (hello)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	var last frameKey
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			snap := h.sim.Snapshot()
			// A paused simulation produces identical frames; skip them and
			// let keep-alives hold the connection open.
			key := keyOf(snap)
			if key == last {
				continue
			}
			last = key

			if err := c.sendJSON("frame", newFrame(snap)); err != nil {
				metrics.RecordStreamError(transportSSE, "send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.RecordStreamError(transportSSE, "send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// Message payload types shared by SSE and WebSocket.

type helloMessage struct {
	Type   string     `json:"type"`
	Scene  string     `json:"scene"`
	Star   scene.Star `json:"star"`
	Bodies int        `json:"bodies"`
	FPS    int        `json:"fps"`
	Clock  sim.Clock  `json:"clock"`
}

type frameMessage struct {
	Type string `json:"type"`
	sim.Snapshot
}

type ackMessage struct {
	Type    string    `json:"type"`
	Command string    `json:"command"`
	Clock   sim.Clock `json:"clock"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newHello(snap sim.Snapshot, fps int) helloMessage {
	return helloMessage{
		Type:   "hello",
		Scene:  snap.Scene,
		Star:   snap.Star,
		Bodies: len(snap.Bodies),
		FPS:    fps,
		Clock:  snap.Clock,
	}
}

func newFrame(snap sim.Snapshot) frameMessage {
	return frameMessage{Type: "frame", Snapshot: snap}
}

// frameKey identifies the visible state of a snapshot well enough to drop
// duplicates.
type frameKey struct {
	simTime     float64
	clock       sim.Clock
	trailPoints int
	valid       bool
}

func keyOf(snap sim.Snapshot) frameKey {
	return frameKey{simTime: snap.SimTime, clock: snap.Clock, trailPoints: snap.TrailPoints(), valid: true}
}
