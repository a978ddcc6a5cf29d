package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/httputil"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxCommandSize = 512
)

// commandMessage is what a WebSocket client sends to control the simulation.
type commandMessage struct {
	Command   string `json:"command"`
	Direction int    `json:"direction"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same-origin by default; the embedded page is served from this host.
	CheckOrigin: sameOrigin,
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, host, ok := strings.Cut(origin, "://")
	return ok && strings.EqualFold(host, r.Host)
}

// HandleWS upgrades to a WebSocket that carries frames out and control
// commands in.
// GET /api/v1/ws?fps=30
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	fps, ok := h.parseFPS(r)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "invalid fps parameter, must be 1-60")
		return
	}

	ip, ok := h.acquire(w, r, transportWS)
	if !ok {
		return
	}
	defer h.limiter.release(ip)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		metrics.RecordStreamError(transportWS, "upgrade")
		h.logger.Debug("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	metrics.StreamOpened(transportWS)
	defer metrics.StreamClosed(transportWS)
	startTime := time.Now()
	h.logger.Info("stream connected", "transport", transportWS, "remote_ip", ip, "fps", fps)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan any, 8)
	go h.readCommands(ctx, cancel, conn, replies, ip)

	err = h.writeLoop(ctx, conn, fps, replies)
	h.logger.Info("stream disconnected",
		"transport", transportWS,
		"remote_ip", ip,
		"reason", err,
		"duration_seconds", int(time.Since(startTime).Seconds()),
	)
}

// readCommands applies every command the client sends and queues a reply for
// the writer. It cancels ctx when the connection fails.
func (h *Handler) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, replies chan<- any, ip string) {
	defer cancel()

	conn.SetReadLimit(maxCommandSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				metrics.RecordStreamError(transportWS, "read_error")
				h.logger.Debug("websocket read error", "remote_ip", ip, "error", err)
			}
			return
		}

		var reply any
		var cmd commandMessage
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply = errorMessage{Type: "error", Error: "malformed command"}
		} else if clock, err := h.sim.Apply(sim.Command(cmd.Command), cmd.Direction); err != nil {
			reply = errorMessage{Type: "error", Error: err.Error()}
		} else {
			metrics.RecordControl(cmd.Command, transportWS)
			reply = ackMessage{Type: "ack", Command: cmd.Command, Clock: clock}
		}

		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop is the only goroutine writing to conn. It sends the hello, then
// frames at fps, command replies and pings until ctx ends or a write fails.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, fps int, replies <-chan any) error {
	write := func(msgType string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			metrics.RecordStreamError(transportWS, "send_error")
			return err
		}
		metrics.RecordStreamMessage(transportWS, msgType, len(data))
		return nil
	}

	if err := write("hello", newHello(h.sim.Snapshot(), fps)); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var last frameKey
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return ctx.Err()

		case reply := <-replies:
			msgType := "ack"
			if _, isErr := reply.(errorMessage); isErr {
				msgType = "error"
			}
			if err := write(msgType, reply); err != nil {
				return err
			}

		case <-ticker.C:
			snap := h.sim.Snapshot()
			key := keyOf(snap)
			if key == last {
				continue
			}
			last = key
			if err := write("frame", newFrame(snap)); err != nil {
				return err
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return nil
				}
				metrics.RecordStreamError(transportWS, "ping")
				return err
			}
		}
	}
}
