package api

import (
	"bufio"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/auth"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/health"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/httputil"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/propagation"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/stream"
)

// Simulation is the running simulation as seen by the HTTP handlers.
type Simulation interface {
	Snapshot() sim.Snapshot
	Clock() sim.Clock
	Apply(cmd sim.Command, direction int) (sim.Clock, error)
	Ticked() bool
}

// ControlConfig holds the per-IP rate limit for control routes.
type ControlConfig struct {
	Rate  float64 // Requests per second per IP (default: 5).
	Burst int     // Burst size per IP (default: 10).
}

// Deps are the components the server routes requests to.
type Deps struct {
	Sim        Simulation
	Scene      *scene.Scene
	Ephemeris  *propagation.Propagator
	Stream     *stream.Handler
	Static     fs.FS // may be nil
	Control    ControlConfig
	TrustProxy bool // Honour X-Forwarded-For when identifying clients.
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Sim.Ticked))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/state", stateHandler(deps.Sim))
	mux.HandleFunc("GET /api/v1/bodies", bodiesHandler(deps.Scene))
	mux.HandleFunc("GET /api/v1/propagate/{body}", propagateHandler(deps.Scene))
	mux.HandleFunc("GET /api/v1/ephemeris/{body}", ephemerisHandler(logger, deps.Ephemeris))

	ctl := deps.Control
	if ctl.Rate <= 0 {
		ctl.Rate = 5
	}
	if ctl.Burst <= 0 {
		ctl.Burst = 10
	}
	limit := httputil.RateLimit(
		httputil.NewIPRateLimiter(rate.Limit(ctl.Rate), ctl.Burst),
		deps.TrustProxy,
		func(r *http.Request) {
			metrics.RecordRateLimited()
			logger.Warn("control rate limit exceeded", "path", r.URL.Path, "remote_ip", httputil.ClientIP(r, deps.TrustProxy))
		},
	)
	for _, cmd := range []sim.Command{sim.CommandPause, sim.CommandTrails, sim.CommandReset, sim.CommandSpeed} {
		mux.Handle("POST /api/v1/control/"+string(cmd), limit(controlHandler(logger, deps.Sim, cmd)))
	}

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleFrames)
		mux.HandleFunc("GET /api/v1/ws", deps.Stream.HandleWS)
	}

	mux.Handle("GET /", staticHandler(deps.Static))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the flusher and hijacker of the
// wrapped writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Flush() {
	http.NewResponseController(sr.ResponseWriter).Flush()
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(sr.ResponseWriter).Hijack()
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
