package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepler_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kepler_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	simTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kepler_sim_ticks_total",
		Help: "Total number of simulation ticks that advanced the bodies.",
	})

	simTickDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kepler_sim_tick_duration_seconds",
		Help:    "Time spent computing one simulation tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	simSpeed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kepler_sim_speed",
		Help: "Current simulation speed multiplier.",
	})

	simPaused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kepler_sim_paused",
		Help: "1 if the simulation is paused, 0 otherwise.",
	})

	simTrailsEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kepler_sim_trails_enabled",
		Help: "1 if trails are recorded, 0 otherwise.",
	})

	simTrailPoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kepler_sim_trail_points",
		Help: "Total number of trail points held across all bodies.",
	})

	simBodies = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kepler_sim_bodies",
		Help: "Number of bodies in the loaded scene.",
	})

	controlCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepler_control_commands_total",
			Help: "Total number of simulation control commands.",
		},
		[]string{"command", "source"},
	)

	controlRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kepler_control_rate_limited_total",
		Help: "Total number of control requests rejected by the rate limiter.",
	})

	streamConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kepler_stream_connections_active",
			Help: "Number of open streaming connections.",
		},
		[]string{"transport"},
	)

	streamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepler_stream_messages_total",
			Help: "Total number of messages written to streaming clients.",
		},
		[]string{"transport", "type"},
	)

	streamBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepler_stream_bytes_total",
			Help: "Total number of bytes written to streaming clients.",
		},
		[]string{"transport"},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepler_stream_errors_total",
			Help: "Total number of streaming errors by reason.",
		},
		[]string{"transport", "reason"},
	)

	ephemerisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kepler_ephemeris_duration_seconds",
		Help:    "Time spent generating an ephemeris request.",
		Buckets: prometheus.DefBuckets,
	})

	ephemerisSamplesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kepler_ephemeris_samples_total",
		Help: "Total number of ephemeris positions computed.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		simTicksTotal,
		simTickDurationSeconds,
		simSpeed,
		simPaused,
		simTrailsEnabled,
		simTrailPoints,
		simBodies,
		controlCommandsTotal,
		controlRateLimitedTotal,
		streamConnectionsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
		ephemerisDurationSeconds,
		ephemerisSamplesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick records one advancing tick and the trail points held after it.
func RecordTick(duration time.Duration, trailPoints int) {
	simTicksTotal.Inc()
	simTickDurationSeconds.Observe(duration.Seconds())
	simTrailPoints.Set(float64(trailPoints))
}

// SetClock publishes the simulation clock state.
func SetClock(speed float64, paused, trailsEnabled bool) {
	simSpeed.Set(speed)
	simPaused.Set(boolToFloat(paused))
	simTrailsEnabled.Set(boolToFloat(trailsEnabled))
}

// SetTrailPoints publishes the total trail size, e.g. after trails are cleared.
func SetTrailPoints(n int) {
	simTrailPoints.Set(float64(n))
}

// SetBodies publishes the number of bodies in the scene.
func SetBodies(n int) {
	simBodies.Set(float64(n))
}

// RecordControl counts a control command. source is "http" or "ws".
func RecordControl(command, source string) {
	controlCommandsTotal.WithLabelValues(command, source).Inc()
}

// RecordRateLimited counts a control request rejected by the rate limiter.
func RecordRateLimited() {
	controlRateLimitedTotal.Inc()
}

// StreamOpened and StreamClosed track open connections per transport.
func StreamOpened(transport string) {
	streamConnectionsActive.WithLabelValues(transport).Inc()
}

func StreamClosed(transport string) {
	streamConnectionsActive.WithLabelValues(transport).Dec()
}

// RecordStreamMessage counts one message of the given type and its size.
func RecordStreamMessage(transport, msgType string, bytes int) {
	streamMessagesTotal.WithLabelValues(transport, msgType).Inc()
	streamBytesTotal.WithLabelValues(transport).Add(float64(bytes))
}

// RecordStreamError counts a streaming failure.
func RecordStreamError(transport, reason string) {
	streamErrorsTotal.WithLabelValues(transport, reason).Inc()
}

// RecordEphemeris records the duration and size of one ephemeris request.
func RecordEphemeris(duration time.Duration, samples int) {
	ephemerisDurationSeconds.Observe(duration.Seconds())
	ephemerisSamplesTotal.Add(float64(samples))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection. A hijacked
// request is counted as 101 since the upgrader writes its handshake
// straight to the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", rw.ResponseWriter)
	}
	conn, brw, err := h.Hijack()
	if err == nil {
		rw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, brw, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var knownRoutes = map[string]bool{
	"/":                      true,
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/index.html":            true,
	"/app.js":                true,
	"/styles.css":            true,
	"/api/v1/state":          true,
	"/api/v1/bodies":         true,
	"/api/v1/control/pause":  true,
	"/api/v1/control/trails": true,
	"/api/v1/control/reset":  true,
	"/api/v1/control/speed":  true,
	"/api/v1/stream/frames":  true,
	"/api/v1/ws":             true,
}

// parameterized routes collapse their last segment to a placeholder.
var paramPrefixes = []struct {
	prefix string
	label  string
}{
	{"/api/v1/propagate/", "/api/v1/propagate/{body}"},
	{"/api/v1/ephemeris/", "/api/v1/ephemeris/{body}"},
}

// normalizeRoute maps a request path to a bounded set of label values so that
// body names and scanner traffic cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, p := range paramPrefixes {
		if rest, ok := strings.CutPrefix(path, p.prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return p.label
		}
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
