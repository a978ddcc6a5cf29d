package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/auth"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/propagation"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testDeps() (Deps, *sim.Runner) {
	logger := testLogger()
	sc := scene.Default()
	runner := sim.NewRunner(sim.NewEngine(sc, 0, logger), sim.RunnerConfig{}, logger)
	return Deps{
		Sim:       runner,
		Scene:     sc,
		Ephemeris: propagation.NewPropagator(sc, propagation.Config{Workers: 2, MaxSamples: 1000}, logger),
		Static: fstest.MapFS{
			"index.html": {Data: []byte("<!doctype html><title>orbits</title>")},
			"app.js":     {Data: []byte("console.log('orbits')")},
		},
	}, runner
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestStateHandler(t *testing.T) {
	deps, runner := testDeps()
	runner.Step()
	h := NewHandler(testLogger(), auth.Config{}, deps)

	w := serve(h, "GET", "/api/v1/state")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	var snap sim.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Bodies) != len(deps.Scene.Bodies) {
		t.Errorf("bodies = %d, want %d", len(snap.Bodies), len(deps.Scene.Bodies))
	}
	if snap.Clock.Speed != 1 || snap.Clock.Paused {
		t.Errorf("clock = %+v, want default", snap.Clock)
	}
}

func TestBodiesHandler(t *testing.T) {
	deps, _ := testDeps()
	h := NewHandler(testLogger(), auth.Config{}, deps)

	w := serve(h, "GET", "/api/v1/bodies")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp bodiesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TimeUnit != "24h0m0s" {
		t.Errorf("time_unit = %q, want 24h0m0s", resp.TimeUnit)
	}
	if len(resp.Bodies) != len(deps.Scene.Bodies) {
		t.Fatalf("bodies = %d, want %d", len(resp.Bodies), len(deps.Scene.Bodies))
	}
	for _, b := range resp.Bodies {
		if len(b.Outline) != pathSamples {
			t.Errorf("%s outline = %d points, want %d", b.Name, len(b.Outline), pathSamples)
		}
		if b.MeanMotion <= 0 {
			t.Errorf("%s mean motion = %v", b.Name, b.MeanMotion)
		}
	}
}

func TestPropagateHandler(t *testing.T) {
	deps, _ := testDeps()
	h := NewHandler(testLogger(), auth.Config{}, deps)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"epoch", "/api/v1/propagate/Earth", http.StatusOK},
		{"time and speed", "/api/v1/propagate/Mars?t=10&speed=2", http.StatusOK},
		{"unknown body", "/api/v1/propagate/Pluto", http.StatusNotFound},
		{"bad time", "/api/v1/propagate/Earth?t=abc", http.StatusBadRequest},
		{"infinite speed", "/api/v1/propagate/Earth?speed=Inf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, "GET", tt.target)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	w := serve(h, "GET", "/api/v1/propagate/Earth?t=0")
	var resp propagateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	earth, _ := deps.Scene.Body("Earth")
	if math.Abs(resp.Radius-resp.Position.Norm()) > 1e-9 {
		t.Errorf("radius %v does not match position %+v", resp.Radius, resp.Position)
	}
	if math.Abs(resp.MeanAnomaly-earth.Elements.MeanAnomalyAtEpoch) > 1e-12 {
		t.Errorf("mean anomaly at epoch = %v, want %v", resp.MeanAnomaly, earth.Elements.MeanAnomalyAtEpoch)
	}
}

// TestEphemerisBudget verifies that requests exceeding the sample budget are
// rejected with 400 instead of consuming unbounded CPU.
func TestEphemerisBudget(t *testing.T) {
	deps, _ := testDeps()
	h := NewHandler(testLogger(), auth.Config{}, deps)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"default params", "", http.StatusOK},
		{"within budget", "?count=1000&step=0.5", http.StatusOK},
		{"budget exceeded", "?count=1001", http.StatusBadRequest},
		{"zero count", "?count=0", http.StatusBadRequest},
		{"non-numeric count", "?count=many", http.StatusBadRequest},
		{"zero step", "?step=0", http.StatusBadRequest},
		{"negative speed", "?speed=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, "GET", "/api/v1/ephemeris/Venus"+tt.query)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode(t, w)
			if tt.wantStatus == http.StatusBadRequest {
				if _, ok := resp["error"]; !ok {
					t.Error("error response missing 'error' field")
				}
			}
			if tt.name == "budget exceeded" && resp["max_samples"].(float64) != 1000 {
				t.Errorf("max_samples = %v, want 1000", resp["max_samples"])
			}
		})
	}

	w := serve(h, "GET", "/api/v1/ephemeris/Ceres")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown body status = %d, want 404", w.Code)
	}

	w = serve(h, "GET", "/api/v1/ephemeris/Venus?count=5&step=2")
	var table propagation.Table
	if err := json.NewDecoder(w.Body).Decode(&table); err != nil {
		t.Fatal(err)
	}
	if table.Body != "Venus" || len(table.Samples) != 5 {
		t.Fatalf("table = %s with %d samples, want Venus with 5", table.Body, len(table.Samples))
	}
	if table.Samples[4].Time != 8 {
		t.Errorf("last sample t = %v, want 8", table.Samples[4].Time)
	}
}

func TestControlRoutes(t *testing.T) {
	deps, runner := testDeps()
	h := NewHandler(testLogger(), auth.Config{}, deps)

	tests := []struct {
		target     string
		wantStatus int
		check      func(sim.Clock) bool
	}{
		{"/api/v1/control/pause", http.StatusOK, func(c sim.Clock) bool { return c.Paused }},
		{"/api/v1/control/pause", http.StatusOK, func(c sim.Clock) bool { return !c.Paused }},
		{"/api/v1/control/trails", http.StatusOK, func(c sim.Clock) bool { return !c.TrailsEnabled }},
		{"/api/v1/control/speed?direction=1", http.StatusOK, func(c sim.Clock) bool { return c.Speed == 2 }},
		{"/api/v1/control/speed?direction=up", http.StatusOK, func(c sim.Clock) bool { return c.Speed == 4 }},
		{"/api/v1/control/speed?direction=-1", http.StatusOK, func(c sim.Clock) bool { return c.Speed == 2 }},
		{"/api/v1/control/speed", http.StatusBadRequest, nil},
		{"/api/v1/control/speed?direction=sideways", http.StatusBadRequest, nil},
		{"/api/v1/control/reset", http.StatusOK, func(c sim.Clock) bool { return c.Speed == 2 }},
	}
	for _, tt := range tests {
		w := serve(h, "POST", tt.target)
		if w.Code != tt.wantStatus {
			t.Fatalf("POST %s: status = %d, want %d", tt.target, w.Code, tt.wantStatus)
		}
		if tt.check == nil {
			continue
		}
		var resp controlResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if !tt.check(resp.Clock) {
			t.Errorf("POST %s: clock = %+v", tt.target, resp.Clock)
		}
		if resp.Clock != runner.Clock() {
			t.Errorf("POST %s: response clock %+v differs from runner %+v", tt.target, resp.Clock, runner.Clock())
		}
	}

	// Control routes only accept POST; GET falls through to the JSON 404.
	w := serve(h, "GET", "/api/v1/control/pause")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET control status = %d, want 404", w.Code)
	}
}

func TestControlRateLimit(t *testing.T) {
	deps, _ := testDeps()
	deps.Control = ControlConfig{Rate: 0.001, Burst: 2}
	h := NewHandler(testLogger(), auth.Config{}, deps)

	for i := 0; i < 2; i++ {
		if w := serve(h, "POST", "/api/v1/control/trails"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}
	w := serve(h, "POST", "/api/v1/control/trails")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Reads are never rate limited.
	if w := serve(h, "GET", "/api/v1/state"); w.Code != http.StatusOK {
		t.Errorf("state status = %d, want 200", w.Code)
	}
}

func TestControlRequiresToken(t *testing.T) {
	deps, _ := testDeps()
	h := NewHandler(testLogger(), auth.Config{Enabled: true, Token: "s3cret"}, deps)

	if w := serve(h, "POST", "/api/v1/control/pause"); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/control/pause", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token status = %d, want 200", w.Code)
	}

	if w := serve(h, "GET", "/api/v1/state"); w.Code != http.StatusOK {
		t.Errorf("public read status = %d, want 200", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	deps, runner := testDeps()
	h := NewHandler(testLogger(), auth.Config{}, deps)

	if w := serve(h, "GET", "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("before first tick status = %d, want 503", w.Code)
	}
	runner.Step()
	if w := serve(h, "GET", "/readyz"); w.Code != http.StatusOK {
		t.Errorf("after first tick status = %d, want 200", w.Code)
	}
	if w := serve(h, "GET", "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}

func TestStaticFallback(t *testing.T) {
	deps, _ := testDeps()
	h := NewHandler(testLogger(), auth.Config{}, deps)

	tests := []struct {
		target     string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "<title>orbits</title>"},
		{"/index.html", http.StatusOK, "<title>orbits</title>"},
		{"/app.js", http.StatusOK, "console.log"},
		{"/scene/outer", http.StatusOK, "<title>orbits</title>"},
		{"/api/v1/nope", http.StatusNotFound, `"error"`},
	}
	for _, tt := range tests {
		w := serve(h, "GET", tt.target)
		if w.Code != tt.wantStatus {
			t.Errorf("GET %s: status = %d, want %d", tt.target, w.Code, tt.wantStatus)
			continue
		}
		if !strings.Contains(w.Body.String(), tt.wantBody) {
			t.Errorf("GET %s: body %q missing %q", tt.target, w.Body.String(), tt.wantBody)
		}
	}
}

func TestStaticWithoutIndex(t *testing.T) {
	deps, _ := testDeps()
	deps.Static = fstest.MapFS{"app.js": {Data: []byte("x")}}
	h := NewHandler(testLogger(), auth.Config{}, deps)

	if w := serve(h, "GET", "/"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	deps.Static = nil
	h = NewHandler(testLogger(), auth.Config{}, deps)
	if w := serve(h, "GET", "/"); w.Code != http.StatusNotFound {
		t.Errorf("nil static status = %d, want 404", w.Code)
	}
}
