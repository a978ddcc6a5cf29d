package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/httputil"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/propagation"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/sim"
)

// pathSamples is the number of points returned for each orbit outline.
const pathSamples = 90

type bodyInfo struct {
	scene.Body
	MeanMotion float64       `json:"mean_motion"`
	Path       orbit.Ellipse `json:"path"`
	Outline    []orbit.Point `json:"outline"`
}

type bodiesResponse struct {
	Scene    string     `json:"scene"`
	Star     scene.Star `json:"star"`
	TimeUnit string     `json:"time_unit"`
	Bodies   []bodyInfo `json:"bodies"`
}

type propagateResponse struct {
	Body             string      `json:"body"`
	Time             float64     `json:"t"`
	Speed            float64     `json:"speed"`
	Position         orbit.Point `json:"position"`
	Radius           float64     `json:"radius"`
	MeanAnomaly      float64     `json:"mean_anomaly"`
	EccentricAnomaly float64     `json:"eccentric_anomaly"`
	TrueAnomaly      float64     `json:"true_anomaly"`
}

type controlResponse struct {
	Command string    `json:"command"`
	Clock   sim.Clock `json:"clock"`
}

// stateHandler serves the current animation snapshot.
// GET /api/v1/state
func stateHandler(s Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, s.Snapshot())
	}
}

// bodiesHandler serves the scene catalog with each body's orbit geometry.
// GET /api/v1/bodies
func bodiesHandler(sc *scene.Scene) http.HandlerFunc {
	unit := sc.TimeUnit
	if unit <= 0 {
		unit = scene.Day
	}
	resp := bodiesResponse{
		Scene:    sc.Name,
		Star:     sc.Star,
		TimeUnit: unit.String(),
		Bodies:   make([]bodyInfo, len(sc.Bodies)),
	}
	for i, b := range sc.Bodies {
		path := orbit.PathOf(b.Elements)
		resp.Bodies[i] = bodyInfo{
			Body:       b,
			MeanMotion: b.Elements.MeanMotion(),
			Path:       path,
			Outline:    path.Sample(pathSamples),
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// propagateHandler computes one body's position at an arbitrary time.
// GET /api/v1/propagate/{body}?t=0&speed=1
func propagateHandler(sc *scene.Scene) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := sc.Body(r.PathValue("body"))
		if err != nil {
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}

		q := r.URL.Query()
		t, err := floatParam(q, "t", 0)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		speed, err := floatParam(q, "speed", 1)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		el := b.Elements
		M := orbit.MeanAnomaly(el, t, speed)
		E := orbit.EccentricAnomaly(M, el.Eccentricity)
		pos, nu := orbit.Compute(el, t, speed)

		httputil.WriteJSON(w, http.StatusOK, propagateResponse{
			Body:             b.Name,
			Time:             t,
			Speed:            speed,
			Position:         pos,
			Radius:           pos.Norm(),
			MeanAnomaly:      M,
			EccentricAnomaly: E,
			TrueAnomaly:      nu,
		})
	}
}

// ephemerisHandler tabulates one body over a time grid. Requests beyond the
// sample budget are rejected with 400 instead of consuming unbounded CPU.
// GET /api/v1/ephemeris/{body}?t=0&step=1&count=100&speed=1
func ephemerisHandler(logger *slog.Logger, p *propagation.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := propagation.Request{Bodies: []string{r.PathValue("body")}}

		var err error
		if req.Start, err = floatParam(q, "t", 0); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Step, err = floatParam(q, "step", 1); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Speed, err = floatParam(q, "speed", 1); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Count = 100
		if v := q.Get("count"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, "invalid count parameter")
				return
			}
			req.Count = n
		}

		tables, err := p.Generate(r.Context(), req)
		switch {
		case err == nil:
			httputil.WriteJSON(w, http.StatusOK, tables[0])
		case errors.Is(err, scene.ErrUnknownBody):
			httputil.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, propagation.ErrBudgetExceeded):
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":       err.Error(),
				"max_samples": p.MaxSamples(),
			})
		case errors.Is(err, propagation.ErrInvalidRequest):
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Warn("ephemeris failed", "body", r.PathValue("body"), "error", err)
			httputil.WriteError(w, http.StatusServiceUnavailable, "ephemeris generation failed")
		}
	}
}

// controlHandler applies a control command and returns the resulting clock.
// POST /api/v1/control/{pause,trails,reset,speed?direction=1|-1}
func controlHandler(logger *slog.Logger, s Simulation, cmd sim.Command) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var direction int
		if cmd == sim.CommandSpeed {
			switch r.URL.Query().Get("direction") {
			case "1", "up":
				direction = 1
			case "-1", "down":
				direction = -1
			default:
				httputil.WriteError(w, http.StatusBadRequest, "direction must be 1 or -1")
				return
			}
		}

		clock, err := s.Apply(cmd, direction)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		metrics.RecordControl(string(cmd), "http")
		logger.Debug("control command", "command", cmd, "direction", direction, "speed", clock.Speed)
		httputil.WriteJSON(w, http.StatusOK, controlResponse{Command: string(cmd), Clock: clock})
	})
}

// floatParam parses a finite float query parameter, returning def when absent.
func floatParam(q url.Values, name string, def float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s parameter, must be a finite number", name)
	}
	return f, nil
}
