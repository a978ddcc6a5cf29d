// Package sim holds the animation state of a scene: the simulation clock and
// the current position, true anomaly and trail of every body.
package sim

import (
	"log/slog"
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
)

// Speed bounds. Speed only ever moves by factors of two between them.
const (
	MinSpeed = 0.125
	MaxSpeed = 16.0
)

// Clock is the user-controlled part of the simulation state.
type Clock struct {
	Speed         float64 `json:"speed"`
	Paused        bool    `json:"paused"`
	TrailsEnabled bool    `json:"trails_enabled"`
}

// DefaultClock is the clock a new engine starts with.
func DefaultClock() Clock {
	return Clock{Speed: 1, Paused: false, TrailsEnabled: true}
}

// BodyState is the computed state of one body. It is replaced as a whole on
// every tick.
type BodyState struct {
	Position    orbit.Point
	TrueAnomaly float64
	Trail       orbit.Trail
}

// Engine advances every body of a scene for a given simulation time. All
// methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	scene   *scene.Scene
	clock   Clock
	states  []BodyState
	simTime float64
	logger  *slog.Logger
}

// NewEngine creates an engine for s with bodies at their epoch positions and
// empty trails. A non-positive trailCapacity selects orbit.TrailCapacity.
func NewEngine(s *scene.Scene, trailCapacity int, logger *slog.Logger) *Engine {
	e := &Engine{
		scene:  s,
		clock:  DefaultClock(),
		states: make([]BodyState, len(s.Bodies)),
		logger: logger,
	}
	for i, b := range s.Bodies {
		pos, nu := orbit.Compute(b.Elements, 0, e.clock.Speed)
		e.states[i] = BodyState{Position: pos, TrueAnomaly: nu, Trail: orbit.NewTrail(trailCapacity)}
	}

	metrics.SetBodies(len(s.Bodies))
	metrics.SetClock(e.clock.Speed, e.clock.Paused, e.clock.TrailsEnabled)
	return e
}

// Scene returns the scene the engine animates. It must not be modified.
func (e *Engine) Scene() *scene.Scene {
	return e.scene
}

// Tick recomputes every body at simTime. While paused it does nothing and
// reports false.
func (e *Engine) Tick(simTime float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.clock.Paused {
		return false
	}

	start := time.Now()
	var trailPoints int
	for i, b := range e.scene.Bodies {
		pos, nu := orbit.Compute(b.Elements, simTime, e.clock.Speed)
		trail := e.states[i].Trail
		if e.clock.TrailsEnabled {
			trail.Append(pos)
		}
		e.states[i] = BodyState{Position: pos, TrueAnomaly: nu, Trail: trail}
		trailPoints += trail.Len()
	}
	e.simTime = simTime

	metrics.RecordTick(time.Since(start), trailPoints)
	return true
}

// TogglePause flips the paused flag and returns the new value.
func (e *Engine) TogglePause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clock.Paused = !e.clock.Paused
	e.publishClock()
	e.logger.Info("pause toggled", "paused", e.clock.Paused)
	return e.clock.Paused
}

// ToggleTrails flips trail recording and returns the new value. Disabling
// trails discards every recorded point.
func (e *Engine) ToggleTrails() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.clock.TrailsEnabled = !e.clock.TrailsEnabled
	if !e.clock.TrailsEnabled {
		e.clearTrails()
	}
	e.publishClock()
	e.logger.Info("trails toggled", "enabled", e.clock.TrailsEnabled)
	return e.clock.TrailsEnabled
}

// ChangeSpeed doubles the speed when direction is positive and halves it
// otherwise, clamped to [MinSpeed, MaxSpeed]. It returns the new speed.
func (e *Engine) ChangeSpeed(direction int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	speed := e.clock.Speed
	if direction > 0 {
		speed = min(speed*2, MaxSpeed)
	} else {
		speed = max(speed/2, MinSpeed)
	}
	e.clock.Speed = speed
	e.publishClock()
	e.logger.Info("speed changed", "speed", speed)
	return speed
}

// Reset clears every trail and returns every body to its epoch position. The
// clock is left as it is.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, b := range e.scene.Bodies {
		pos, nu := orbit.Compute(b.Elements, 0, e.clock.Speed)
		trail := e.states[i].Trail
		trail.Clear()
		e.states[i] = BodyState{Position: pos, TrueAnomaly: nu, Trail: trail}
	}
	e.simTime = 0
	metrics.SetTrailPoints(0)
	e.logger.Info("simulation reset")
}

// Clock returns a copy of the clock.
func (e *Engine) Clock() Clock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Paused
}

// States returns a deep copy of every body state, in scene order.
func (e *Engine) States() []BodyState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]BodyState, len(e.states))
	for i, st := range e.states {
		out[i] = BodyState{Position: st.Position, TrueAnomaly: st.TrueAnomaly, Trail: st.Trail.Clone()}
	}
	return out
}

// Snapshot captures the full animation state for rendering or transport.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Scene:   e.scene.Name,
		Clock:   e.clock,
		SimTime: e.simTime,
		SimDate: SimDate(e.scene, e.simTime, e.clock.Speed),
		Star:    e.scene.Star,
		Bodies:  make([]BodySnapshot, len(e.states)),
	}
	for i, st := range e.states {
		b := e.scene.Bodies[i]
		snap.Bodies[i] = BodySnapshot{
			Name:        b.Name,
			Color:       b.Color,
			Radius:      b.Radius,
			Position:    st.Position,
			TrueAnomaly: st.TrueAnomaly,
			Trail:       st.Trail.Points(),
		}
	}
	return snap
}

func (e *Engine) clearTrails() {
	for i := range e.states {
		e.states[i].Trail.Clear()
	}
	metrics.SetTrailPoints(0)
}

func (e *Engine) publishClock() {
	metrics.SetClock(e.clock.Speed, e.clock.Paused, e.clock.TrailsEnabled)
}

// SimDate is the calendar date shown for a simulation time: J2000.0 plus the
// elapsed scene time scaled by speed.
func SimDate(s *scene.Scene, simTime, speed float64) time.Time {
	return julian.JDToTime(base.J2000 + s.Days(simTime*speed)).UTC()
}
