package sim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RunnerConfig holds frame loop configuration.
type RunnerConfig struct {
	FPS       int     // frames per second (default: 60)
	TimeScale float64 // scene time units per wall-clock second (default: 1)
}

// Runner drives an Engine from a wall clock. Simulation time only
// accumulates while the engine is not paused, so pausing freezes the
// animation where it stands and resuming continues from there.
type Runner struct {
	engine    *Engine
	interval  time.Duration
	timeScale float64
	logger    *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	elapsed float64
	last    time.Time

	ticked atomic.Bool
}

// NewRunner creates a runner for engine. Zero config values select defaults.
func NewRunner(engine *Engine, cfg RunnerConfig, logger *slog.Logger) *Runner {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 60
	}
	scale := cfg.TimeScale
	if scale <= 0 {
		scale = 1
	}
	return &Runner{
		engine:    engine,
		interval:  time.Second / time.Duration(fps),
		timeScale: scale,
		logger:    logger,
		now:       time.Now,
	}
}

// Engine returns the engine the runner drives.
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Interval returns the frame interval.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Run ticks the engine every frame interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("simulation loop started",
		"interval_ms", r.interval.Milliseconds(),
		"time_scale", r.timeScale,
		"bodies", len(r.engine.Scene().Bodies),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Step()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("simulation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Step()
		}
	}
}

// Step advances simulation time by the wall time since the previous step and
// ticks the engine. It reports whether the bodies moved. Step and Reset are
// serialised so a tick never lands with a time sampled before a reset.
func (r *Runner) Step() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.last.IsZero() {
		r.last = now
	}
	dt := now.Sub(r.last).Seconds()
	r.last = now
	if !r.engine.Paused() && dt > 0 {
		r.elapsed += dt * r.timeScale
	}

	if !r.engine.Tick(r.elapsed) {
		return false
	}
	r.ticked.Store(true)
	return true
}

// Ticked reports whether the engine has advanced at least once.
func (r *Runner) Ticked() bool {
	return r.ticked.Load()
}

// SimTime returns the accumulated simulation time.
func (r *Runner) SimTime() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Reset rewinds simulation time to the epoch and resets the engine.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elapsed = 0
	r.engine.Reset()
}

// TogglePause flips the paused flag and returns the new value.
func (r *Runner) TogglePause() bool { return r.engine.TogglePause() }

// ToggleTrails flips trail recording and returns the new value.
func (r *Runner) ToggleTrails() bool { return r.engine.ToggleTrails() }

// ChangeSpeed doubles or halves the speed and returns the new value.
func (r *Runner) ChangeSpeed(direction int) float64 { return r.engine.ChangeSpeed(direction) }

// Clock returns a copy of the simulation clock.
func (r *Runner) Clock() Clock { return r.engine.Clock() }

// Snapshot returns the current animation state.
func (r *Runner) Snapshot() Snapshot { return r.engine.Snapshot() }
