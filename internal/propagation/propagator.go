// Package propagation tabulates body positions over a grid of simulation
// times using the same Kepler propagator the animation uses.
package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/metrics"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
)

// DefaultMaxSamples bounds the positions computed for one request.
const DefaultMaxSamples = 100000

// Propagator generates ephemeris tables for the bodies of a scene.
type Propagator struct {
	scene  *scene.Scene
	pool   *WorkerPool
	config Config
	logger *slog.Logger
}

// NewPropagator creates an ephemeris generator. Zero config values select
// defaults.
func NewPropagator(s *scene.Scene, config Config, logger *slog.Logger) *Propagator {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.MaxSamples <= 0 {
		config.MaxSamples = DefaultMaxSamples
	}
	return &Propagator{
		scene:  s,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// MaxSamples returns the per-request position budget.
func (p *Propagator) MaxSamples() int {
	return p.config.MaxSamples
}

// Generate tabulates every body named in req. Unknown bodies are reported
// with scene.ErrUnknownBody; oversized requests with ErrBudgetExceeded.
func (p *Propagator) Generate(ctx context.Context, req Request) ([]Table, error) {
	if len(req.Bodies) == 0 {
		return nil, ErrNoBodies
	}
	if err := validateGrid(req); err != nil {
		return nil, err
	}
	if req.Speed == 0 {
		req.Speed = 1
	}

	total := len(req.Bodies) * req.Count
	if req.Count > p.config.MaxSamples || total > p.config.MaxSamples {
		return nil, fmt.Errorf("%w: %d bodies x %d samples > %d", ErrBudgetExceeded, len(req.Bodies), req.Count, p.config.MaxSamples)
	}

	bodies := make([]scene.Body, 0, len(req.Bodies))
	for _, name := range req.Bodies {
		b, err := p.scene.Body(name)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, b)
	}

	start := time.Now()
	tables, err := p.pool.TabulateBatch(ctx, bodies, req)
	duration := time.Since(start)
	if err != nil {
		return tables, fmt.Errorf("tabulating ephemeris: %w", err)
	}

	metrics.RecordEphemeris(duration, total)
	p.logger.Debug("ephemeris generated",
		"bodies", len(bodies),
		"samples", total,
		"duration_ms", duration.Milliseconds(),
	)
	return tables, nil
}

func validateGrid(req Request) error {
	switch {
	case req.Count < 1:
		return fmt.Errorf("%w: count must be at least 1, got %d", ErrInvalidRequest, req.Count)
	case math.IsNaN(req.Start) || math.IsInf(req.Start, 0):
		return fmt.Errorf("%w: start must be finite", ErrInvalidRequest)
	case math.IsNaN(req.Step) || math.IsInf(req.Step, 0):
		return fmt.Errorf("%w: step must be finite", ErrInvalidRequest)
	case req.Count > 1 && req.Step <= 0:
		return fmt.Errorf("%w: step must be positive, got %v", ErrInvalidRequest, req.Step)
	case req.Speed < 0 || math.IsNaN(req.Speed) || math.IsInf(req.Speed, 0):
		return fmt.Errorf("%w: speed must be a non-negative finite number", ErrInvalidRequest)
	}
	return nil
}
