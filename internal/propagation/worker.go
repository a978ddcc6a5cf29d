package propagation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ROOK-KNIGHT/keplers-quest/internal/orbit"
	"github.com/ROOK-KNIGHT/keplers-quest/internal/scene"
)

// tabulateJob is a unit of work for the worker pool.
type tabulateJob struct {
	index int
	body  scene.Body
}

// tabulateResult is the output of a single body's tabulation.
type tabulateResult struct {
	index int
	table Table
}

// WorkerPool manages a fixed number of goroutines for parallel tabulation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// TabulateBatch tabulates every body over the sample grid of req. Tables are
// returned in the order of bodies. If ctx is cancelled the tables completed so
// far are returned along with ctx.Err().
func (wp *WorkerPool) TabulateBatch(ctx context.Context, bodies []scene.Body, req Request) ([]Table, error) {
	if len(bodies) == 0 {
		return nil, nil
	}

	jobs := make(chan tabulateJob, wp.workers*2)
	results := make(chan tabulateResult, wp.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := tabulateSingle(ctx, job, req)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for i, b := range bodies {
			select {
			case jobs <- tabulateJob{index: i, body: b}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	tables := make([]Table, len(bodies))
	done := make([]bool, len(bodies))
	for result := range results {
		tables[result.index] = result.table
		done[result.index] = result.table.Samples != nil
	}

	if err := ctx.Err(); err != nil {
		completed := tables[:0]
		for i, t := range tables {
			if done[i] {
				completed = append(completed, t)
			}
		}
		wp.logger.Warn("ephemeris cancelled", "completed", len(completed), "requested", len(bodies))
		return completed, err
	}
	return tables, nil
}

// tabulateSingle computes the samples of one body. It stops early, returning
// a table with nil samples, when ctx is cancelled.
func tabulateSingle(ctx context.Context, job tabulateJob, req Request) tabulateResult {
	el := job.body.Elements
	samples := make([]Sample, req.Count)
	for i := range samples {
		if i%1024 == 0 && ctx.Err() != nil {
			return tabulateResult{index: job.index, table: Table{Body: job.body.Name, Speed: req.Speed}}
		}
		t := req.Start + float64(i)*req.Step
		pos, nu := orbit.Compute(el, t, req.Speed)
		samples[i] = Sample{Time: t, Position: pos, TrueAnomaly: nu, Radius: pos.Norm()}
	}
	return tabulateResult{
		index: job.index,
		table: Table{Body: job.body.Name, Speed: req.Speed, Samples: samples},
	}
}
