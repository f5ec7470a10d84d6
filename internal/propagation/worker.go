package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orrery/internal/tle"
)

// PropagateFunc computes one satellite's position at t.
type PropagateFunc func(entry tle.TLEEntry, t time.Time) (SatellitePosition, error)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	entry      tle.TLEEntry
	targetTime time.Time
}

// propagateResult is the output of a single satellite propagation.
type propagateResult struct {
	position SatellitePosition
	err      error
	noradID  int
}

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch runs fn for every entry at targetTime. Failed satellites
// are logged and skipped; it returns the positions plus success and error
// counts. Cancelling ctx stops the batch early.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, entries []tle.TLEEntry, targetTime time.Time, fn PropagateFunc) ([]SatellitePosition, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				pos, err := fn(job.entry, job.targetTime)
				select {
				case results <- propagateResult{position: pos, err: err, noradID: job.entry.NORADID}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, entry := range entries {
			select {
			case jobs <- propagateJob{entry: entry, targetTime: targetTime}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	positions := make([]SatellitePosition, 0, len(entries))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", result.noradID,
				"error", result.err,
			)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}

	return positions, successCount, errorCount
}
