package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"media-gateway/observability"
	"media-gateway/services"

	"github.com/google/uuid"
)

// Pool processes queued jobs with a fixed number of workers, decoupled
// from request handling: the gateway answers as soon as a job is durably
// queued, and the pool picks it up on its own schedule.
type Pool struct {
	controller   *Controller
	extractor    services.Extractor
	size         int
	pollInterval time.Duration
	extractLimit time.Duration

	wg sync.WaitGroup
}

// NewPool creates a worker pool
func NewPool(controller *Controller, extractor services.Extractor, size int, pollInterval, extractLimit time.Duration) *Pool {
	return &Pool{
		controller:   controller,
		extractor:    extractor,
		size:         size,
		pollInterval: pollInterval,
		extractLimit: extractLimit,
	}
}

// Start launches the workers. They poll until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	observability.Info("worker pool started", "workers", p.size)
}

// Wait blocks until all workers have exited
func (p *Pool) Wait() {
	p.wg.Wait()
}

// run is one worker's loop: poll for queued jobs, claim, process
func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			observability.Debug("worker stopping", "worker", workerID)
			return
		case <-ticker.C:
		}

		ids, err := p.controller.NextQueued(ctx, 1)
		if err != nil {
			observability.Warn("failed to poll queued jobs",
				"worker", workerID,
				"error", err)
			continue
		}

		for _, id := range ids {
			p.process(ctx, id)
		}
	}
}

// process claims one job and drives it to completed or failed. A lost
// claim race is normal when several workers poll the same job; it is
// not an error and the loser must not touch the job.
func (p *Pool) process(ctx context.Context, id uuid.UUID) {
	job, err := p.controller.Claim(ctx, id)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return
		}
		observability.WithJob(id.String()).Warn("claim failed", "error", err)
		return
	}

	metrics := observability.GetMetrics()
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	extractCtx, cancel := context.WithTimeout(ctx, p.extractLimit)
	defer cancel()

	result, err := p.extractor.Extract(extractCtx, services.JobToExtractRequest(job), func(progress int) {
		if err := p.controller.Progress(ctx, job.ID, progress); err != nil {
			observability.WithJob(job.ID.String()).Debug("progress update failed", "error", err)
		}
	})
	if err != nil {
		if failErr := p.controller.Fail(ctx, job.ID, err.Error()); failErr != nil {
			observability.WithJob(job.ID.String()).Error("failed to mark job failed", "error", failErr)
		}
		return
	}

	if err := p.controller.Succeed(ctx, job.ID, result.ResultRef); err != nil {
		observability.WithJob(job.ID.String()).Error("failed to mark job completed", "error", err)
	}
}
