// Package jobs tracks download jobs through an explicit lifecycle:
// queued -> processing -> completed|failed, with failed -> queued via a
// bounded, explicit retry. Completed is terminal.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"media-gateway/models"
	"media-gateway/observability"
	"media-gateway/repository"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the referenced job does not exist
	ErrNotFound = errors.New("job not found")

	// ErrRetryNotAllowed means the job is not failed or its retry budget
	// is exhausted
	ErrRetryNotAllowed = errors.New("job retry not allowed")

	// ErrInvalidTransition means the requested transition is illegal from
	// the job's current state
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// Store defines the ledger operations the controller needs
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter repository.JobFilter) ([]models.Job, error)
	NextQueued(ctx context.Context, limit int) ([]uuid.UUID, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)
	SetJobProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteJob(ctx context.Context, id uuid.UUID, resultRef string) (bool, error)
	FailJob(ctx context.Context, id uuid.UUID, errorDetail string) (bool, error)
	RetryJob(ctx context.Context, id uuid.UUID) (bool, error)
}

// Controller enforces legal job state transitions over a Store.
// All compare-and-set semantics live in the store's conditional updates;
// the controller translates their outcomes into typed errors.
type Controller struct {
	store      Store
	maxRetries int
}

// NewController creates a Controller. maxRetries is stamped onto every
// job at creation and never changes afterwards.
func NewController(store Store, maxRetries int) *Controller {
	return &Controller{store: store, maxRetries: maxRetries}
}

// Create persists a new job in the queued state
func (c *Controller) Create(ctx context.Context, sourceURL string, opts models.JobOptions, createdBy string) (*models.Job, error) {
	job := models.NewJob(sourceURL, opts, c.maxRetries, createdBy)
	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	observability.GetMetrics().RecordJobTransition("", string(models.JobStatusQueued))
	observability.WithJob(job.ID.String()).Info("job created",
		"source_url", job.SourceURL)
	return job, nil
}

// Get returns a job by ID, or ErrNotFound
func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns jobs matching the filter
func (c *Controller) List(ctx context.Context, filter repository.JobFilter) ([]models.Job, error) {
	return c.store.ListJobs(ctx, filter)
}

// Claim atomically moves a queued job to processing. Exactly one
// concurrent caller succeeds; the rest get ErrInvalidTransition and must
// not mutate the job.
func (c *Controller) Claim(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	ok, err := c.store.ClaimJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		job, err := c.store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: cannot claim job in state %q", ErrInvalidTransition, job.Status)
	}

	observability.GetMetrics().RecordJobTransition(string(models.JobStatusQueued), string(models.JobStatusProcessing))
	return c.Get(ctx, id)
}

// Progress updates a processing job's progress percentage
func (c *Controller) Progress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return c.store.SetJobProgress(ctx, id, progress)
}

// Succeed moves a processing job to completed with progress 100
func (c *Controller) Succeed(ctx context.Context, id uuid.UUID, resultRef string) error {
	ok, err := c.store.CompleteJob(ctx, id, resultRef)
	if err != nil {
		return err
	}
	if !ok {
		return c.transitionError(ctx, id, models.JobStatusCompleted)
	}

	observability.GetMetrics().RecordJobTransition(string(models.JobStatusProcessing), string(models.JobStatusCompleted))
	observability.WithJob(id.String()).Info("job completed")
	return nil
}

// Fail moves a processing job to failed and records the error detail.
// The retry counter is untouched here; it increments only when a retry
// is actually requested.
func (c *Controller) Fail(ctx context.Context, id uuid.UUID, detail string) error {
	ok, err := c.store.FailJob(ctx, id, detail)
	if err != nil {
		return err
	}
	if !ok {
		return c.transitionError(ctx, id, models.JobStatusFailed)
	}

	observability.GetMetrics().RecordJobTransition(string(models.JobStatusProcessing), string(models.JobStatusFailed))
	observability.WithJob(id.String()).Warn("job failed", "detail", detail)
	return nil
}

// Retry resets a failed job back to queued: progress 0, error cleared,
// start/completion timestamps cleared. Legal only while the retry budget
// holds; the store performs the predicate check and the counter increment
// in one atomic update. Returns the refreshed job.
func (c *Controller) Retry(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	ok, err := c.store.RetryJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		job, err := c.store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, ErrNotFound
		}
		if job.Status != models.JobStatusFailed {
			return nil, fmt.Errorf("%w: job is %q, not failed", ErrRetryNotAllowed, job.Status)
		}
		return nil, fmt.Errorf("%w: retry budget exhausted (%d/%d)",
			ErrRetryNotAllowed, job.RetryCount, job.MaxRetries)
	}

	observability.GetMetrics().RecordJobTransition(string(models.JobStatusFailed), string(models.JobStatusQueued))
	observability.WithJob(id.String()).Info("job requeued for retry")
	return c.Get(ctx, id)
}

// NextQueued returns IDs of the oldest queued jobs for the worker pool
func (c *Controller) NextQueued(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return c.store.NextQueued(ctx, limit)
}

// transitionError builds the error for a conditional update that matched
// no row: either the job is missing or it is in the wrong state.
func (c *Controller) transitionError(ctx context.Context, id uuid.UUID, target models.JobStatus) error {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: cannot move job from %q to %q", ErrInvalidTransition, job.Status, target)
}
