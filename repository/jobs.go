package repository

import (
	"context"
	"fmt"
	"time"

	"media-gateway/models"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"
)

// JobFilter narrows ListJobs results
type JobFilter struct {
	Status *models.JobStatus
	Limit  int
	Offset int
}

const jobColumns = `
	id, source_url, format, quality, status, progress, retry_count,
	max_retries, error_detail, result_ref, created_by, created_at,
	started_at, completed_at
`

// CreateJob inserts a new job in the queued state
func (r *Repository) CreateJob(ctx context.Context, job *models.Job) error {
	start := time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO jobs (id, source_url, format, quality, status, progress,
		                  retry_count, max_retries, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, job.ID, job.SourceURL, job.Options.Format, job.Options.Quality,
		job.Status, job.Progress, job.RetryCount, job.MaxRetries, job.CreatedBy)

	observe("insert", "jobs", start, err)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns nil when absent.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	start := time.Now()

	row := r.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, id)

	job, err := scanJob(row)
	observe("select", "jobs", start, err)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves jobs matching the filter, newest first
func (r *Repository) ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, error) {
	start := time.Now()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, filter.Status, limit, filter.Offset)
	observe("select", "jobs", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// NextQueued returns the IDs of the oldest queued jobs, up to limit
func (r *Repository) NextQueued(ctx context.Context, limit int) ([]uuid.UUID, error) {
	start := time.Now()

	rows, err := r.db.Query(ctx, `
		SELECT id FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, models.JobStatusQueued, limit)
	observe("select", "jobs", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query queued jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queued jobs: %w", err)
	}

	return ids, nil
}

// ClaimJob atomically moves a job from queued to processing and stamps
// started_at. The status predicate in the WHERE clause makes the claim a
// compare-and-set: under concurrent callers exactly one update succeeds.
func (r *Repository) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()

	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.JobStatusProcessing, models.JobStatusQueued)

	observe("update", "jobs", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetJobProgress updates progress for a job that is processing
func (r *Repository) SetJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	start := time.Now()

	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET progress = $2
		WHERE id = $1 AND status = $3
	`, id, progress, models.JobStatusProcessing)

	observe("update", "jobs", start, err)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// CompleteJob moves a processing job to completed with progress 100.
// Returns false when the job was not in the processing state.
func (r *Repository) CompleteJob(ctx context.Context, id uuid.UUID, resultRef string) (bool, error) {
	start := time.Now()

	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, progress = 100, result_ref = $3, completed_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.JobStatusCompleted, resultRef, models.JobStatusProcessing)

	observe("update", "jobs", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailJob moves a processing job to failed and records the error detail.
// Returns false when the job was not in the processing state.
func (r *Repository) FailJob(ctx context.Context, id uuid.UUID, errorDetail string) (bool, error) {
	start := time.Now()

	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error_detail = $3
		WHERE id = $1 AND status = $4
	`, id, models.JobStatusFailed, errorDetail, models.JobStatusProcessing)

	observe("update", "jobs", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RetryJob resets a failed job back to queued, provided its retry budget
// is not exhausted. The retry counter increments here, in the same atomic
// update that performs the reset, so the budget check and the increment
// can never diverge. Returns false when preconditions do not hold.
func (r *Repository) RetryJob(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()

	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, progress = 0, error_detail = NULL, result_ref = NULL,
		    started_at = NULL, completed_at = NULL,
		    retry_count = retry_count + 1
		WHERE id = $1 AND status = $3 AND retry_count < max_retries
	`, id, models.JobStatusQueued, models.JobStatusFailed)

	observe("update", "jobs", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to retry job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanJob reads one job row
func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		job         models.Job
		errorDetail *string
		resultRef   *string
	)
	err := row.Scan(
		&job.ID,
		&job.SourceURL,
		&job.Options.Format,
		&job.Options.Quality,
		&job.Status,
		&job.Progress,
		&job.RetryCount,
		&job.MaxRetries,
		&errorDetail,
		&resultRef,
		&job.CreatedBy,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if errorDetail != nil {
		job.ErrorDetail = *errorDetail
	}
	if resultRef != nil {
		job.ResultRef = *resultRef
	}
	return &job, nil
}
