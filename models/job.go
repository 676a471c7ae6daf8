package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ValidJobStatus reports whether s names a known job status
func ValidJobStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobOptions are the caller-supplied extraction preferences relayed to the
// extractor service. The gateway does not interpret them.
type JobOptions struct {
	Format  string `json:"format,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// Job is one requested download tracked through its lifecycle:
// queued -> processing -> completed|failed, with failed -> queued
// via an explicit retry bounded by MaxRetries. Completed is terminal.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	SourceURL   string     `json:"source_url"`
	Options     JobOptions `json:"options"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"` // 0-100
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	ResultRef   string     `json:"result_ref,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a job in the queued state with progress 0
func NewJob(sourceURL string, opts JobOptions, maxRetries int, createdBy string) *Job {
	return &Job{
		ID:         uuid.New(),
		SourceURL:  sourceURL,
		Options:    opts,
		Status:     JobStatusQueued,
		Progress:   0,
		MaxRetries: maxRetries,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now().UTC(),
	}
}
