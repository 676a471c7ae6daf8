package repository

import (
	"context"
	"time"

	"media-gateway/models"

	"github.com/google/uuid"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error

	// Credentials
	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, id uuid.UUID) (*models.Credential, error)
	GetCredentialByHash(ctx context.Context, keyHash string) (*models.Credential, error)
	ListCredentials(ctx context.Context, filter CredentialFilter) ([]models.Credential, error)
	UpdateCredential(ctx context.Context, cred *models.Credential) (bool, error)
	DeleteCredential(ctx context.Context, id uuid.UUID) (bool, error)
	RecordCredentialUsage(ctx context.Context, id uuid.UUID) error

	// Jobs
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, error)
	NextQueued(ctx context.Context, limit int) ([]uuid.UUID, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (bool, error)
	SetJobProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteJob(ctx context.Context, id uuid.UUID, resultRef string) (bool, error)
	FailJob(ctx context.Context, id uuid.UUID, errorDetail string) (bool, error)
	RetryJob(ctx context.Context, id uuid.UUID) (bool, error)

	// Rate windows
	IncrementWindow(ctx context.Context, identifier string, windowStart int64, ttl time.Duration) (int, error)
	GetWindow(ctx context.Context, identifier string, windowStart int64) (int, error)
	DeleteExpiredWindows(ctx context.Context) (int64, error)
}

// Compile-time interface verification
var _ RepositoryInterface = (*Repository)(nil)
