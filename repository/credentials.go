package repository

import (
	"context"
	"fmt"
	"time"

	"media-gateway/models"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"
)

// CredentialFilter narrows ListCredentials results
type CredentialFilter struct {
	Active *bool
	Tier   *models.Tier
	Limit  int
	Offset int
}

const credentialColumns = `
	id, name, key_hash, key_prefix, tier, active, expires_at,
	usage_count, last_used_at, custom_quota, created_by, notes,
	created_at, updated_at
`

// CreateCredential inserts a new credential
func (r *Repository) CreateCredential(ctx context.Context, cred *models.Credential) error {
	start := time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO credentials (id, name, key_hash, key_prefix, tier, active, expires_at,
		                         custom_quota, created_by, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, cred.ID, cred.Name, cred.KeyHash, cred.KeyPrefix, cred.Tier, cred.Active,
		cred.ExpiresAt, cred.CustomQuota, cred.CreatedBy, cred.Notes)

	observe("insert", "credentials", start, err)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by ID. Returns nil when absent.
func (r *Repository) GetCredential(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	start := time.Now()

	row := r.db.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE id = $1
	`, id)

	cred, err := scanCredential(row)
	observe("select", "credentials", start, err)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

// GetCredentialByHash retrieves a credential by its key hash. Returns nil
// when no credential matches.
func (r *Repository) GetCredentialByHash(ctx context.Context, keyHash string) (*models.Credential, error) {
	start := time.Now()

	row := r.db.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE key_hash = $1
	`, keyHash)

	cred, err := scanCredential(row)
	observe("select", "credentials", start, err)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential by hash: %w", err)
	}
	return cred, nil
}

// ListCredentials retrieves credentials matching the filter, newest first
func (r *Repository) ListCredentials(ctx context.Context, filter CredentialFilter) ([]models.Credential, error) {
	start := time.Now()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE ($1::boolean IS NULL OR active = $1)
		  AND ($2::text IS NULL OR tier = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, filter.Active, filter.Tier, limit, filter.Offset)
	observe("select", "credentials", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, nil
}

// UpdateCredential persists administrative changes to a credential.
// Returns false when the credential does not exist.
func (r *Repository) UpdateCredential(ctx context.Context, cred *models.Credential) (bool, error) {
	start := time.Now()

	tag, err := r.db.Exec(ctx, `
		UPDATE credentials
		SET name = $2, tier = $3, active = $4, expires_at = $5,
		    custom_quota = $6, notes = $7, updated_at = NOW()
		WHERE id = $1
	`, cred.ID, cred.Name, cred.Tier, cred.Active, cred.ExpiresAt,
		cred.CustomQuota, cred.Notes)

	observe("update", "credentials", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to update credential: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteCredential removes a credential. Returns false when absent.
func (r *Repository) DeleteCredential(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()

	tag, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	observe("delete", "credentials", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordCredentialUsage bumps the usage counter and last-used timestamp.
// The increment happens in SQL so concurrent validations never lose updates.
func (r *Repository) RecordCredentialUsage(ctx context.Context, id uuid.UUID) error {
	start := time.Now()

	_, err := r.db.Exec(ctx, `
		UPDATE credentials
		SET usage_count = usage_count + 1, last_used_at = NOW()
		WHERE id = $1
	`, id)

	observe("update", "credentials", start, err)
	if err != nil {
		return fmt.Errorf("failed to record credential usage: %w", err)
	}
	return nil
}

// scanCredential reads one credential row
func scanCredential(row pgx.Row) (*models.Credential, error) {
	var cred models.Credential
	err := row.Scan(
		&cred.ID,
		&cred.Name,
		&cred.KeyHash,
		&cred.KeyPrefix,
		&cred.Tier,
		&cred.Active,
		&cred.ExpiresAt,
		&cred.UsageCount,
		&cred.LastUsedAt,
		&cred.CustomQuota,
		&cred.CreatedBy,
		&cred.Notes,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
