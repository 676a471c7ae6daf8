package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// IncrementWindow atomically bumps the counter for (identifier, window)
// and returns the new count. The first increment in a window creates the
// row and stamps its expiry; the upsert keeps increment-and-read a single
// statement so concurrent requests never lose updates.
func (r *Repository) IncrementWindow(ctx context.Context, identifier string, windowStart int64, ttl time.Duration) (int, error) {
	start := time.Now()

	var count int
	err := r.db.QueryRow(ctx, `
		INSERT INTO rate_windows (identifier, window_start, count, expires_at)
		VALUES ($1, $2, 1, NOW() + $3::interval)
		ON CONFLICT (identifier, window_start)
		DO UPDATE SET count = rate_windows.count + 1
		RETURNING count
	`, identifier, windowStart, ttl.String()).Scan(&count)

	observe("upsert", "rate_windows", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate window: %w", err)
	}
	return count, nil
}

// GetWindow returns the current count for (identifier, window) without
// incrementing. A missing row counts as zero.
func (r *Repository) GetWindow(ctx context.Context, identifier string, windowStart int64) (int, error) {
	start := time.Now()

	var count int
	err := r.db.QueryRow(ctx, `
		SELECT count FROM rate_windows
		WHERE identifier = $1 AND window_start = $2
	`, identifier, windowStart).Scan(&count)

	observe("select", "rate_windows", start, err)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate window: %w", err)
	}
	return count, nil
}

// DeleteExpiredWindows removes windows past their expiry and returns the
// number of rows deleted. Called periodically by the janitor.
func (r *Repository) DeleteExpiredWindows(ctx context.Context) (int64, error) {
	start := time.Now()

	tag, err := r.db.Exec(ctx, `DELETE FROM rate_windows WHERE expires_at < NOW()`)
	observe("delete", "rate_windows", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rate windows: %w", err)
	}
	return tag.RowsAffected(), nil
}
