// Package ratelimit implements a fixed-window request limiter backed by a
// shared counter store. Store failures never block traffic: Check fails
// open and Info degrades to a zeroed result.
package ratelimit

import (
	"context"
	"time"

	"media-gateway/config"
	"media-gateway/models"
	"media-gateway/observability"
)

// WindowStore is the backing counter store. Increment must be atomic:
// a single increment-and-read, never a read-then-write pair.
type WindowStore interface {
	IncrementWindow(ctx context.Context, identifier string, windowStart int64, ttl time.Duration) (int, error)
	GetWindow(ctx context.Context, identifier string, windowStart int64) (int, error)
	DeleteExpiredWindows(ctx context.Context) (int64, error)
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed bool
	Info    models.RateLimitInfo
}

// Limiter counts requests per (identifier, window) against tier quotas
type Limiter struct {
	store  WindowStore
	window time.Duration
	quotas map[models.Tier]int
	// anonQuota applies to identities with no credential
	anonQuota int
}

// NewLimiter creates a Limiter from the rate limit configuration
func NewLimiter(store WindowStore, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store:  store,
		window: time.Duration(cfg.WindowMinutes) * time.Minute,
		quotas: map[models.Tier]int{
			models.TierReadOnly:   cfg.ReadOnlyRPM * cfg.WindowMinutes,
			models.TierDownload:   cfg.DownloadRPM * cfg.WindowMinutes,
			models.TierAdmin:      cfg.AdminRPM * cfg.WindowMinutes,
			models.TierFullAccess: cfg.FullAccessRPM * cfg.WindowMinutes,
		},
		anonQuota: cfg.AnonymousRPM * cfg.WindowMinutes,
	}
}

// quota resolves the effective limit for one check. A custom quota is
// scoped to this call only; the shared tier table is never touched.
func (l *Limiter) quota(tier models.Tier, customQuota *int) int {
	if customQuota != nil && *customQuota > 0 {
		return *customQuota
	}
	if q, ok := l.quotas[tier]; ok {
		return q
	}
	return l.anonQuota
}

// windowStart returns the fixed window bucket for t
func (l *Limiter) windowStart(t time.Time) int64 {
	sec := int64(l.window / time.Second)
	return t.Unix() / sec
}

// reset returns the epoch second at which the window containing t ends
func (l *Limiter) reset(t time.Time) int64 {
	sec := int64(l.window / time.Second)
	return (l.windowStart(t) + 1) * sec
}

// Check counts this request against the identifier's window and decides
// admission. The increment is committed before the decision is returned,
// so a rejected or abandoned request still occupies its slot. Any store
// error fails open: the request is admitted and the error logged.
func (l *Limiter) Check(ctx context.Context, identifier string, tier models.Tier, customQuota *int) Decision {
	now := time.Now()
	limit := l.quota(tier, customQuota)

	count, err := l.store.IncrementWindow(ctx, identifier, l.windowStart(now), l.window)
	if err != nil {
		observability.Error("rate limit store unavailable, failing open",
			"identifier", identifier,
			"error", err)
		observability.GetMetrics().RecordRateLimitFailOpen()
		return Decision{
			Allowed: true,
			Info: models.RateLimitInfo{
				Limit:     limit,
				Remaining: limit,
				Reset:     l.reset(now),
			},
		}
	}

	allowed := count <= limit
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	observability.GetMetrics().RecordRateLimitDecision(outcome, string(tier))

	return Decision{
		Allowed: allowed,
		Info: models.RateLimitInfo{
			Limit:     limit,
			Current:   count,
			Remaining: max(0, limit-count),
			Reset:     l.reset(now),
		},
	}
}

// Info reports the identifier's current window state without counting a
// request. On store error it returns a zeroed structure rather than
// propagating the failure.
func (l *Limiter) Info(ctx context.Context, identifier string, tier models.Tier, customQuota *int) models.RateLimitInfo {
	now := time.Now()
	limit := l.quota(tier, customQuota)

	count, err := l.store.GetWindow(ctx, identifier, l.windowStart(now))
	if err != nil {
		observability.Error("rate limit store unavailable for info query",
			"identifier", identifier,
			"error", err)
		return models.RateLimitInfo{}
	}

	return models.RateLimitInfo{
		Limit:     limit,
		Current:   count,
		Remaining: max(0, limit-count),
		Reset:     l.reset(now),
	}
}

// RunJanitor periodically deletes expired windows until ctx is cancelled
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.store.DeleteExpiredWindows(ctx)
			if err != nil {
				observability.Warn("rate window cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				observability.Debug("cleaned expired rate windows", "deleted", deleted)
			}
		}
	}
}
