package auth

import (
	"context"
	"net/http"
	"strings"

	"media-gateway/models"
	"media-gateway/observability"

	"github.com/google/uuid"
)

// CredentialStore defines the store operations the resolver needs
type CredentialStore interface {
	GetCredentialByHash(ctx context.Context, keyHash string) (*models.Credential, error)
	RecordCredentialUsage(ctx context.Context, id uuid.UUID) error
}

// Resolver validates presented API keys against the credential store
type Resolver struct {
	store CredentialStore
}

// NewResolver creates a new Resolver
func NewResolver(store CredentialStore) *Resolver {
	return &Resolver{store: store}
}

// ExtractKey pulls the presented API key from a request. Precedence is
// fixed: X-API-Key header, then the api_key query parameter, then a
// bearer Authorization value. The first present source wins.
func ExtractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if key := r.URL.Query().Get("api_key"); key != "" {
		return key
	}
	return extractBearerToken(r)
}

// extractBearerToken parses "Authorization: Bearer <token>"; the scheme is
// case-insensitive per RFC 7235. Returns empty string when absent or malformed.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// Resolve extracts and validates the request's API key. On success it
// records usage (best effort) and returns the credential. Errors:
// ErrNoCredential, ErrMalformedKey (pre-lookup), ErrKeyNotFound,
// ErrKeyRevoked, or a wrapped store error.
func (rs *Resolver) Resolve(ctx context.Context, r *http.Request) (*models.Credential, error) {
	key := ExtractKey(r)
	if key == "" {
		return nil, ErrNoCredential
	}
	return rs.ResolveKey(ctx, key)
}

// ResolveKey validates a presented plaintext key
func (rs *Resolver) ResolveKey(ctx context.Context, key string) (*models.Credential, error) {
	metrics := observability.GetMetrics()

	// Format check happens before any store access so malformed input
	// never costs a lookup.
	if !ValidFormat(key) {
		metrics.RecordKeyValidation("malformed")
		return nil, ErrMalformedKey
	}

	cred, err := rs.store.GetCredentialByHash(ctx, HashKey(key))
	if err != nil {
		metrics.RecordKeyValidation("store_error")
		return nil, err
	}
	if cred == nil {
		metrics.RecordKeyValidation("not_found")
		return nil, ErrKeyNotFound
	}
	if !cred.Valid() {
		metrics.RecordKeyValidation("revoked")
		return nil, ErrKeyRevoked
	}

	// Usage stats are best effort; a failed update never fails the request.
	if err := rs.store.RecordCredentialUsage(ctx, cred.ID); err != nil {
		observability.Warn("failed to record credential usage",
			"credential_id", cred.ID.String(),
			"error", err)
	}

	metrics.RecordKeyValidation("ok")
	return cred, nil
}
