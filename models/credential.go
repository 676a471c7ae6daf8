package models

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the permission level attached to an API key
type Tier string

const (
	TierReadOnly   Tier = "read_only"
	TierDownload   Tier = "download"
	TierAdmin      Tier = "admin"
	TierFullAccess Tier = "full_access"
)

// ValidTier reports whether s names a known tier
func ValidTier(s string) bool {
	switch Tier(s) {
	case TierReadOnly, TierDownload, TierAdmin, TierFullAccess:
		return true
	}
	return false
}

// Credential represents an API key stored in the database.
// Only the SHA-256 hash of the key is persisted; the plaintext is
// returned to the caller exactly once, at creation.
type Credential struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"-"` // never expose the hash in JSON
	KeyPrefix   string     `json:"key_prefix"`
	Tier        Tier       `json:"tier"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CustomQuota *int       `json:"custom_quota,omitempty"` // per-minute override, nil = tier default
	CreatedBy   string     `json:"created_by,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewCredential creates a credential at the given tier, active, with a fresh ID
func NewCredential(name string, keyHash, keyPrefix string, tier Tier) *Credential {
	now := time.Now().UTC()
	return &Credential{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		Tier:      tier,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Valid reports whether the credential may be used right now:
// it must be active and not past its expiry (if one is set).
func (c *Credential) Valid() bool {
	if !c.Active {
		return false
	}
	if c.ExpiresAt != nil && !time.Now().Before(*c.ExpiresAt) {
		return false
	}
	return true
}
