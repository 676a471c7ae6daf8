package auth

import "media-gateway/models"

// Permission names an operation class a handler can require
type Permission string

const (
	// PermissionRead covers read-only job and limit queries
	PermissionRead Permission = "read"

	// PermissionDownload covers job creation and retries
	PermissionDownload Permission = "download"

	// PermissionAdmin covers credential management
	PermissionAdmin Permission = "admin"
)

// allowSets maps each permission to the exact set of tiers that satisfy it.
// Tiers are deliberately not ordered: admin and full_access appear in every
// set, read_only and download only where they apply.
var allowSets = map[Permission]map[models.Tier]bool{
	PermissionRead: {
		models.TierReadOnly:   true,
		models.TierDownload:   true,
		models.TierAdmin:      true,
		models.TierFullAccess: true,
	},
	PermissionDownload: {
		models.TierDownload:   true,
		models.TierAdmin:      true,
		models.TierFullAccess: true,
	},
	PermissionAdmin: {
		models.TierAdmin:      true,
		models.TierFullAccess: true,
	},
}

// Allowed reports whether the given tier satisfies the required permission
func Allowed(required Permission, tier models.Tier) bool {
	set, ok := allowSets[required]
	if !ok {
		return false
	}
	return set[tier]
}
