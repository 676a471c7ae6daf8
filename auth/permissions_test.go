package auth

import (
	"testing"

	"media-gateway/models"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name string
		perm Permission
		tier models.Tier
		want bool
	}{
		{"read_only can read", PermissionRead, models.TierReadOnly, true},
		{"read_only cannot download", PermissionDownload, models.TierReadOnly, false},
		{"read_only cannot admin", PermissionAdmin, models.TierReadOnly, false},
		{"download can read", PermissionRead, models.TierDownload, true},
		{"download can download", PermissionDownload, models.TierDownload, true},
		{"download cannot admin", PermissionAdmin, models.TierDownload, false},
		{"admin can read", PermissionRead, models.TierAdmin, true},
		{"admin can download", PermissionDownload, models.TierAdmin, true},
		{"admin can admin", PermissionAdmin, models.TierAdmin, true},
		{"full_access can read", PermissionRead, models.TierFullAccess, true},
		{"full_access can download", PermissionDownload, models.TierFullAccess, true},
		{"full_access can admin", PermissionAdmin, models.TierFullAccess, true},
		{"unknown tier denied", PermissionRead, models.Tier("superuser"), false},
		{"unknown permission denied", Permission("delete"), models.TierFullAccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.perm, tt.tier); got != tt.want {
				t.Errorf("Allowed(%q, %q) = %v, want %v", tt.perm, tt.tier, got, tt.want)
			}
		})
	}
}
