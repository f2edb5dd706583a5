package repositories

import (
	"context"

	"github.com/partywise/backend/internal/models"
)

// ProfilePatch carries default values for the provisionable profile fields.
// Each non-nil entry is applied only when the stored column is still null,
// so the patch can never overwrite a value the user has customized.
type ProfilePatch struct {
	Username             *string
	DisplayName          *string
	AvatarURL            *string
	Theme                *string
	NotificationsEnabled *bool
	LocationEnabled      *bool
}

// Empty reports whether the patch would change nothing.
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.DisplayName == nil && p.AvatarURL == nil &&
		p.Theme == nil && p.NotificationsEnabled == nil && p.LocationEnabled == nil
}

// ProfileRepository defines data access for user profiles.
type ProfileRepository interface {
	Get(ctx context.Context, id string) (models.Profile, error)
	Insert(ctx context.Context, profile models.Profile) error
	PatchDefaults(ctx context.Context, id string, patch ProfilePatch) error
	GetBriefs(ctx context.Context, ids []string) ([]models.ProfileBrief, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	DisplayNameExists(ctx context.Context, displayName string) (bool, error)
	SearchByDisplayName(ctx context.Context, displayName string) ([]models.ProfileBrief, error)
}
