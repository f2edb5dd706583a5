package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/partywise/backend/internal/avatars"
	"github.com/partywise/backend/internal/logging"
	"github.com/partywise/backend/internal/models"
	"github.com/partywise/backend/internal/repositories"
)

// ErrProfileWrite indicates the provisioning insert or patch itself failed,
// typically a username unique-constraint collision. Callers retry with a
// regenerated fallback username rather than surfacing a raw storage error.
var ErrProfileWrite = errors.New("profile write failed")

// Hints carries candidate identity data gathered at sign-in. Zero values
// mean "no hint"; the provisioner falls back to deterministic defaults.
type Hints struct {
	Email       string
	Username    string
	DisplayName string
}

const (
	defaultTheme         = "system"
	defaultNotifications = true
	defaultLocation      = false
)

// Provisioner creates-or-patches a user profile after authentication
// events. It is idempotent and safe under concurrent invocation: it only
// ever fills fields that are still unset and never overwrites a value the
// user has customized.
type Provisioner struct {
	repo    repositories.ProfileRepository
	avatars avatars.Provider
	logger  *slog.Logger
}

// NewProvisioner constructs a provisioner. A nil avatar provider falls back
// to the stateless placeholder service.
func NewProvisioner(repo repositories.ProfileRepository, avatarProvider avatars.Provider, logger *slog.Logger) *Provisioner {
	if avatarProvider == nil {
		avatarProvider = avatars.NewPlaceholder("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{repo: repo, avatars: avatarProvider, logger: logger}
}

// EnsureProfile makes sure a profile row exists for the user with every
// provisionable field populated, creating or patching as needed. Safe to
// call on every sign-in.
func (p *Provisioner) EnsureProfile(ctx context.Context, userID string, hints Hints) (models.Profile, error) {
	if userID == "" {
		return models.Profile{}, errors.New("user id must be provided")
	}

	ctx, span := logging.StartSpan(ctx, "profiles.ensure")
	defer span.End()

	defaults := p.defaults(ctx, userID, hints)

	existing, err := p.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return p.insert(ctx, userID, defaults)
	case err != nil:
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	return p.patch(ctx, existing, defaults)
}

func (p *Provisioner) insert(ctx context.Context, userID string, defaults repositories.ProfilePatch) (models.Profile, error) {
	now := time.Now().UTC()
	profile := models.Profile{
		ID:                   userID,
		Username:             defaults.Username,
		DisplayName:          defaults.DisplayName,
		AvatarURL:            defaults.AvatarURL,
		Theme:                defaults.Theme,
		NotificationsEnabled: defaults.NotificationsEnabled,
		LocationEnabled:      defaults.LocationEnabled,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := p.repo.Insert(ctx, profile)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repositories.ErrConflict) {
		return models.Profile{}, fmt.Errorf("%w: %v", ErrProfileWrite, err)
	}

	// Conflict: either another invocation provisioned the row first, or the
	// derived username collided. Re-read to tell the two apart.
	existing, getErr := p.repo.Get(ctx, userID)
	if errors.Is(getErr, repositories.ErrNotFound) {
		return models.Profile{}, fmt.Errorf("%w: username collision", ErrProfileWrite)
	}
	if getErr != nil {
		return models.Profile{}, fmt.Errorf("load profile after conflict: %w", getErr)
	}

	return p.patch(ctx, existing, defaults)
}

func (p *Provisioner) patch(ctx context.Context, existing models.Profile, defaults repositories.ProfilePatch) (models.Profile, error) {
	needed := repositories.ProfilePatch{}
	if existing.Username == nil {
		needed.Username = defaults.Username
	}
	if existing.DisplayName == nil {
		needed.DisplayName = defaults.DisplayName
	}
	if existing.AvatarURL == nil {
		needed.AvatarURL = defaults.AvatarURL
	}
	if existing.Theme == nil {
		needed.Theme = defaults.Theme
	}
	if existing.NotificationsEnabled == nil {
		needed.NotificationsEnabled = defaults.NotificationsEnabled
	}
	if existing.LocationEnabled == nil {
		needed.LocationEnabled = defaults.LocationEnabled
	}

	if needed.Empty() {
		return existing, nil
	}

	if err := p.repo.PatchDefaults(ctx, existing.ID, needed); err != nil {
		return models.Profile{}, fmt.Errorf("%w: %v", ErrProfileWrite, err)
	}

	patched, err := p.repo.Get(ctx, existing.ID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile after patch: %w", err)
	}
	return patched, nil
}

func (p *Provisioner) defaults(ctx context.Context, userID string, hints Hints) repositories.ProfilePatch {
	username := strings.TrimSpace(hints.Username)
	if username == "" {
		username = emailLocalPart(hints.Email)
	}
	if username == "" {
		username = FallbackUsername(userID)
	}

	displayName := strings.TrimSpace(hints.DisplayName)
	if displayName == "" {
		displayName = username
	}

	avatarURL, err := p.avatars.URLFor(ctx, userID)
	if err != nil {
		// Keep provisioning deterministic even when the avatar store is down.
		p.logger.Warn("fall back to placeholder avatar", "userId", userID, "error", err)
		avatarURL, _ = avatars.NewPlaceholder("").URLFor(ctx, userID)
	}

	theme := defaultTheme
	notifications := defaultNotifications
	location := defaultLocation

	return repositories.ProfilePatch{
		Username:             &username,
		DisplayName:          &displayName,
		AvatarURL:            &avatarURL,
		Theme:                &theme,
		NotificationsEnabled: &notifications,
		LocationEnabled:      &location,
	}
}

// FallbackUsername derives a deterministic username from the user id,
// "user_" plus the first eight hex characters.
func FallbackUsername(userID string) string {
	compact := strings.ToLower(strings.ReplaceAll(userID, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "user_" + compact
}

func emailLocalPart(email string) string {
	email = strings.TrimSpace(email)
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:at]
}
