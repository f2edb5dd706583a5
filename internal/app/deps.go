package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/partywise/backend/internal/avatars"
	"github.com/partywise/backend/internal/config"
	"github.com/partywise/backend/internal/db"
	"github.com/partywise/backend/internal/feed"
	"github.com/partywise/backend/internal/friends"
	"github.com/partywise/backend/internal/handlers"
	"github.com/partywise/backend/internal/identity"
	"github.com/partywise/backend/internal/invites"
	"github.com/partywise/backend/internal/middleware"
	"github.com/partywise/backend/internal/profiles"
	"github.com/partywise/backend/internal/repositories"
)

// buildDependencies wires together concrete implementations used by the
// HTTP handlers, plus the change-feed listener the caller must run.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, *feed.Listener, error) {
	listener := feed.NewListener(pool, feed.NotifyChannel, logger)

	profileRepo := repositories.NewPostgresProfileRepository(pool)
	friendshipRepo := repositories.NewPostgresFriendshipRepository(pool)
	inviteRepo := repositories.NewPostgresInviteRepository(pool)
	partyRepo := repositories.NewPostgresPartyRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)

	avatarProvider, err := buildAvatarProvider(ctx, cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	current := identity.NewCurrent()
	directory := profiles.NewDirectory(profileRepo, logger)
	provisioner := profiles.NewProvisioner(profileRepo, avatarProvider, logger)
	briefs := friends.NewBriefCache(directory)

	friendSvc := friends.NewService(friendshipRepo, directory, briefs, listener, current, logger)
	inviteSvc := invites.NewService(inviteRepo, partyRepo, briefs, listener, current, logger)

	// Sign-out tears down the live views; the next sign-in reactivates
	// them with the new viewer scope.
	current.OnChange(func(userID string) {
		if userID == "" {
			friendSvc.Close()
			inviteSvc.Stop()
		}
	})

	return handlers.Dependencies{
		Accounts: repositories.NewPostgresAccountRepository(pool),
		Sessions: identity.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessionStore),
		Current:  current,
		Profiles: provisioner,
		Friends:  friendSvc,
		Invites:  inviteSvc,
		Limiter:  middleware.NewKeyRateLimiter(30, time.Minute, 10, 10*time.Minute),
	}, listener, nil
}

func buildAvatarProvider(ctx context.Context, cfg config.Config) (avatars.Provider, error) {
	if cfg.AvatarBucket == "" {
		return avatars.NewPlaceholder(""), nil
	}
	return avatars.NewS3Provider(ctx, avatars.S3Config{
		Bucket:        cfg.AvatarBucket,
		Region:        cfg.AvatarRegion,
		Endpoint:      cfg.AvatarEndpoint,
		PublicBaseURL: cfg.AvatarURLPrefix,
	})
}
