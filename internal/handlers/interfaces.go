package handlers

import (
	"context"

	"github.com/partywise/backend/internal/friends"
	"github.com/partywise/backend/internal/models"
	"github.com/partywise/backend/internal/profiles"
)

// AccountStore captures the persistence operations required by the auth handlers.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	FindByEmail(ctx context.Context, email string) (models.Account, error)
}

// SessionManager issues, refreshes, and resolves authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Resolve(ctx context.Context, accessToken string) (string, error)
	Revoke(ctx context.Context, token string)
}

// CurrentUser tracks the signed-in user the live views are scoped to.
type CurrentUser interface {
	UserID() string
	Set(userID string)
	Clear()
}

// ProfileProvisioner guarantees a profile row exists for a signed-in user.
type ProfileProvisioner interface {
	EnsureProfile(ctx context.Context, userID string, hints profiles.Hints) (models.Profile, error)
}

// FriendService captures the friend-relationship operations the handlers expose.
type FriendService interface {
	Friends(ctx context.Context) (<-chan []friends.Friend, error)
	IncomingRequests(ctx context.Context) (<-chan []friends.Friend, error)
	SendRequest(ctx context.Context, targetID string) (models.Friendship, error)
	AcceptRequest(ctx context.Context, requestID string) error
	DeclineRequest(ctx context.Context, requestID string) error
	CheckUsernameAvailable(ctx context.Context, candidate string) (bool, error)
	CheckDisplayNameAvailable(ctx context.Context, candidate string) (bool, error)
}

// InviteService captures the party-invite operations the handlers expose.
type InviteService interface {
	Incoming(ctx context.Context) (<-chan []models.PartyInvite, error)
	Accept(ctx context.Context, inviteID string) error
	Decline(ctx context.Context, inviteID string) error
}
