package repositories

import (
	"context"

	"github.com/partywise/backend/internal/models"
)

// FriendshipRepository defines data access for friend relationships.
type FriendshipRepository interface {
	Create(ctx context.Context, friendship models.Friendship) error
	Get(ctx context.Context, id string) (models.Friendship, error)
	UpdateStatus(ctx context.Context, id, status string) error
	// ListAcceptedFor returns accepted friendships where the user is either party.
	ListAcceptedFor(ctx context.Context, userID string) ([]models.Friendship, error)
	// ListPendingFor returns pending requests addressed to the user.
	ListPendingFor(ctx context.Context, userID string) ([]models.Friendship, error)
}
