package repositories

import (
	"context"

	"github.com/partywise/backend/internal/models"
)

// InviteRepository defines data access for party invites. Accept and
// Decline delegate to atomic server-side procedures: acceptance creates the
// membership row and flips the invite status in one transaction, which a
// client-side two-step write could leave half done.
type InviteRepository interface {
	Create(ctx context.Context, invite models.PartyInvite) error
	Get(ctx context.Context, id string) (models.PartyInvite, error)
	// ListPendingFor returns pending invites addressed to the user.
	ListPendingFor(ctx context.Context, inviteeID string) ([]models.PartyInvite, error)
	Accept(ctx context.Context, inviteID, userID string) error
	Decline(ctx context.Context, inviteID, userID string) error
}

// PartyRepository defines the party lookups the invite flow needs.
type PartyRepository interface {
	Create(ctx context.Context, party models.Party) error
	Get(ctx context.Context, id string) (models.Party, error)
}
