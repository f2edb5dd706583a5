package repositories

import (
	"context"

	"github.com/partywise/backend/internal/models"
)

// AccountRepository defines the data access contract for auth accounts.
type AccountRepository interface {
	Create(ctx context.Context, account models.Account) error
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	Get(ctx context.Context, id string) (models.Account, error)
}
