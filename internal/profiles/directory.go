package profiles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/partywise/backend/internal/models"
	"github.com/partywise/backend/internal/repositories"
)

// Directory resolves ProfileBrief projections and name availability for
// other services.
type Directory struct {
	repo   repositories.ProfileRepository
	logger *slog.Logger
}

// NewDirectory constructs a directory over the profile repository.
func NewDirectory(repo repositories.ProfileRepository, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{repo: repo, logger: logger}
}

// Briefs batch-fetches display projections keyed by profile id.
func (d *Directory) Briefs(ctx context.Context, ids []string) (map[string]models.ProfileBrief, error) {
	briefs, err := d.repo.GetBriefs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch profile briefs: %w", err)
	}
	out := make(map[string]models.ProfileBrief, len(briefs))
	for _, brief := range briefs {
		out[brief.ID] = brief
	}
	return out, nil
}

// UsernameTaken reports whether the candidate username is already in use,
// case-insensitively.
func (d *Directory) UsernameTaken(ctx context.Context, candidate string) (bool, error) {
	return d.repo.UsernameExists(ctx, candidate)
}

// DisplayNameTaken reports whether the candidate display name is already in
// use. When the dedicated existence check fails it falls back to a filtered
// list query using the same exact case-insensitive match, so the fallback
// cannot report a looser result than the primary path.
func (d *Directory) DisplayNameTaken(ctx context.Context, candidate string) (bool, error) {
	taken, err := d.repo.DisplayNameExists(ctx, candidate)
	if err == nil {
		return taken, nil
	}

	d.logger.Warn("display name check fell back to list query", "error", err)
	matches, listErr := d.repo.SearchByDisplayName(ctx, candidate)
	if listErr != nil {
		return false, fmt.Errorf("display name availability: %w", listErr)
	}
	return len(matches) > 0, nil
}
