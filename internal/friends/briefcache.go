package friends

import (
	"context"
	"sync"

	"github.com/partywise/backend/internal/models"
)

// BriefFetcher batch-fetches profile display projections.
type BriefFetcher interface {
	Briefs(ctx context.Context, ids []string) (map[string]models.ProfileBrief, error)
}

// BriefCache memoizes ProfileBrief lookups for a session. Entries are never
// evicted: briefs are display data, not a source of truth, and a stale
// display name costs less than refetching on every emission.
type BriefCache struct {
	fetcher BriefFetcher

	mu    sync.RWMutex
	items map[string]models.ProfileBrief
}

// NewBriefCache wraps the fetcher with a memoization layer.
func NewBriefCache(fetcher BriefFetcher) *BriefCache {
	return &BriefCache{fetcher: fetcher, items: make(map[string]models.ProfileBrief)}
}

// Resolve returns briefs for the requested ids, fetching only the ones not
// already cached. On fetch failure the cached subset is still returned
// alongside the error so callers can degrade instead of dropping rows.
func (c *BriefCache) Resolve(ctx context.Context, ids []string) (map[string]models.ProfileBrief, error) {
	out := make(map[string]models.ProfileBrief, len(ids))
	var missing []string

	c.mu.RLock()
	for _, id := range ids {
		if brief, ok := c.items[id]; ok {
			out[id] = brief
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.fetcher.Briefs(ctx, missing)
	if err != nil {
		return out, err
	}

	c.mu.Lock()
	for id, brief := range fetched {
		c.items[id] = brief
		out[id] = brief
	}
	c.mu.Unlock()

	return out, nil
}

// Put seeds the cache, e.g. from a freshly provisioned profile.
func (c *BriefCache) Put(brief models.ProfileBrief) {
	c.mu.Lock()
	c.items[brief.ID] = brief
	c.mu.Unlock()
}
