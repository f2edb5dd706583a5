package syncer

import "testing"

type note struct {
	ID   string
	Text string
	Rev  int
}

func (n note) RecordID() string { return n.ID }

func noteNewer(incoming, existing note) bool {
	return incoming.Rev >= existing.Rev
}

func TestCacheApplyUpsert(t *testing.T) {
	cache := NewCache[note](nil)

	if changed := cache.Apply(Event[note]{Kind: EventInsert, Row: note{ID: "a", Text: "hi"}}); !changed {
		t.Fatal("expected insert to change cache")
	}
	if got, ok := cache.Get("a"); !ok || got.Text != "hi" {
		t.Fatalf("unexpected row: %+v ok=%v", got, ok)
	}

	// An update for an id the snapshot never delivered lands as an insert.
	cache.Apply(Event[note]{Kind: EventUpdate, Row: note{ID: "b", Text: "new"}})
	if cache.Len() != 2 {
		t.Fatalf("expected 2 rows got %d", cache.Len())
	}

	cache.Apply(Event[note]{Kind: EventUpdate, Row: note{ID: "a", Text: "edited"}})
	if got, _ := cache.Get("a"); got.Text != "edited" {
		t.Fatalf("expected edited row got %+v", got)
	}
}

func TestCacheApplyStaleReplay(t *testing.T) {
	cache := NewCache(noteNewer)

	cache.Apply(Event[note]{Kind: EventInsert, Row: note{ID: "a", Text: "v2", Rev: 2}})

	if changed := cache.Apply(Event[note]{Kind: EventUpdate, Row: note{ID: "a", Text: "v1", Rev: 1}}); changed {
		t.Fatal("expected stale replay to be dropped")
	}
	if got, _ := cache.Get("a"); got.Text != "v2" {
		t.Fatalf("stale replay overwrote row: %+v", got)
	}

	// Equal revision replaces; duplicate delivery converges on the same row.
	cache.Apply(Event[note]{Kind: EventUpdate, Row: note{ID: "a", Text: "v2", Rev: 2}})
	if got, _ := cache.Get("a"); got.Text != "v2" {
		t.Fatalf("unexpected row after duplicate delivery: %+v", got)
	}
}

func TestCacheApplyDelete(t *testing.T) {
	cache := NewCache(noteNewer)
	cache.Populate([]note{{ID: "a", Rev: 5}})

	// Deletes are id-only and unconditional, comparator or not.
	if changed := cache.Apply(Event[note]{Kind: EventDelete, ID: "a"}); !changed {
		t.Fatal("expected delete to change cache")
	}
	if _, ok := cache.Get("a"); ok {
		t.Fatal("row survived delete")
	}
	if changed := cache.Apply(Event[note]{Kind: EventDelete, ID: "a"}); changed {
		t.Fatal("expected repeated delete to be a no-op")
	}
}

func TestCachePopulateSkipsOptimistic(t *testing.T) {
	cache := NewCache[note](nil)
	cache.PutOptimistic(note{ID: "a", Text: "local"})

	cache.Populate([]note{{ID: "a", Text: "server"}, {ID: "b", Text: "other"}})

	if got, _ := cache.Get("a"); got.Text != "local" {
		t.Fatalf("snapshot clobbered optimistic entry: %+v", got)
	}
	if got, _ := cache.Get("b"); got.Text != "other" {
		t.Fatalf("missing snapshot row: %+v", got)
	}
}

func TestCacheOptimisticClearedByAuthoritativeEvent(t *testing.T) {
	cache := NewCache(noteNewer)
	cache.Populate([]note{{ID: "a", Text: "server", Rev: 1}})

	cache.PutOptimistic(note{ID: "a", Text: "local", Rev: 2})
	if got, _ := cache.Get("a"); got.Text != "local" {
		t.Fatalf("overlay not shadowing: %+v", got)
	}

	// A replay from before the mutation leaves the optimistic value standing.
	if changed := cache.Apply(Event[note]{Kind: EventInsert, Row: note{ID: "a", Text: "server", Rev: 1}}); changed {
		t.Fatal("stale replay cleared the overlay")
	}
	if got, _ := cache.Get("a"); got.Text != "local" {
		t.Fatalf("expected optimistic value got %+v", got)
	}

	// The confirming event replaces the overlay with authoritative state.
	cache.Apply(Event[note]{Kind: EventUpdate, Row: note{ID: "a", Text: "confirmed", Rev: 2}})
	if got, _ := cache.Get("a"); got.Text != "confirmed" {
		t.Fatalf("expected confirmed value got %+v", got)
	}

	// The overlay is gone: a later snapshot may replace the row again.
	cache.Populate([]note{{ID: "a", Text: "resync", Rev: 3}})
	if got, _ := cache.Get("a"); got.Text != "resync" {
		t.Fatalf("expected resynced value got %+v", got)
	}
}

func TestCacheRemoveOptimistic(t *testing.T) {
	cache := NewCache[note](nil)
	cache.Populate([]note{{ID: "a"}})

	if removed := cache.RemoveOptimistic("a"); !removed {
		t.Fatal("expected removal")
	}
	if _, ok := cache.Get("a"); ok {
		t.Fatal("row survived optimistic removal")
	}
	if removed := cache.RemoveOptimistic("a"); removed {
		t.Fatal("expected second removal to be a no-op")
	}
}

func TestCacheRemoveOptimisticSuppressesReplayedInsert(t *testing.T) {
	cache := NewCache[note](nil)
	cache.Populate([]note{{ID: "a", Text: "pending"}})
	cache.RemoveOptimistic("a")

	// A late duplicate of the original insert must not resurrect the row.
	if changed := cache.Apply(Event[note]{Kind: EventInsert, Row: note{ID: "a", Text: "pending"}}); changed {
		t.Fatal("replayed insert resurrected a removed row")
	}
	if _, ok := cache.Get("a"); ok {
		t.Fatal("removed row came back")
	}

	// A snapshot replay is suppressed the same way.
	cache.Populate([]note{{ID: "a", Text: "pending"}})
	if _, ok := cache.Get("a"); ok {
		t.Fatal("snapshot resurrected a removed row")
	}

	// The confirming update clears the tombstone and applies normally.
	if changed := cache.Apply(Event[note]{Kind: EventUpdate, Row: note{ID: "a", Text: "accepted"}}); !changed {
		t.Fatal("confirming update was dropped")
	}
	got, ok := cache.Get("a")
	if !ok || got.Text != "accepted" {
		t.Fatalf("expected confirmed row got %+v ok=%v", got, ok)
	}

	// Once confirmed, inserts apply again.
	cache.RemoveOptimistic("a")
	cache.Apply(Event[note]{Kind: EventDelete, ID: "a"})
	if changed := cache.Apply(Event[note]{Kind: EventInsert, Row: note{ID: "a", Text: "new"}}); !changed {
		t.Fatal("insert after confirmed delete was dropped")
	}
}

func TestCachePutOptimisticSupersedesRemoval(t *testing.T) {
	cache := NewCache[note](nil)
	cache.Populate([]note{{ID: "a", Text: "pending"}})
	cache.RemoveOptimistic("a")

	cache.PutOptimistic(note{ID: "a", Text: "pending"})
	got, ok := cache.Get("a")
	if !ok || got.Text != "pending" {
		t.Fatalf("expected restored row got %+v ok=%v", got, ok)
	}

	// The restore also lifts the insert suppression.
	if changed := cache.Apply(Event[note]{Kind: EventInsert, Row: note{ID: "a", Text: "server"}}); !changed {
		t.Fatal("insert after restore was dropped")
	}
}

func TestCacheValuesShadowing(t *testing.T) {
	cache := NewCache[note](nil)
	cache.Populate([]note{{ID: "a", Text: "server"}, {ID: "b", Text: "server"}})
	cache.PutOptimistic(note{ID: "a", Text: "local"})
	cache.PutOptimistic(note{ID: "c", Text: "local-only"})

	if cache.Len() != 3 {
		t.Fatalf("expected 3 distinct ids got %d", cache.Len())
	}

	seen := make(map[string]string)
	for _, row := range cache.Values() {
		seen[row.ID] = row.Text
	}
	if seen["a"] != "local" || seen["b"] != "server" || seen["c"] != "local-only" {
		t.Fatalf("unexpected values: %v", seen)
	}
}
