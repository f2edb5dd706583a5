package syncer

// Record is the minimal contract for rows tracked by a cache.
type Record interface {
	RecordID() string
}

// EventKind identifies the change reported by a feed event.
type EventKind int

const (
	EventInsert EventKind = iota
	EventUpdate
	EventDelete
)

// Event is a single change notification for a tracked row. For deletes the
// feed may only know the id, so ID takes precedence over Row when set.
type Event[T Record] struct {
	Kind EventKind
	Row  T
	ID   string
}

func (e Event[T]) recordID() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Row.RecordID()
}

// Cache is the in-memory mapping from record id to last-known value for one
// synchronization scope. It layers an optimistic overlay on top of the
// authoritative rows:
//
//   - Populate (snapshot) never touches an id with a pending optimistic
//     entry, so a late snapshot cannot clobber a local mutation.
//   - An authoritative event for an id clears its overlay entry, unless the
//     newer comparator reports the incoming row as stale, in which case the
//     event is dropped and the optimistic value stands.
//   - An optimistic removal leaves a tombstone: replayed inserts for the id
//     are dropped until the confirming update or delete arrives, so a late
//     duplicate of the original insert cannot resurrect the row.
//   - Reads consult the overlay before the authoritative rows.
//
// Cache performs no locking; the owning Synchronizer serializes access.
type Cache[T Record] struct {
	rows    map[string]T
	overlay map[string]T
	removed map[string]struct{}

	// newer reports whether incoming should replace existing. A nil
	// comparator means incoming always wins (idempotent upsert).
	newer func(incoming, existing T) bool
}

// NewCache returns an empty cache using the provided staleness comparator,
// which may be nil.
func NewCache[T Record](newer func(incoming, existing T) bool) *Cache[T] {
	return &Cache[T]{
		rows:    make(map[string]T),
		overlay: make(map[string]T),
		removed: make(map[string]struct{}),
		newer:   newer,
	}
}

// Populate loads a snapshot result. Ids with pending optimistic entries or
// removals are skipped; everything else is replaced wholesale.
func (c *Cache[T]) Populate(rows []T) {
	for _, row := range rows {
		id := row.RecordID()
		if _, pending := c.overlay[id]; pending {
			continue
		}
		if _, gone := c.removed[id]; gone {
			continue
		}
		c.rows[id] = row
	}
}

// Apply merges one feed event into the cache and reports whether the cache
// changed. Inserts and updates are the same idempotent upsert: an update for
// an unknown id (event raced ahead of the snapshot) behaves as an insert,
// and a duplicate delivery of the same row is a no-op at the list level.
func (c *Cache[T]) Apply(evt Event[T]) bool {
	id := evt.recordID()
	if id == "" {
		return false
	}

	switch evt.Kind {
	case EventDelete:
		_, hadRow := c.rows[id]
		_, hadOverlay := c.overlay[id]
		delete(c.rows, id)
		delete(c.overlay, id)
		delete(c.removed, id)
		return hadRow || hadOverlay

	case EventInsert, EventUpdate:
		if _, gone := c.removed[id]; gone {
			if evt.Kind == EventInsert {
				// Replay of the row removed optimistically; the
				// confirming update or delete has not arrived yet.
				return false
			}
			delete(c.removed, id)
		}
		if existing, pending := c.overlay[id]; pending {
			if c.newer != nil && !c.newer(evt.Row, existing) {
				// Stale replay from before the optimistic mutation.
				return false
			}
			delete(c.overlay, id)
			c.rows[id] = evt.Row
			return true
		}
		if existing, ok := c.rows[id]; ok {
			if c.newer != nil && !c.newer(evt.Row, existing) {
				return false
			}
		}
		c.rows[id] = evt.Row
		return true
	}

	return false
}

// PutOptimistic records a local mutation ahead of server confirmation. It
// supersedes any pending optimistic removal for the id.
func (c *Cache[T]) PutOptimistic(row T) {
	id := row.RecordID()
	delete(c.removed, id)
	c.overlay[id] = row
}

// RemoveOptimistic drops a row locally ahead of server confirmation and
// tombstones the id: replayed inserts are suppressed until the confirming
// update or delete event lands.
func (c *Cache[T]) RemoveOptimistic(id string) bool {
	_, hadRow := c.rows[id]
	_, hadOverlay := c.overlay[id]
	delete(c.rows, id)
	delete(c.overlay, id)
	c.removed[id] = struct{}{}
	return hadRow || hadOverlay
}

// Get returns the current value for id, overlay first.
func (c *Cache[T]) Get(id string) (T, bool) {
	if row, ok := c.overlay[id]; ok {
		return row, true
	}
	row, ok := c.rows[id]
	return row, ok
}

// Values returns every cached row with overlay entries shadowing
// authoritative ones. Order is unspecified.
func (c *Cache[T]) Values() []T {
	out := make([]T, 0, len(c.rows)+len(c.overlay))
	for id, row := range c.rows {
		if shadow, ok := c.overlay[id]; ok {
			out = append(out, shadow)
			continue
		}
		out = append(out, row)
	}
	for id, row := range c.overlay {
		if _, ok := c.rows[id]; !ok {
			out = append(out, row)
		}
	}
	return out
}

// Len reports the number of distinct record ids held.
func (c *Cache[T]) Len() int {
	n := len(c.rows)
	for id := range c.overlay {
		if _, ok := c.rows[id]; !ok {
			n++
		}
	}
	return n
}
