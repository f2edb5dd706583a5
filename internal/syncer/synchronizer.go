package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// SnapshotFunc performs the initial bulk query for a synchronization scope.
type SnapshotFunc[T Record] func(ctx context.Context) ([]T, error)

// SubscribeFunc attaches one live subscription for the scope and delivers
// every matching change to apply. Storage-layer filters are single-column,
// so a scope spanning "viewer is either party" passes two SubscribeFuncs
// and the synchronizer merges their events; duplicate delivery of the same
// logical change is expected and absorbed by idempotent application.
type SubscribeFunc[T Record] func(ctx context.Context, apply func(Event[T])) (Subscription, error)

// Subscription is a handle to an attached feed subscription.
type Subscription interface {
	Unsubscribe()
}

// Options configures a Synchronizer.
type Options[T Record] struct {
	Snapshot   SnapshotFunc[T]
	Subscribes []SubscribeFunc[T]

	// Keep filters the derived list (e.g. only accepted friendships). A nil
	// predicate keeps every cached row.
	Keep func(T) bool

	// Less orders emitted lists. A nil comparator orders by record id so
	// emissions stay deterministic.
	Less func(a, b T) bool

	// Newer detects stale event replays using the record's own fields.
	// Nil means last-delivered wins.
	Newer func(incoming, existing T) bool

	Logger *slog.Logger
}

// Synchronizer keeps a local record cache fresh from a snapshot fetch plus
// live subscriptions and emits the reconciled list after every applied
// change. Emissions are fire-and-forget: the channel holds only the latest
// list and producers never block on a slow consumer.
type Synchronizer[T Record] struct {
	opts Options[T]

	mu      sync.Mutex
	cache   *Cache[T]
	subs    []Subscription
	updates chan []T
	active  bool
}

// New validates the options and returns an inactive synchronizer.
func New[T Record](opts Options[T]) (*Synchronizer[T], error) {
	if opts.Snapshot == nil {
		return nil, errors.New("syncer: snapshot func is required")
	}
	if len(opts.Subscribes) == 0 {
		return nil, errors.New("syncer: at least one subscribe func is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synchronizer[T]{opts: opts}, nil
}

// Activate runs the snapshot, populates the cache, emits the first
// reconciled list, then attaches the live subscriptions. The returned
// channel delivers the latest reconciled list after each applied change
// and closes on Deactivate. Re-activation tears down any previous run and
// starts fresh.
func (s *Synchronizer[T]) Activate(ctx context.Context) (<-chan []T, error) {
	s.mu.Lock()
	if s.active {
		s.teardownLocked()
	}
	s.mu.Unlock()

	rows, err := s.opts.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	s.mu.Lock()
	s.cache = NewCache(s.opts.Newer)
	s.cache.Populate(rows)
	s.updates = make(chan []T, 1)
	s.active = true
	s.emitLocked()
	updates := s.updates
	s.mu.Unlock()

	for _, subscribe := range s.opts.Subscribes {
		sub, err := subscribe(ctx, s.Apply)
		if err != nil {
			s.Deactivate()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		s.mu.Lock()
		if !s.active {
			// Deactivated while attaching; drop the straggler.
			s.mu.Unlock()
			sub.Unsubscribe()
			return nil, errors.New("syncer: deactivated during activation")
		}
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}

	return updates, nil
}

// Deactivate detaches every subscription, closes the update channel, and
// discards the cache. No event is applied and no list emitted afterwards,
// even if a delivery is already in flight. Safe to call twice.
func (s *Synchronizer[T]) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Synchronizer[T]) teardownLocked() {
	if !s.active {
		return
	}
	s.active = false
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	close(s.updates)
	s.cache = nil
}

// Apply merges one feed event into the cache and emits the reconciled list
// when the cache changed. Events arriving after deactivation are dropped.
func (s *Synchronizer[T]) Apply(evt Event[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	if s.cache.Apply(evt) {
		s.emitLocked()
	}
}

// MutateOptimistic records a local mutation ahead of server confirmation
// and emits. The overlay entry clears once the authoritative event for the
// same id arrives.
func (s *Synchronizer[T]) MutateOptimistic(row T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.cache.PutOptimistic(row)
	s.emitLocked()
}

// RemoveOptimistic drops a row locally ahead of server confirmation.
func (s *Synchronizer[T]) RemoveOptimistic(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	if s.cache.RemoveOptimistic(id) {
		s.emitLocked()
	}
}

// Reconciled returns the current derived list without waiting for an
// emission. Returns nil when inactive.
func (s *Synchronizer[T]) Reconciled() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	return s.reconciledLocked()
}

// Active reports whether the synchronizer is currently running.
func (s *Synchronizer[T]) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Synchronizer[T]) reconciledLocked() []T {
	var list []T
	for _, row := range s.cache.Values() {
		if s.opts.Keep != nil && !s.opts.Keep(row) {
			continue
		}
		list = append(list, row)
	}
	if s.opts.Less != nil {
		sort.Slice(list, func(i, j int) bool { return s.opts.Less(list[i], list[j]) })
	} else {
		sort.Slice(list, func(i, j int) bool { return list[i].RecordID() < list[j].RecordID() })
	}
	return list
}

// emitLocked publishes the latest reconciled list, replacing an undrained
// one so a slow consumer only ever sees coalesced state.
func (s *Synchronizer[T]) emitLocked() {
	list := s.reconciledLocked()
	select {
	case s.updates <- list:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- list
	}
}
