package feed

import (
	"context"
	"sync"
)

// Memory is an in-process Source for tests and local development. Publish
// dispatches synchronously to every matching subscriber.
type Memory struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*memorySub
}

type memorySub struct {
	owner  *Memory
	id     int
	table  string
	filter Filter
	fn     func(RawEvent)
	once   sync.Once
}

// NewMemory returns an empty in-memory feed.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]*memorySub)}
}

// Subscribe registers a callback for changes to table matching filter.
func (m *Memory) Subscribe(_ context.Context, table string, filter Filter, fn func(RawEvent)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub := &memorySub{owner: m, id: m.nextID, table: table, filter: filter, fn: fn}
	m.subs[sub.id] = sub
	return sub, nil
}

// Publish delivers the event to every matching subscriber. Callbacks run
// without the registry lock held so a subscriber may unsubscribe, or tear
// down a synchronizer, from within its own delivery path.
func (m *Memory) Publish(evt RawEvent) {
	m.mu.Lock()
	matched := make([]*memorySub, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.table == evt.Table && sub.filter.matches(evt) {
			matched = append(matched, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range matched {
		sub.fn(evt)
	}
}

// SubscriberCount reports active subscriptions. Useful for teardown tests.
func (m *Memory) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (s *memorySub) Unsubscribe() {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s.id)
		s.owner.mu.Unlock()
	})
}
