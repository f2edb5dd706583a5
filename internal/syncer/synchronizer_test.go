package syncer

import (
	"context"
	"errors"
	"testing"
)

type fakeSub struct {
	unsubscribed int
}

func (f *fakeSub) Unsubscribe() { f.unsubscribed++ }

// fakeFeed hands the apply callback back to the test so it can inject
// events as if they arrived over a live subscription.
type fakeFeed struct {
	apply func(Event[note])
	sub   *fakeSub
	err   error
}

func (f *fakeFeed) subscribe(_ context.Context, apply func(Event[note])) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.apply = apply
	f.sub = &fakeSub{}
	return f.sub, nil
}

func newTestSynchronizer(t *testing.T, snapshot []note, feeds ...*fakeFeed) *Synchronizer[note] {
	t.Helper()

	subscribes := make([]SubscribeFunc[note], 0, len(feeds))
	for _, f := range feeds {
		subscribes = append(subscribes, f.subscribe)
	}

	sync, err := New(Options[note]{
		Snapshot:   func(context.Context) ([]note, error) { return snapshot, nil },
		Subscribes: subscribes,
		Newer:      noteNewer,
	})
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	return sync
}

func drain(t *testing.T, updates <-chan []note) []note {
	t.Helper()
	select {
	case list := <-updates:
		return list
	default:
		t.Fatal("expected an emission")
		return nil
	}
}

func TestSynchronizerActivateEmitsSnapshot(t *testing.T) {
	feed := &fakeFeed{}
	sync := newTestSynchronizer(t, []note{{ID: "b"}, {ID: "a"}}, feed)

	updates, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer sync.Deactivate()

	list := drain(t, updates)
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("unexpected initial list: %+v", list)
	}
	if feed.apply == nil {
		t.Fatal("expected subscription to be attached")
	}
}

func TestSynchronizerAppliesEvents(t *testing.T) {
	feed := &fakeFeed{}
	sync := newTestSynchronizer(t, []note{{ID: "a", Rev: 1}}, feed)

	updates, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer sync.Deactivate()
	drain(t, updates)

	feed.apply(Event[note]{Kind: EventInsert, Row: note{ID: "b", Rev: 1}})
	list := drain(t, updates)
	if len(list) != 2 {
		t.Fatalf("expected 2 rows got %+v", list)
	}

	feed.apply(Event[note]{Kind: EventDelete, ID: "a"})
	list = drain(t, updates)
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("expected only b got %+v", list)
	}

	// A stale replay changes nothing and emits nothing.
	feed.apply(Event[note]{Kind: EventUpdate, Row: note{ID: "b", Rev: 0}})
	select {
	case list := <-updates:
		t.Fatalf("unexpected emission for stale replay: %+v", list)
	default:
	}
}

func TestSynchronizerMergesDuplicateSubscriptions(t *testing.T) {
	first := &fakeFeed{}
	second := &fakeFeed{}
	sync := newTestSynchronizer(t, nil, first, second)

	updates, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer sync.Deactivate()
	drain(t, updates)

	// The same logical change arrives on both subscriptions.
	row := note{ID: "a", Text: "once", Rev: 1}
	first.apply(Event[note]{Kind: EventInsert, Row: row})
	second.apply(Event[note]{Kind: EventInsert, Row: row})

	list := drain(t, updates)
	if len(list) != 1 || list[0].Text != "once" {
		t.Fatalf("duplicate delivery not absorbed: %+v", list)
	}
}

func TestSynchronizerCoalescesEmissions(t *testing.T) {
	feed := &fakeFeed{}
	sync := newTestSynchronizer(t, nil, feed)

	updates, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer sync.Deactivate()

	// Nobody drains between these; only the latest state must be readable.
	feed.apply(Event[note]{Kind: EventInsert, Row: note{ID: "a", Rev: 1}})
	feed.apply(Event[note]{Kind: EventInsert, Row: note{ID: "b", Rev: 1}})
	feed.apply(Event[note]{Kind: EventInsert, Row: note{ID: "c", Rev: 1}})

	list := drain(t, updates)
	if len(list) != 3 {
		t.Fatalf("expected coalesced final list got %+v", list)
	}
	select {
	case extra := <-updates:
		t.Fatalf("expected a single buffered emission, got another: %+v", extra)
	default:
	}
}

func TestSynchronizerKeepFilter(t *testing.T) {
	feed := &fakeFeed{}
	sync, err := New(Options[note]{
		Snapshot:   func(context.Context) ([]note, error) { return []note{{ID: "a", Text: "keep"}, {ID: "b", Text: "drop"}}, nil },
		Subscribes: []SubscribeFunc[note]{feed.subscribe},
		Keep:       func(n note) bool { return n.Text == "keep" },
	})
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}

	updates, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer sync.Deactivate()

	list := drain(t, updates)
	if len(list) != 1 || list[0].ID != "a" {
		t.Fatalf("keep filter not applied: %+v", list)
	}

	// Dropping out of the filter removes the row from the derived list even
	// though the cache still tracks it.
	feed.apply(Event[note]{Kind: EventUpdate, Row: note{ID: "a", Text: "drop"}})
	list = drain(t, updates)
	if len(list) != 0 {
		t.Fatalf("expected empty list got %+v", list)
	}
}

func TestSynchronizerDeactivate(t *testing.T) {
	feed := &fakeFeed{}
	sync := newTestSynchronizer(t, []note{{ID: "a"}}, feed)

	updates, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	drain(t, updates)

	sync.Deactivate()
	sync.Deactivate() // idempotent

	if feed.sub.unsubscribed == 0 {
		t.Fatal("expected subscription teardown")
	}
	if _, open := <-updates; open {
		t.Fatal("expected update channel to close")
	}
	if sync.Active() {
		t.Fatal("expected inactive synchronizer")
	}

	// Deliveries already in flight land after teardown and are dropped.
	feed.apply(Event[note]{Kind: EventInsert, Row: note{ID: "b"}})
	if list := sync.Reconciled(); list != nil {
		t.Fatalf("expected nil reconciled list after deactivation got %+v", list)
	}
}

func TestSynchronizerReactivation(t *testing.T) {
	feed := &fakeFeed{}
	sync := newTestSynchronizer(t, []note{{ID: "a"}}, feed)

	first, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	firstSub := feed.sub

	second, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	defer sync.Deactivate()

	if firstSub.unsubscribed == 0 {
		t.Fatal("expected first subscription torn down")
	}
	if _, open := <-first; open {
		t.Fatal("expected first channel closed")
	}
	if list := drain(t, second); len(list) != 1 {
		t.Fatalf("unexpected list on second activation: %+v", list)
	}
}

func TestSynchronizerActivationErrors(t *testing.T) {
	feed := &fakeFeed{}
	sync, err := New(Options[note]{
		Snapshot:   func(context.Context) ([]note, error) { return nil, errors.New("db down") },
		Subscribes: []SubscribeFunc[note]{feed.subscribe},
	})
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	if _, err := sync.Activate(context.Background()); err == nil {
		t.Fatal("expected snapshot error")
	}
	if sync.Active() {
		t.Fatal("expected synchronizer to stay inactive")
	}

	failing := &fakeFeed{err: errors.New("feed down")}
	sync = newTestSynchronizer(t, nil, failing)
	if _, err := sync.Activate(context.Background()); err == nil {
		t.Fatal("expected subscribe error")
	}
	if sync.Active() {
		t.Fatal("expected synchronizer torn down after subscribe failure")
	}
}

func TestSynchronizerOptimisticLifecycle(t *testing.T) {
	feed := &fakeFeed{}
	sync := newTestSynchronizer(t, []note{{ID: "a", Text: "server", Rev: 1}}, feed)

	updates, err := sync.Activate(context.Background())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer sync.Deactivate()
	drain(t, updates)

	sync.MutateOptimistic(note{ID: "a", Text: "local", Rev: 2})
	list := drain(t, updates)
	if list[0].Text != "local" {
		t.Fatalf("expected optimistic value got %+v", list)
	}

	feed.apply(Event[note]{Kind: EventUpdate, Row: note{ID: "a", Text: "confirmed", Rev: 2}})
	list = drain(t, updates)
	if list[0].Text != "confirmed" {
		t.Fatalf("expected confirmed value got %+v", list)
	}

	sync.RemoveOptimistic("a")
	list = drain(t, updates)
	if len(list) != 0 {
		t.Fatalf("expected empty list got %+v", list)
	}
}
