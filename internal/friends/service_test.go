package friends

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/partywise/backend/internal/feed"
	"github.com/partywise/backend/internal/identity"
	"github.com/partywise/backend/internal/models"
	"github.com/partywise/backend/internal/repositories"
)

type staticViewer string

func (v staticViewer) UserID() string { return string(v) }

// fakeRelations is an in-memory RelationStore enforcing the same
// unordered-pair uniqueness the database does.
type fakeRelations struct {
	mu        sync.Mutex
	rows      map[string]models.Friendship
	createErr error
	updateErr error
}

func newFakeRelations() *fakeRelations {
	return &fakeRelations{rows: make(map[string]models.Friendship)}
}

func (f *fakeRelations) Create(_ context.Context, friendship models.Friendship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.rows {
		if existing.Status == models.FriendshipDeclined {
			continue
		}
		samePair := (existing.UserID == friendship.UserID && existing.FriendID == friendship.FriendID) ||
			(existing.UserID == friendship.FriendID && existing.FriendID == friendship.UserID)
		if samePair {
			return repositories.ErrConflict
		}
	}
	f.rows[friendship.ID] = friendship
	return nil
}

func (f *fakeRelations) Get(_ context.Context, id string) (models.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return models.Friendship{}, repositories.ErrNotFound
	}
	return row, nil
}

func (f *fakeRelations) UpdateStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	row, ok := f.rows[id]
	if !ok {
		return repositories.ErrNotFound
	}
	row.Status = status
	row.UpdatedAt = time.Now().UTC()
	f.rows[id] = row
	return nil
}

func (f *fakeRelations) ListAcceptedFor(_ context.Context, userID string) ([]models.Friendship, error) {
	return f.list(func(r models.Friendship) bool {
		return r.Status == models.FriendshipAccepted && r.Involves(userID)
	}), nil
}

func (f *fakeRelations) ListPendingFor(_ context.Context, userID string) ([]models.Friendship, error) {
	return f.list(func(r models.Friendship) bool {
		return r.Status == models.FriendshipPending && r.FriendID == userID
	}), nil
}

func (f *fakeRelations) list(keep func(models.Friendship) bool) []models.Friendship {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Friendship
	for _, row := range f.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

type fakeDirectory struct {
	mu       sync.Mutex
	briefs   map[string]models.ProfileBrief
	taken    map[string]bool
	fetchErr error
	checkErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{briefs: make(map[string]models.ProfileBrief), taken: make(map[string]bool)}
}

func (d *fakeDirectory) Briefs(_ context.Context, ids []string) (map[string]models.ProfileBrief, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fetchErr != nil {
		return nil, d.fetchErr
	}
	out := make(map[string]models.ProfileBrief, len(ids))
	for _, id := range ids {
		if brief, ok := d.briefs[id]; ok {
			out[id] = brief
		}
	}
	return out, nil
}

func (d *fakeDirectory) UsernameTaken(_ context.Context, candidate string) (bool, error) {
	if d.checkErr != nil {
		return false, d.checkErr
	}
	return d.taken[candidate], nil
}

func (d *fakeDirectory) DisplayNameTaken(_ context.Context, candidate string) (bool, error) {
	if d.checkErr != nil {
		return false, d.checkErr
	}
	return d.taken[candidate], nil
}

func receive(t *testing.T, updates <-chan []Friend) []Friend {
	t.Helper()
	select {
	case list := <-updates:
		return list
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emission")
		return nil
	}
}

func publishFriendship(src *feed.Memory, op feed.Op, f models.Friendship) {
	src.Publish(feed.RawEvent{
		Table: repositories.FriendshipTable,
		Op:    op,
		Row:   repositories.EncodeFriendshipRow(f),
	})
}

func newTestService(t *testing.T, viewer string) (*Service, *fakeRelations, *fakeDirectory, *feed.Memory) {
	t.Helper()
	relations := newFakeRelations()
	directory := newFakeDirectory()
	src := feed.NewMemory()
	svc := NewService(relations, directory, NewBriefCache(directory), src, staticViewer(viewer), nil)
	return svc, relations, directory, src
}

func TestFriendsViewLifecycle(t *testing.T) {
	svc, relations, directory, src := newTestService(t, "u1")
	defer svc.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	relations.rows["f1"] = models.Friendship{
		ID: "f1", UserID: "u1", FriendID: "u2",
		Status: models.FriendshipAccepted, CreatedAt: now, UpdatedAt: now,
	}
	directory.briefs["u2"] = models.ProfileBrief{ID: "u2", DisplayName: "Ben"}
	directory.briefs["u3"] = models.ProfileBrief{ID: "u3", DisplayName: "Cal"}

	updates, err := svc.Friends(ctx)
	if err != nil {
		t.Fatalf("friends: %v", err)
	}

	list := receive(t, updates)
	if len(list) != 1 || list[0].Profile.DisplayName != "Ben" {
		t.Fatalf("unexpected initial list: %+v", list)
	}

	// The viewer appears in the friend_id column this time; the second
	// subscription must still deliver it.
	added := models.Friendship{
		ID: "f2", UserID: "u3", FriendID: "u1",
		Status: models.FriendshipAccepted, CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second),
	}
	publishFriendship(src, feed.OpInsert, added)

	list = receive(t, updates)
	if len(list) != 2 {
		t.Fatalf("expected 2 friends got %+v", list)
	}
	if list[0].Friendship.ID != "f2" {
		t.Fatalf("expected newest first got %+v", list)
	}
	if list[0].Profile.DisplayName != "Cal" {
		t.Fatalf("expected resolved profile got %+v", list[0].Profile)
	}

	// A friendship leaving accepted state leaves the list.
	removed := added
	removed.Status = models.FriendshipDeclined
	removed.UpdatedAt = now.Add(2 * time.Second)
	publishFriendship(src, feed.OpUpdate, removed)

	list = receive(t, updates)
	if len(list) != 1 || list[0].Friendship.ID != "f1" {
		t.Fatalf("expected f2 removed got %+v", list)
	}

	svc.StopFriends()
	if src.SubscriberCount() != 0 {
		t.Fatalf("expected subscriptions torn down got %d", src.SubscriberCount())
	}
}

func TestFriendsViewDuplicateDelivery(t *testing.T) {
	svc, _, _, src := newTestService(t, "u1")
	defer svc.Close()

	updates, err := svc.Friends(context.Background())
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	receive(t, updates)

	// A self-to-self test row matching both columns would be rejected by
	// the store, but a row can still arrive twice through replays.
	now := time.Now().UTC()
	row := models.Friendship{ID: "f1", UserID: "u1", FriendID: "u2", Status: models.FriendshipAccepted, CreatedAt: now, UpdatedAt: now}
	publishFriendship(src, feed.OpInsert, row)
	publishFriendship(src, feed.OpInsert, row)

	deadline := time.After(time.Second)
	var list []Friend
	for {
		select {
		case list = <-updates:
			if len(list) == 1 {
				// Drain any coalesced follow-up; it must be identical.
				select {
				case list = <-updates:
				default:
				}
				if len(list) != 1 {
					t.Fatalf("duplicate not absorbed: %+v", list)
				}
				return
			}
		case <-deadline:
			t.Fatalf("expected single entry got %+v", list)
		}
	}
}

func TestFriendsViewDegradesOnProfileFailure(t *testing.T) {
	svc, relations, directory, _ := newTestService(t, "u1")
	defer svc.Close()

	now := time.Now().UTC()
	relations.rows["f1"] = models.Friendship{
		ID: "f1", UserID: "u1", FriendID: "u2",
		Status: models.FriendshipAccepted, CreatedAt: now, UpdatedAt: now,
	}
	directory.fetchErr = errors.New("directory down")

	updates, err := svc.Friends(context.Background())
	if err != nil {
		t.Fatalf("friends: %v", err)
	}

	list := receive(t, updates)
	if len(list) != 1 {
		t.Fatalf("emission dropped on profile failure: %+v", list)
	}
	if list[0].Profile.ID != "u2" || list[0].Profile.DisplayName != "" {
		t.Fatalf("expected thin profile got %+v", list[0].Profile)
	}
}

func TestIncomingRequests(t *testing.T) {
	svc, relations, _, src := newTestService(t, "u1")
	defer svc.Close()

	now := time.Now().UTC()
	relations.rows["f1"] = models.Friendship{
		ID: "f1", UserID: "u2", FriendID: "u1",
		Status: models.FriendshipPending, CreatedAt: now, UpdatedAt: now,
	}

	updates, err := svc.IncomingRequests(context.Background())
	if err != nil {
		t.Fatalf("incoming requests: %v", err)
	}

	list := receive(t, updates)
	if len(list) != 1 || list[0].Friendship.ID != "f1" {
		t.Fatalf("unexpected initial requests: %+v", list)
	}

	// Requests the viewer sent are not incoming.
	outgoing := models.Friendship{ID: "f2", UserID: "u1", FriendID: "u3", Status: models.FriendshipPending, CreatedAt: now, UpdatedAt: now}
	publishFriendship(src, feed.OpInsert, outgoing)

	accepted := relations.rows["f1"]
	accepted.Status = models.FriendshipAccepted
	accepted.UpdatedAt = now.Add(time.Second)
	publishFriendship(src, feed.OpUpdate, accepted)

	list = receive(t, updates)
	if len(list) != 0 {
		t.Fatalf("expected empty request list got %+v", list)
	}
}

func TestSendRequest(t *testing.T) {
	svc, relations, _, _ := newTestService(t, "u1")
	ctx := context.Background()

	friendship, err := svc.SendRequest(ctx, "u2")
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if friendship.Status != models.FriendshipPending || friendship.UserID != "u1" || friendship.FriendID != "u2" {
		t.Fatalf("unexpected friendship: %+v", friendship)
	}
	if _, err := relations.Get(ctx, friendship.ID); err != nil {
		t.Fatalf("row not persisted: %v", err)
	}

	if _, err := svc.SendRequest(ctx, "u1"); !errors.Is(err, ErrSelfRequest) {
		t.Fatalf("expected self-request error got %v", err)
	}
	if _, err := svc.SendRequest(ctx, "u2"); !errors.Is(err, ErrDuplicateRelationship) {
		t.Fatalf("expected duplicate error got %v", err)
	}
	// The reverse direction is the same pair.
	other := NewService(relations, newFakeDirectory(), NewBriefCache(newFakeDirectory()), feed.NewMemory(), staticViewer("u2"), nil)
	if _, err := other.SendRequest(ctx, "u1"); !errors.Is(err, ErrDuplicateRelationship) {
		t.Fatalf("expected duplicate error for reverse pair got %v", err)
	}
}

func TestConcurrentSendRequestSinglePending(t *testing.T) {
	svc, relations, _, _ := newTestService(t, "u1")
	ctx := context.Background()

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendRequest(ctx, "u2")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var created, duplicate int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicateRelationship):
			duplicate++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || duplicate != attempts-1 {
		t.Fatalf("expected exactly one winner, got created=%d duplicate=%d", created, duplicate)
	}
	if got := len(relations.rows); got != 1 {
		t.Fatalf("expected single pending row got %d", got)
	}
}

func TestAcceptRequestOptimistic(t *testing.T) {
	svc, relations, directory, _ := newTestService(t, "u1")
	defer svc.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	relations.rows["f1"] = models.Friendship{
		ID: "f1", UserID: "u2", FriendID: "u1",
		Status: models.FriendshipPending, CreatedAt: now, UpdatedAt: now,
	}
	directory.briefs["u2"] = models.ProfileBrief{ID: "u2", DisplayName: "Ben"}

	pendingUpdates, err := svc.IncomingRequests(ctx)
	if err != nil {
		t.Fatalf("incoming requests: %v", err)
	}
	receive(t, pendingUpdates)

	acceptedUpdates, err := svc.Friends(ctx)
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	receive(t, acceptedUpdates)

	if err := svc.AcceptRequest(ctx, "f1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Both views move before any feed event arrives.
	list := receive(t, pendingUpdates)
	if len(list) != 0 {
		t.Fatalf("expected request removed optimistically got %+v", list)
	}
	list = receive(t, acceptedUpdates)
	if len(list) != 1 || list[0].Friendship.Status != models.FriendshipAccepted {
		t.Fatalf("expected optimistic accepted entry got %+v", list)
	}

	if row, _ := relations.Get(ctx, "f1"); row.Status != models.FriendshipAccepted {
		t.Fatalf("store not updated: %+v", row)
	}
}

func TestAcceptRequestRollback(t *testing.T) {
	svc, relations, _, _ := newTestService(t, "u1")
	defer svc.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	relations.rows["f1"] = models.Friendship{
		ID: "f1", UserID: "u2", FriendID: "u1",
		Status: models.FriendshipPending, CreatedAt: now, UpdatedAt: now,
	}

	pendingUpdates, err := svc.IncomingRequests(ctx)
	if err != nil {
		t.Fatalf("incoming requests: %v", err)
	}
	receive(t, pendingUpdates)

	relations.updateErr = errors.New("db down")
	if err := svc.AcceptRequest(ctx, "f1"); err == nil {
		t.Fatal("expected accept to fail")
	}

	// The optimistic removal rolls back to the authoritative pending row.
	deadline := time.After(time.Second)
	for {
		select {
		case list := <-pendingUpdates:
			if len(list) == 1 && list[0].Friendship.Status == models.FriendshipPending {
				return
			}
		case <-deadline:
			t.Fatal("pending request never restored")
		}
	}
}

func TestRespondNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t, "u1")
	if err := svc.AcceptRequest(context.Background(), "missing"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestViewsRequireViewer(t *testing.T) {
	svc, _, _, _ := newTestService(t, "")
	if _, err := svc.Friends(context.Background()); !errors.Is(err, identity.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated got %v", err)
	}
	if _, err := svc.IncomingRequests(context.Background()); !errors.Is(err, identity.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated got %v", err)
	}
	if _, err := svc.SendRequest(context.Background(), "u2"); !errors.Is(err, identity.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated got %v", err)
	}
}

func TestAvailabilityChecks(t *testing.T) {
	svc, _, directory, _ := newTestService(t, "u1")
	ctx := context.Background()

	directory.taken["ana"] = true

	available, err := svc.CheckUsernameAvailable(ctx, "ana")
	if err != nil {
		t.Fatalf("check username: %v", err)
	}
	if available {
		t.Fatal("expected taken username")
	}

	available, err = svc.CheckDisplayNameAvailable(ctx, "Fresh Name")
	if err != nil {
		t.Fatalf("check display name: %v", err)
	}
	if !available {
		t.Fatal("expected available display name")
	}

	if available, _ := svc.CheckUsernameAvailable(ctx, ""); available {
		t.Fatal("empty candidate is never available")
	}
}

func TestMapConstraint(t *testing.T) {
	if err := MapConstraint(repositories.ErrConflict); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected name taken got %v", err)
	}
	plain := errors.New("boom")
	if err := MapConstraint(plain); !errors.Is(err, plain) {
		t.Fatalf("expected passthrough got %v", err)
	}
}
