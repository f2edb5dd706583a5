package friends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/partywise/backend/internal/feed"
	"github.com/partywise/backend/internal/identity"
	"github.com/partywise/backend/internal/models"
	"github.com/partywise/backend/internal/repositories"
	"github.com/partywise/backend/internal/syncer"
)

var (
	// ErrDuplicateRelationship indicates a request or friendship already
	// exists for the pair. Surfaced to the UI as a state ("Sent",
	// "Friends"), not as an error dialog.
	ErrDuplicateRelationship = errors.New("relationship already exists")
	// ErrNameTaken indicates a username or display name is already in use.
	ErrNameTaken = errors.New("name already taken")
	// ErrSelfRequest indicates a user tried to friend themselves.
	ErrSelfRequest = errors.New("cannot send a friend request to yourself")
)

// RelationStore captures the persistence operations the service needs.
type RelationStore interface {
	Create(ctx context.Context, friendship models.Friendship) error
	Get(ctx context.Context, id string) (models.Friendship, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ListAcceptedFor(ctx context.Context, userID string) ([]models.Friendship, error)
	ListPendingFor(ctx context.Context, userID string) ([]models.Friendship, error)
}

// NameChecker answers availability pre-checks. The checks are a UX
// optimization only: two concurrent signups can both pass and one then
// fails at insert time, where the constraint violation is the sole source
// of truth and maps to ErrNameTaken.
type NameChecker interface {
	UsernameTaken(ctx context.Context, candidate string) (bool, error)
	DisplayNameTaken(ctx context.Context, candidate string) (bool, error)
}

// Viewer resolves the signed-in user for scope derivation.
type Viewer interface {
	UserID() string
}

// Friend pairs a friendship row with the other party's display projection.
type Friend struct {
	Friendship models.Friendship
	Profile    models.ProfileBrief
}

// Service keeps live friend lists reconciled against the change feed and
// exposes the request/accept/decline mutations.
type Service struct {
	relations RelationStore
	names     NameChecker
	briefs    *BriefCache
	source    feed.Source
	viewer    Viewer
	logger    *slog.Logger

	mu       sync.Mutex
	accepted *syncer.Synchronizer[models.Friendship]
	pending  *syncer.Synchronizer[models.Friendship]
}

// NewService wires the friend-relationship service.
func NewService(relations RelationStore, names NameChecker, briefs *BriefCache, source feed.Source, viewer Viewer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		relations: relations,
		names:     names,
		briefs:    briefs,
		source:    source,
		viewer:    viewer,
		logger:    logger,
	}
}

func friendshipNewer(incoming, existing models.Friendship) bool {
	return !incoming.UpdatedAt.Before(existing.UpdatedAt)
}

func newestFirst(a, b models.Friendship) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// Friends activates a live view of the viewer's accepted friendships. Each
// emission carries the full reconciled list with the other party resolved
// to a ProfileBrief; the channel closes on StopFriends or re-activation.
// The scope spans both role columns, so two feed subscriptions are merged.
func (s *Service) Friends(ctx context.Context) (<-chan []Friend, error) {
	viewerID := s.viewer.UserID()
	if viewerID == "" {
		return nil, identity.ErrNotAuthenticated
	}

	sync, err := syncer.New(syncer.Options[models.Friendship]{
		Snapshot: func(ctx context.Context) ([]models.Friendship, error) {
			return s.relations.ListAcceptedFor(ctx, viewerID)
		},
		Subscribes: []syncer.SubscribeFunc[models.Friendship]{
			feed.Typed(s.source, repositories.FriendshipTable, feed.Filter{Column: "user_id", Value: viewerID}, repositories.DecodeFriendshipRow, s.logger),
			feed.Typed(s.source, repositories.FriendshipTable, feed.Filter{Column: "friend_id", Value: viewerID}, repositories.DecodeFriendshipRow, s.logger),
		},
		Keep: func(f models.Friendship) bool {
			return f.Status == models.FriendshipAccepted && f.Involves(viewerID)
		},
		Less:   newestFirst,
		Newer:  friendshipNewer,
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}

	updates, err := sync.Activate(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate friends view: %w", err)
	}

	s.mu.Lock()
	if s.accepted != nil {
		s.accepted.Deactivate()
	}
	s.accepted = sync
	s.mu.Unlock()

	out := make(chan []Friend, 1)
	go s.forwardFriends(ctx, viewerID, updates, out)
	return out, nil
}

func (s *Service) forwardFriends(ctx context.Context, viewerID string, updates <-chan []models.Friendship, out chan []Friend) {
	defer close(out)
	for list := range updates {
		resolved := s.resolve(ctx, viewerID, list)
		// Latest-value send: a slow consumer only ever sees coalesced state.
		select {
		case out <- resolved:
		default:
			select {
			case <-out:
			default:
			}
			out <- resolved
		}
	}
}

func (s *Service) resolve(ctx context.Context, viewerID string, list []models.Friendship) []Friend {
	ids := make([]string, 0, len(list))
	for _, f := range list {
		ids = append(ids, f.OtherParty(viewerID))
	}

	briefs, err := s.briefs.Resolve(ctx, ids)
	if err != nil {
		// Degrade to thin entries rather than dropping the emission.
		s.logger.Warn("resolve profile briefs", "error", err)
	}

	friends := make([]Friend, 0, len(list))
	for _, f := range list {
		otherID := f.OtherParty(viewerID)
		brief, ok := briefs[otherID]
		if !ok {
			brief = models.ProfileBrief{ID: otherID}
		}
		friends = append(friends, Friend{Friendship: f, Profile: brief})
	}
	return friends
}

// IncomingRequests activates a live view of pending requests addressed to
// the viewer.
func (s *Service) IncomingRequests(ctx context.Context) (<-chan []Friend, error) {
	viewerID := s.viewer.UserID()
	if viewerID == "" {
		return nil, identity.ErrNotAuthenticated
	}

	sync, err := syncer.New(syncer.Options[models.Friendship]{
		Snapshot: func(ctx context.Context) ([]models.Friendship, error) {
			return s.relations.ListPendingFor(ctx, viewerID)
		},
		Subscribes: []syncer.SubscribeFunc[models.Friendship]{
			feed.Typed(s.source, repositories.FriendshipTable, feed.Filter{Column: "friend_id", Value: viewerID}, repositories.DecodeFriendshipRow, s.logger),
		},
		Keep: func(f models.Friendship) bool {
			return f.Status == models.FriendshipPending && f.FriendID == viewerID
		},
		Less:   newestFirst,
		Newer:  friendshipNewer,
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}

	updates, err := sync.Activate(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate incoming requests view: %w", err)
	}

	s.mu.Lock()
	if s.pending != nil {
		s.pending.Deactivate()
	}
	s.pending = sync
	s.mu.Unlock()

	out := make(chan []Friend, 1)
	go s.forwardFriends(ctx, viewerID, updates, out)
	return out, nil
}

// StopFriends tears down the accepted-friendships view.
func (s *Service) StopFriends() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepted != nil {
		s.accepted.Deactivate()
		s.accepted = nil
	}
}

// StopIncoming tears down the incoming-requests view.
func (s *Service) StopIncoming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Deactivate()
		s.pending = nil
	}
}

// Close tears down every live view.
func (s *Service) Close() {
	s.StopFriends()
	s.StopIncoming()
}

// SendRequest creates a pending friendship toward the target. A duplicate
// pair, in either direction and from either side, resolves to
// ErrDuplicateRelationship.
func (s *Service) SendRequest(ctx context.Context, targetID string) (models.Friendship, error) {
	viewerID := s.viewer.UserID()
	if viewerID == "" {
		return models.Friendship{}, identity.ErrNotAuthenticated
	}
	if targetID == "" {
		return models.Friendship{}, errors.New("target id must be provided")
	}
	if targetID == viewerID {
		return models.Friendship{}, ErrSelfRequest
	}

	now := time.Now().UTC()
	friendship := models.Friendship{
		ID:        uuid.NewString(),
		UserID:    viewerID,
		FriendID:  targetID,
		Status:    models.FriendshipPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.relations.Create(ctx, friendship); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.Friendship{}, ErrDuplicateRelationship
		}
		return models.Friendship{}, fmt.Errorf("create friend request: %w", err)
	}

	return friendship, nil
}

// AcceptRequest transitions a pending request to accepted. The local views
// update optimistically; the authoritative feed event that follows clears
// the overlay and re-applies the same state, which is harmless.
func (s *Service) AcceptRequest(ctx context.Context, requestID string) error {
	return s.respond(ctx, requestID, models.FriendshipAccepted)
}

// DeclineRequest transitions a pending request to declined.
func (s *Service) DeclineRequest(ctx context.Context, requestID string) error {
	return s.respond(ctx, requestID, models.FriendshipDeclined)
}

func (s *Service) respond(ctx context.Context, requestID, status string) error {
	if s.viewer.UserID() == "" {
		return identity.ErrNotAuthenticated
	}
	if requestID == "" {
		return errors.New("request id must be provided")
	}

	row, err := s.relations.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load friend request: %w", err)
	}

	mutated := row
	mutated.Status = status
	mutated.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	accepted, pending := s.accepted, s.pending
	s.mu.Unlock()

	if pending != nil {
		pending.RemoveOptimistic(requestID)
	}
	if accepted != nil && status == models.FriendshipAccepted {
		accepted.MutateOptimistic(mutated)
	}

	if err := s.relations.UpdateStatus(ctx, requestID, status); err != nil {
		// Roll the optimistic change back to the authoritative row.
		if pending != nil {
			pending.MutateOptimistic(row)
		}
		if accepted != nil {
			accepted.RemoveOptimistic(requestID)
		}
		return fmt.Errorf("update friend request: %w", err)
	}

	return nil
}

// CheckUsernameAvailable reports whether the candidate username is free.
func (s *Service) CheckUsernameAvailable(ctx context.Context, candidate string) (bool, error) {
	if candidate == "" {
		return false, nil
	}
	taken, err := s.names.UsernameTaken(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("username availability: %w", err)
	}
	return !taken, nil
}

// CheckDisplayNameAvailable reports whether the candidate display name is free.
func (s *Service) CheckDisplayNameAvailable(ctx context.Context, candidate string) (bool, error) {
	if candidate == "" {
		return false, nil
	}
	taken, err := s.names.DisplayNameTaken(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("display name availability: %w", err)
	}
	return !taken, nil
}

// MapConstraint converts a raw uniqueness violation from a profile write
// into the user-visible ErrNameTaken.
func MapConstraint(err error) error {
	if errors.Is(err, repositories.ErrConflict) {
		return ErrNameTaken
	}
	return err
}
