package invites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/partywise/backend/internal/feed"
	"github.com/partywise/backend/internal/identity"
	"github.com/partywise/backend/internal/models"
	"github.com/partywise/backend/internal/repositories"
	"github.com/partywise/backend/internal/syncer"
)

// InviteStore captures the persistence operations the service needs.
// Accept and Decline run atomic server-side procedures; the service only
// exposes the call.
type InviteStore interface {
	Get(ctx context.Context, id string) (models.PartyInvite, error)
	ListPendingFor(ctx context.Context, inviteeID string) ([]models.PartyInvite, error)
	Accept(ctx context.Context, inviteID, userID string) error
	Decline(ctx context.Context, inviteID, userID string) error
}

// PartyDirectory resolves party records for hydration.
type PartyDirectory interface {
	Get(ctx context.Context, id string) (models.Party, error)
}

// BriefResolver resolves inviter display projections, memoized upstream.
type BriefResolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]models.ProfileBrief, error)
}

// Viewer resolves the signed-in user for scope derivation.
type Viewer interface {
	UserID() string
}

// hydrationWorkers bounds concurrent hydration fetches per emission.
const hydrationWorkers = 4

// Service keeps the viewer's pending party invites reconciled against the
// change feed, hydrating each invite with the party name and inviter
// profile before emitting.
type Service struct {
	invites InviteStore
	parties PartyDirectory
	briefs  BriefResolver
	source  feed.Source
	viewer  Viewer
	logger  *slog.Logger

	namesMu    sync.RWMutex
	partyNames map[string]string

	mu       sync.Mutex
	incoming *syncer.Synchronizer[models.PartyInvite]
}

// NewService wires the party-invite service.
func NewService(invites InviteStore, parties PartyDirectory, briefs BriefResolver, source feed.Source, viewer Viewer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		invites:    invites,
		parties:    parties,
		briefs:     briefs,
		source:     source,
		viewer:     viewer,
		logger:     logger,
		partyNames: make(map[string]string),
	}
}

func inviteNewestFirst(a, b models.PartyInvite) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// Incoming activates a live view of pending invites addressed to the
// viewer. An invite leaves the list the moment its status moves away from
// pending or its row is deleted, regardless of which client caused it.
func (s *Service) Incoming(ctx context.Context) (<-chan []models.PartyInvite, error) {
	viewerID := s.viewer.UserID()
	if viewerID == "" {
		return nil, identity.ErrNotAuthenticated
	}

	view, err := syncer.New(syncer.Options[models.PartyInvite]{
		Snapshot: func(ctx context.Context) ([]models.PartyInvite, error) {
			return s.invites.ListPendingFor(ctx, viewerID)
		},
		Subscribes: []syncer.SubscribeFunc[models.PartyInvite]{
			feed.Typed(s.source, repositories.InviteTable, feed.Filter{Column: "invitee_id", Value: viewerID}, repositories.DecodeInviteRow, s.logger),
		},
		Keep: func(i models.PartyInvite) bool {
			return i.Status == models.InvitePending && i.InviteeID == viewerID
		},
		Less:   inviteNewestFirst,
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}

	updates, err := view.Activate(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate incoming invites view: %w", err)
	}

	s.mu.Lock()
	if s.incoming != nil {
		s.incoming.Deactivate()
	}
	s.incoming = view
	s.mu.Unlock()

	out := make(chan []models.PartyInvite, 1)
	go s.forward(ctx, updates, out)
	return out, nil
}

// Stop tears down the incoming-invites view.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incoming != nil {
		s.incoming.Deactivate()
		s.incoming = nil
	}
}

func (s *Service) forward(ctx context.Context, updates <-chan []models.PartyInvite, out chan []models.PartyInvite) {
	defer close(out)
	for list := range updates {
		hydrated := s.hydrate(ctx, list)
		select {
		case out <- hydrated:
		default:
			select {
			case <-out:
			default:
			}
			out <- hydrated
		}
	}
}

// hydrate attaches party name and inviter profile to every invite that
// still lacks them. Best effort per row: one failed lookup leaves that
// invite thin but never drops it or blocks the others.
func (s *Service) hydrate(ctx context.Context, list []models.PartyInvite) []models.PartyInvite {
	out := make([]models.PartyInvite, len(list))
	copy(out, list)

	var wg sync.WaitGroup
	sem := make(chan struct{}, hydrationWorkers)

	for idx := range out {
		if out[idx].Hydrated() {
			continue
		}
		wg.Add(1)
		go func(invite *models.PartyInvite) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s.hydrateOne(ctx, invite)
		}(&out[idx])
	}
	wg.Wait()

	return out
}

func (s *Service) hydrateOne(ctx context.Context, invite *models.PartyInvite) {
	if invite.PartyName == "" {
		name, err := s.partyName(ctx, invite.PartyID)
		if err != nil {
			s.logger.Warn("hydrate party name", "inviteId", invite.ID, "partyId", invite.PartyID, "error", err)
		} else {
			invite.PartyName = name
		}
	}

	if invite.Inviter == nil {
		briefs, err := s.briefs.Resolve(ctx, []string{invite.InviterID})
		if err != nil {
			s.logger.Warn("hydrate inviter profile", "inviteId", invite.ID, "inviterId", invite.InviterID, "error", err)
		}
		if brief, ok := briefs[invite.InviterID]; ok {
			invite.Inviter = &brief
		}
	}
}

func (s *Service) partyName(ctx context.Context, partyID string) (string, error) {
	s.namesMu.RLock()
	name, ok := s.partyNames[partyID]
	s.namesMu.RUnlock()
	if ok {
		return name, nil
	}

	party, err := s.parties.Get(ctx, partyID)
	if err != nil {
		return "", err
	}

	s.namesMu.Lock()
	s.partyNames[partyID] = party.Name
	s.namesMu.Unlock()

	return party.Name, nil
}

// Accept runs the atomic acceptance procedure for the invite. The pending
// list drops the invite optimistically; the status-change event that
// follows removes it again on every subscribed client.
func (s *Service) Accept(ctx context.Context, inviteID string) error {
	return s.conclude(ctx, inviteID, s.invites.Accept)
}

// Decline runs the atomic decline procedure for the invite.
func (s *Service) Decline(ctx context.Context, inviteID string) error {
	return s.conclude(ctx, inviteID, s.invites.Decline)
}

func (s *Service) conclude(ctx context.Context, inviteID string, call func(ctx context.Context, inviteID, userID string) error) error {
	viewerID := s.viewer.UserID()
	if viewerID == "" {
		return identity.ErrNotAuthenticated
	}
	if inviteID == "" {
		return errors.New("invite id must be provided")
	}

	row, err := s.invites.Get(ctx, inviteID)
	if err != nil {
		return fmt.Errorf("load invite: %w", err)
	}

	s.mu.Lock()
	incoming := s.incoming
	s.mu.Unlock()

	if incoming != nil {
		incoming.RemoveOptimistic(inviteID)
	}

	if err := call(ctx, inviteID, viewerID); err != nil {
		// Put the authoritative row back; the procedure did not run.
		if incoming != nil {
			incoming.MutateOptimistic(row)
		}
		return fmt.Errorf("invite procedure: %w", err)
	}

	return nil
}
