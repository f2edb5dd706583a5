package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/partywise/backend/internal/db"
	"github.com/partywise/backend/internal/models"
)

// PostgresFriendshipRepository provides PostgreSQL-backed persistence for friendships.
type PostgresFriendshipRepository struct {
	pool db.Pool
}

// NewPostgresFriendshipRepository constructs a friendship repository backed by PostgreSQL.
func NewPostgresFriendshipRepository(pool db.Pool) *PostgresFriendshipRepository {
	return &PostgresFriendshipRepository{pool: pool}
}

// Create persists a new friendship row. A partial unique index over the
// unordered pair rejects a second active relationship, which surfaces here
// as ErrConflict regardless of which side initiated first.
func (r *PostgresFriendshipRepository) Create(ctx context.Context, friendship models.Friendship) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO friendships (id, user_id, friend_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, friendship.ID, friendship.UserID, friendship.FriendID, friendship.Status,
		friendship.CreatedAt, friendship.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert friendship: %w", err)
	}

	return nil
}

// Get fetches a friendship by id.
func (r *PostgresFriendshipRepository) Get(ctx context.Context, id string) (models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, friend_id, status, created_at, updated_at
        FROM friendships
        WHERE id = $1
    `, id)

	var friendship models.Friendship
	if err := row.Scan(&friendship.ID, &friendship.UserID, &friendship.FriendID,
		&friendship.Status, &friendship.CreatedAt, &friendship.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Friendship{}, ErrNotFound
		}
		return models.Friendship{}, fmt.Errorf("select friendship: %w", err)
	}

	return friendship, nil
}

// UpdateStatus transitions a friendship and bumps updated_at.
func (r *PostgresFriendshipRepository) UpdateStatus(ctx context.Context, id, status string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE friendships
        SET status = $2, updated_at = $3
        WHERE id = $1
    `, id, status, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update friendship status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListAcceptedFor returns accepted friendships where the user is either party.
func (r *PostgresFriendshipRepository) ListAcceptedFor(ctx context.Context, userID string) ([]models.Friendship, error) {
	return r.list(ctx, `
        SELECT id, user_id, friend_id, status, created_at, updated_at
        FROM friendships
        WHERE status = 'accepted' AND (user_id = $1 OR friend_id = $1)
        ORDER BY created_at DESC
    `, userID)
}

// ListPendingFor returns pending requests addressed to the user.
func (r *PostgresFriendshipRepository) ListPendingFor(ctx context.Context, userID string) ([]models.Friendship, error) {
	return r.list(ctx, `
        SELECT id, user_id, friend_id, status, created_at, updated_at
        FROM friendships
        WHERE status = 'pending' AND friend_id = $1
        ORDER BY created_at DESC
    `, userID)
}

func (r *PostgresFriendshipRepository) list(ctx context.Context, query, userID string) ([]models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query friendships: %w", err)
	}
	defer rows.Close()

	var friendships []models.Friendship
	for rows.Next() {
		var friendship models.Friendship
		if err := rows.Scan(&friendship.ID, &friendship.UserID, &friendship.FriendID,
			&friendship.Status, &friendship.CreatedAt, &friendship.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		friendships = append(friendships, friendship)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friendships: %w", err)
	}

	return friendships, nil
}

// PostgresInviteRepository provides PostgreSQL-backed persistence for party invites.
type PostgresInviteRepository struct {
	pool db.Pool
}

// NewPostgresInviteRepository constructs an invite repository backed by PostgreSQL.
func NewPostgresInviteRepository(pool db.Pool) *PostgresInviteRepository {
	return &PostgresInviteRepository{pool: pool}
}

// Create persists a new party invite.
func (r *PostgresInviteRepository) Create(ctx context.Context, invite models.PartyInvite) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO party_invites (id, party_id, inviter_id, invitee_id, target_role, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, invite.ID, invite.PartyID, invite.InviterID, invite.InviteeID,
		invite.TargetRole, invite.Status, invite.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert party invite: %w", err)
	}

	return nil
}

// Get fetches an invite by id.
func (r *PostgresInviteRepository) Get(ctx context.Context, id string) (models.PartyInvite, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.PartyInvite{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, party_id, inviter_id, invitee_id, target_role, status, created_at
        FROM party_invites
        WHERE id = $1
    `, id)

	var invite models.PartyInvite
	if err := row.Scan(&invite.ID, &invite.PartyID, &invite.InviterID, &invite.InviteeID,
		&invite.TargetRole, &invite.Status, &invite.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PartyInvite{}, ErrNotFound
		}
		return models.PartyInvite{}, fmt.Errorf("select party invite: %w", err)
	}

	return invite, nil
}

// ListPendingFor returns pending invites addressed to the user.
func (r *PostgresInviteRepository) ListPendingFor(ctx context.Context, inviteeID string) ([]models.PartyInvite, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, party_id, inviter_id, invitee_id, target_role, status, created_at
        FROM party_invites
        WHERE invitee_id = $1 AND status = 'pending'
        ORDER BY created_at DESC
    `, inviteeID)
	if err != nil {
		return nil, fmt.Errorf("query party invites: %w", err)
	}
	defer rows.Close()

	var invites []models.PartyInvite
	for rows.Next() {
		var invite models.PartyInvite
		if err := rows.Scan(&invite.ID, &invite.PartyID, &invite.InviterID, &invite.InviteeID,
			&invite.TargetRole, &invite.Status, &invite.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan party invite: %w", err)
		}
		invites = append(invites, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate party invites: %w", err)
	}

	return invites, nil
}

// Accept runs the atomic acceptance procedure: membership row plus status
// flip in one transaction on the server.
func (r *PostgresInviteRepository) Accept(ctx context.Context, inviteID, userID string) error {
	return r.call(ctx, `SELECT accept_party_invite($1, $2)`, inviteID, userID)
}

// Decline runs the atomic decline procedure.
func (r *PostgresInviteRepository) Decline(ctx context.Context, inviteID, userID string) error {
	return r.call(ctx, `SELECT decline_party_invite($1, $2)`, inviteID, userID)
}

func (r *PostgresInviteRepository) call(ctx context.Context, query, inviteID, userID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, query, inviteID, userID).Scan(&ok); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("invite procedure: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	return nil
}

// PostgresPartyRepository provides PostgreSQL-backed persistence for parties.
type PostgresPartyRepository struct {
	pool db.Pool
}

// NewPostgresPartyRepository constructs a party repository backed by PostgreSQL.
func NewPostgresPartyRepository(pool db.Pool) *PostgresPartyRepository {
	return &PostgresPartyRepository{pool: pool}
}

// Create persists a new party.
func (r *PostgresPartyRepository) Create(ctx context.Context, party models.Party) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO parties (id, name, host_id, starts_at, location, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, party.ID, party.Name, party.HostID, party.StartsAt, party.Location, party.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert party: %w", err)
	}

	return nil
}

// Get fetches a party by id.
func (r *PostgresPartyRepository) Get(ctx context.Context, id string) (models.Party, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Party{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, name, host_id, starts_at, location, created_at
        FROM parties
        WHERE id = $1
    `, id)

	var party models.Party
	if err := row.Scan(&party.ID, &party.Name, &party.HostID, &party.StartsAt,
		&party.Location, &party.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Party{}, ErrNotFound
		}
		return models.Party{}, fmt.Errorf("select party: %w", err)
	}

	return party, nil
}

var _ FriendshipRepository = (*PostgresFriendshipRepository)(nil)
var _ InviteRepository = (*PostgresInviteRepository)(nil)
var _ PartyRepository = (*PostgresPartyRepository)(nil)
