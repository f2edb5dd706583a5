package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/partywise/backend/internal/models"
)

// Wire structs mirror the column names carried by change-feed payloads
// (row_to_json over the table row), which differ from the Go field names.

type friendshipRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FriendID  string    `json:"friend_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecodeFriendshipRow converts a feed row payload into a Friendship.
func DecodeFriendshipRow(raw json.RawMessage) (models.Friendship, error) {
	var row friendshipRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return models.Friendship{}, fmt.Errorf("decode friendship row: %w", err)
	}
	return models.Friendship{
		ID:        row.ID,
		UserID:    row.UserID,
		FriendID:  row.FriendID,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

type inviteRow struct {
	ID         string    `json:"id"`
	PartyID    string    `json:"party_id"`
	InviterID  string    `json:"inviter_id"`
	InviteeID  string    `json:"invitee_id"`
	TargetRole string    `json:"target_role"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// DecodeInviteRow converts a feed row payload into a PartyInvite.
func DecodeInviteRow(raw json.RawMessage) (models.PartyInvite, error) {
	var row inviteRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return models.PartyInvite{}, fmt.Errorf("decode invite row: %w", err)
	}
	return models.PartyInvite{
		ID:         row.ID,
		PartyID:    row.PartyID,
		InviterID:  row.InviterID,
		InviteeID:  row.InviteeID,
		TargetRole: row.TargetRole,
		Status:     row.Status,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// EncodeFriendshipRow renders a friendship the way the change feed would.
// Shared by the in-memory feed used in tests and local development.
func EncodeFriendshipRow(f models.Friendship) json.RawMessage {
	raw, _ := json.Marshal(friendshipRow{
		ID:        f.ID,
		UserID:    f.UserID,
		FriendID:  f.FriendID,
		Status:    f.Status,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	})
	return raw
}

// EncodeInviteRow renders an invite the way the change feed would.
func EncodeInviteRow(i models.PartyInvite) json.RawMessage {
	raw, _ := json.Marshal(inviteRow{
		ID:         i.ID,
		PartyID:    i.PartyID,
		InviterID:  i.InviterID,
		InviteeID:  i.InviteeID,
		TargetRole: i.TargetRole,
		Status:     i.Status,
		CreatedAt:  i.CreatedAt,
	})
	return raw
}

// FriendshipTable and related constants name the change-feed tables.
const (
	FriendshipTable = "friendships"
	InviteTable     = "party_invites"
	ProfileTable    = "profiles"
)
