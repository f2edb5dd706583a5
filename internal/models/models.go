package models

import "time"

// Account represents the authentication-side identity for a user. Profiles
// reference accounts by id; the account id is immutable.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Profile holds the user-facing identity record written by the provisioner.
// The provisionable fields are pointers so "unset" is distinguishable from a
// user-chosen value: the provisioner only ever fills nil fields.
type Profile struct {
	ID                   string
	Username             *string
	DisplayName          *string
	AvatarURL            *string
	Theme                *string
	NotificationsEnabled *bool
	LocationEnabled      *bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Brief returns the read-only projection served to other users.
func (p Profile) Brief() ProfileBrief {
	brief := ProfileBrief{ID: p.ID}
	if p.DisplayName != nil {
		brief.DisplayName = *p.DisplayName
	}
	if p.AvatarURL != nil {
		brief.AvatarURL = *p.AvatarURL
	}
	return brief
}

// ProfileBrief is the denormalized display projection of a profile.
type ProfileBrief struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipDeclined = "declined"
)

// Friendship is a symmetric relation between two users. UserID is the
// initiator, FriendID the recipient; for a given viewer the "other party"
// is whichever column is not the viewer.
type Friendship struct {
	ID        string
	UserID    string
	FriendID  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordID implements the sync record contract.
func (f Friendship) RecordID() string { return f.ID }

// OtherParty returns the participant that is not the viewer.
func (f Friendship) OtherParty(viewerID string) string {
	if f.UserID == viewerID {
		return f.FriendID
	}
	return f.UserID
}

// Involves reports whether the viewer is either party of the relation.
func (f Friendship) Involves(viewerID string) bool {
	return f.UserID == viewerID || f.FriendID == viewerID
}

const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
	InviteCanceled = "canceled"

	InviteRoleMember = "member"
	InviteRoleAdmin  = "admin"
)

// PartyInvite asks a user to join a party with a target role. PartyName and
// Inviter are hydrated for display and never persisted.
type PartyInvite struct {
	ID         string
	PartyID    string
	InviterID  string
	InviteeID  string
	TargetRole string
	Status     string
	CreatedAt  time.Time

	PartyName string
	Inviter   *ProfileBrief
}

// RecordID implements the sync record contract.
func (i PartyInvite) RecordID() string { return i.ID }

// Hydrated reports whether the display fields have been attached.
func (i PartyInvite) Hydrated() bool { return i.PartyName != "" && i.Inviter != nil }

// Party is an event being planned. Only the fields the invite flow needs.
type Party struct {
	ID        string
	Name      string
	HostID    string
	StartsAt  time.Time
	Location  string
	CreatedAt time.Time
}

const (
	MemberRoleHost   = "host"
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

// PartyMember links a user to a party. Rows are created by the invite
// acceptance procedure server-side, never inserted directly by this core.
type PartyMember struct {
	ID       string
	PartyID  string
	UserID   string
	Role     string
	JoinedAt time.Time
}
