package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/partywise/backend/internal/identity"
	"github.com/partywise/backend/internal/logging"
	"github.com/partywise/backend/internal/models"
	"github.com/partywise/backend/internal/repositories"
)

// InvitesHandler exposes the live pending-invite list and the responses.
type InvitesHandler struct {
	Service  InviteService
	Sessions SessionManager
	Current  CurrentUser
	Limiter  RateLimiter
}

// Live handles GET /api/v1/invites. The response is a server-sent event
// stream; each frame is the viewer's full pending-invite list with party
// and inviter details attached where available.
func (h InvitesHandler) Live(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if _, ok := requireUser(w, r, h.Sessions, h.Current); !ok {
		return
	}

	updates, err := h.Service.Incoming(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNotAuthenticated) {
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		logging.FromContext(ctx).Error("activate invites view", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to open invites view"})
		return
	}

	streamList(ctx, w, updates, inviteView)
}

// Respond handles POST /api/v1/invites/respond with an accept or decline
// action for a pending invite addressed to the viewer.
func (h InvitesHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := requireUser(w, r, h.Sessions, h.Current)
	if !ok {
		return
	}
	if !allowRequest(h.Limiter, r, "invite-respond", userID) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req inviteRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid invite respond payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.InviteID = strings.TrimSpace(req.InviteID)
	if req.InviteID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "inviteId is required"})
		return
	}

	var err error
	switch req.Action {
	case "accept":
		err = h.Service.Accept(ctx, req.InviteID)
	case "decline":
		err = h.Service.Decline(ctx, req.InviteID)
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "action must be accept or decline"})
		return
	}

	if err != nil {
		if errors.Is(err, identity.ErrNotAuthenticated) {
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "invite not found"})
			return
		}
		logger.Error("respond to invite failed", "error", err, "inviteId", req.InviteID, "action", req.Action)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to update invite"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": req.Action})
}

type inviteRespondRequest struct {
	InviteID string `json:"inviteId"`
	Action   string `json:"action"`
}

type inviteItem struct {
	ID         string     `json:"id"`
	PartyID    string     `json:"partyId"`
	PartyName  string     `json:"partyName,omitempty"`
	Inviter    *briefView `json:"inviter,omitempty"`
	TargetRole string     `json:"targetRole"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func inviteView(i models.PartyInvite) inviteItem {
	item := inviteItem{
		ID:         i.ID,
		PartyID:    i.PartyID,
		PartyName:  i.PartyName,
		TargetRole: i.TargetRole,
		CreatedAt:  i.CreatedAt,
	}
	if i.Inviter != nil {
		item.Inviter = &briefView{
			ID:          i.Inviter.ID,
			DisplayName: i.Inviter.DisplayName,
			AvatarURL:   i.Inviter.AvatarURL,
		}
	}
	return item
}
