package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/partywise/backend/internal/friends"
	"github.com/partywise/backend/internal/identity"
	"github.com/partywise/backend/internal/logging"
	"github.com/partywise/backend/internal/repositories"
)

// FriendsHandler exposes the live friend lists and the request mutations.
type FriendsHandler struct {
	Service  FriendService
	Sessions SessionManager
	Current  CurrentUser
	Limiter  RateLimiter
}

// Live handles GET /api/v1/friends. The response is a server-sent event
// stream; each frame is the viewer's full accepted-friends list.
func (h FriendsHandler) Live(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if _, ok := requireUser(w, r, h.Sessions, h.Current); !ok {
		return
	}

	updates, err := h.Service.Friends(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNotAuthenticated) {
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		logging.FromContext(ctx).Error("activate friends view", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to open friends view"})
		return
	}

	streamList(ctx, w, updates, friendView)
}

// Requests handles GET /api/v1/friends/requests, streaming the viewer's
// pending incoming requests.
func (h FriendsHandler) Requests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if _, ok := requireUser(w, r, h.Sessions, h.Current); !ok {
		return
	}

	updates, err := h.Service.IncomingRequests(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNotAuthenticated) {
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		logging.FromContext(ctx).Error("activate requests view", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to open requests view"})
		return
	}

	streamList(ctx, w, updates, friendView)
}

// Send handles POST /api/v1/friends/requests.
func (h FriendsHandler) Send(w http.ResponseWriter, r *http.Request) {
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
	if !allowRequest(h.Limiter, r, "friend-request", userID) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid friend request payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	friendship, err := h.Service.SendRequest(ctx, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrNotAuthenticated):
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		case errors.Is(err, friends.ErrSelfRequest):
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "cannot send a request to yourself"})
		case errors.Is(err, friends.ErrDuplicateRelationship):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "relationship already exists"})
		default:
			logger.Error("send friend request failed", "error", err, "targetId", req.UserID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to send request"})
		}
		return
	}

	respondJSON(ctx, w, http.StatusCreated, friendshipResponse{
		ID:        friendship.ID,
		UserID:    friendship.UserID,
		FriendID:  friendship.FriendID,
		Status:    friendship.Status,
		CreatedAt: friendship.CreatedAt,
	})
}

// Respond handles POST /api/v1/friends/respond with an accept or decline
// action for a pending request addressed to the viewer.
func (h FriendsHandler) Respond(w http.ResponseWriter, r *http.Request) {
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
	if !allowRequest(h.Limiter, r, "friend-respond", userID) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid respond payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "requestId is required"})
		return
	}

	var err error
	switch req.Action {
	case "accept":
		err = h.Service.AcceptRequest(ctx, req.RequestID)
	case "decline":
		err = h.Service.DeclineRequest(ctx, req.RequestID)
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
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "request not found"})
			return
		}
		logger.Error("respond to friend request failed", "error", err, "requestId", req.RequestID, "action", req.Action)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to update request"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": req.Action})
}

// Availability handles GET /api/v1/profile/availability pre-checks. The
// result is advisory; the write-time constraint remains authoritative.
func (h FriendsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	displayName := strings.TrimSpace(r.URL.Query().Get("displayName"))
	if (username == "") == (displayName == "") {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "provide exactly one of username or displayName"})
		return
	}

	var (
		available bool
		err       error
	)
	if username != "" {
		available, err = h.Service.CheckUsernameAvailable(ctx, username)
	} else {
		available, err = h.Service.CheckDisplayNameAvailable(ctx, displayName)
	}
	if err != nil {
		logger.Error("availability check failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to check availability"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"available": available})
}

type sendRequest struct {
	UserID string `json:"userId"`
}

type respondRequest struct {
	RequestID string `json:"requestId"`
	Action    string `json:"action"`
}

type friendshipResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	FriendID  string    `json:"friendId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type briefView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type friendItem struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Since     time.Time `json:"since"`
	Profile   briefView `json:"profile"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func friendView(f friends.Friend) friendItem {
	return friendItem{
		ID:     f.Friendship.ID,
		Status: f.Friendship.Status,
		Since:  f.Friendship.CreatedAt,
		Profile: briefView{
			ID:          f.Profile.ID,
			DisplayName: f.Profile.DisplayName,
			AvatarURL:   f.Profile.AvatarURL,
		},
		UpdatedAt: f.Friendship.UpdatedAt,
	}
}
