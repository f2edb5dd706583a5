package handlers

import (
	"net/http"
	"strings"

	"github.com/partywise/backend/internal/logging"
)

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// requireUser resolves the bearer token to a user id and verifies it is
// the user the live views are scoped to. Sessions outlive the process, so
// when no user is active yet the resolved session is adopted; a token for
// a different user than the active one is rejected. On failure it writes
// the error response and returns ok=false.
func requireUser(w http.ResponseWriter, r *http.Request, sessions SessionManager, current CurrentUser) (string, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	token := bearerToken(r)
	if token == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authorization required"})
		return "", false
	}

	userID, err := sessions.Resolve(ctx, token)
	if err != nil {
		logger.Warn("token resolution failed", "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
		return "", false
	}

	switch active := current.UserID(); {
	case active == "":
		// First request after a restart: the store still knows the
		// session but nothing is signed in locally yet.
		logger.Info("adopting persisted session", "userId", userID)
		current.Set(userID)
	case active != userID:
		logger.Warn("session does not match active user", "userId", userID)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "session does not match active user"})
		return "", false
	}

	return userID, true
}
