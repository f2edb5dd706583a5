package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/partywise/backend/internal/logging"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// streamList serves list snapshots over a server-sent event stream. Each
// emission replaces the previous one wholesale; clients render the latest
// frame and nothing else. The stream ends when the update channel closes
// or the client disconnects.
func streamList[T, V any](ctx context.Context, w http.ResponseWriter, updates <-chan []T, view func(T) V) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case list, open := <-updates:
			if !open {
				return
			}
			views := make([]V, 0, len(list))
			for _, item := range list {
				views = append(views, view(item))
			}
			payload, err := json.Marshal(views)
			if err != nil {
				logger.Error("encode stream frame", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				logger.Warn("stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
