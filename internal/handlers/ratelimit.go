package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// RateLimiter is the minimal interface required to guard mutation endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

// allowRequest keys by user id when one is known so a chatty client cannot
// starve others behind the same address; unauthenticated traffic falls
// back to the remote address.
func allowRequest(limiter RateLimiter, r *http.Request, scope, userID string) bool {
	if limiter == nil {
		return true
	}
	key := userID
	if key == "" {
		key = clientIP(r)
	}
	if scope != "" {
		key = fmt.Sprintf("%s:%s", scope, key)
	}
	return limiter.Allow(key)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
