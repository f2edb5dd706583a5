package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{
		Accounts: deps.Accounts,
		Sessions: deps.Sessions,
		Current:  deps.Current,
		Profiles: deps.Profiles,
		Limiter:  deps.Limiter,
	}
	friends := FriendsHandler{
		Service:  deps.Friends,
		Sessions: deps.Sessions,
		Current:  deps.Current,
		Limiter:  deps.Limiter,
	}
	invites := InvitesHandler{
		Service:  deps.Invites,
		Sessions: deps.Sessions,
		Current:  deps.Current,
		Limiter:  deps.Limiter,
	}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/register", auth.Register)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("/api/v1/friends", friends.Live)
	mux.HandleFunc("/api/v1/friends/requests", friends.Send)
	mux.HandleFunc("/api/v1/friends/requests/live", friends.Requests)
	mux.HandleFunc("/api/v1/friends/respond", friends.Respond)
	mux.HandleFunc("/api/v1/profile/availability", friends.Availability)
	mux.HandleFunc("/api/v1/invites", invites.Live)
	mux.HandleFunc("/api/v1/invites/respond", invites.Respond)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts AccountStore
	Sessions SessionManager
	Current  CurrentUser
	Profiles ProfileProvisioner
	Friends  FriendService
	Invites  InviteService
	Limiter  RateLimiter
}
