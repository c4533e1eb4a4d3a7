package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/teamhub/internal/middleware"
)

// InvitationRoutes registers invitation endpoints. Token redemption is rate
// limited per caller.
func InvitationRoutes(api *mux.Router, deps Deps) {
	h := deps.Invitations
	limiter := deps.TokenLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(0, 1, deps.Log)
	}
	limit := limiter.Middleware()

	api.HandleFunc("/teams/{id:[0-9]+}/invite", h.CreateInvitation).Methods(http.MethodPost)
	api.HandleFunc("/teams/{id:[0-9]+}/invitations", h.ListTeamInvitations).Methods(http.MethodGet)

	api.HandleFunc("/invitations", h.ListMyInvitations).Methods(http.MethodGet)
	api.Handle("/invitations/{token}/accept", limit(http.HandlerFunc(h.AcceptInvitation))).Methods(http.MethodPost)
	api.Handle("/invitations/{token}/decline", limit(http.HandlerFunc(h.DeclineInvitation))).Methods(http.MethodPost)
	api.HandleFunc("/invitations/{id:[0-9]+}", h.CancelInvitation).Methods(http.MethodDelete)
}
