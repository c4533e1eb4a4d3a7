package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhil/teamhub/internal/auth"
	"github.com/nikhil/teamhub/internal/handlers"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/middleware"
)

// Deps carries the handlers and edge services the routes are wired to.
type Deps struct {
	Teams        *handlers.TeamHandler
	Invitations  *handlers.InvitationHandler
	Chat         *handlers.ChatHandler
	Users        *handlers.UserHandler
	Verifier     auth.Verifier
	TokenLimiter *middleware.RateLimiter
	DB           handlers.Pinger
	Log          *logger.Logger
}

// List of all authenticated route registration functions. Each receives the
// /api subrouter.
var routeModules = []func(*mux.Router, Deps){
	TeamRoutes,
	InvitationRoutes,
	ChatRoutes,
	UserProfileRoutes,
}

// RegisterAllRoutes builds the router.
func RegisterAllRoutes(deps Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Metrics, middleware.AccessLog(deps.Log))

	router.Handle("/healthz", handlers.Health(deps.DB)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(deps.Verifier, deps.Log), middleware.ResponseWrapperMiddleware)
	for _, register := range routeModules {
		register(api, deps)
	}

	return router
}
