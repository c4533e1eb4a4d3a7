package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/service/users"
)

// UserHandler serves the caller's profile.
type UserHandler struct {
	Users *users.Directory
	Log   *logger.Logger
}

// GetProfile returns the authenticated user's details.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	profile, err := h.Users.FindByID(r.Context(), user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "get_profile")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "User details",
		"user_details": profile,
		"name":         profile.FirstName + " " + profile.LastName,
	})
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports liveness and database reachability.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
