package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/models"
	"github.com/nikhil/teamhub/internal/service/authz"
	"github.com/nikhil/teamhub/internal/service/invitation"
	"github.com/nikhil/teamhub/internal/service/users"
)

// CreateInvitationRequest represents the request body for inviting by email.
type CreateInvitationRequest struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// InvitationHandler serves invitation endpoints.
type InvitationHandler struct {
	Invitations *invitation.Manager
	Gate        *authz.Gate
	Users       *users.Directory
	Log         *logger.Logger
}

// CreateInvitation invites an email address to the team.
func (h *InvitationHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req CreateInvitationRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}

	inv, err := h.Invitations.Create(r.Context(), teamID, req.Email, req.Role, user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "create_invitation", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusCreated, inv)
}

// ListTeamInvitations lists every invitation of the team. Managers only.
func (h *InvitationHandler) ListTeamInvitations(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.Gate.Require(r.Context(), teamID, user.UserID, authz.ActionManageMembers); err != nil {
		respondWithAppError(w, r, h.Log, err, "list_invitations", "team_id", teamID)
		return
	}

	invs, err := h.Invitations.GetByTeamID(r.Context(), teamID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "list_invitations", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"invitations": invs})
}

// ListMyInvitations lists the pending invitations addressed to the caller.
func (h *InvitationHandler) ListMyInvitations(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	email := user.Email
	if email == "" {
		profile, err := h.Users.FindByID(r.Context(), user.UserID)
		if err != nil {
			respondWithAppError(w, r, h.Log, err, "my_invitations")
			return
		}
		email = profile.Email
	}

	invs, err := h.Invitations.GetByEmail(r.Context(), email)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "my_invitations")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"invitations": invs})
}

// AcceptInvitation redeems an invitation token for the caller.
func (h *InvitationHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	inv, err := h.Invitations.Accept(r.Context(), mux.Vars(r)["token"], user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "accept_invitation")
		return
	}
	inv.Token = ""
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Invitation accepted",
		"invitation": inv,
	})
}

// DeclineInvitation declines an invitation token.
func (h *InvitationHandler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r, h.Log); !ok {
		return
	}
	if err := h.Invitations.Decline(r.Context(), mux.Vars(r)["token"]); err != nil {
		respondWithAppError(w, r, h.Log, err, "decline_invitation")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Invitation declined"})
}

// CancelInvitation withdraws a pending invitation. Inviter only.
func (h *InvitationHandler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	invitationID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Invitations.Cancel(r.Context(), invitationID, user.UserID); err != nil {
		respondWithAppError(w, r, h.Log, err, "cancel_invitation", "invitation_id", invitationID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Invitation cancelled"})
}
