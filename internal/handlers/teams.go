package handlers

import (
	"net/http"
	"strings"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/models"
	"github.com/nikhil/teamhub/internal/service/authz"
	"github.com/nikhil/teamhub/internal/service/cascade"
	"github.com/nikhil/teamhub/internal/service/membership"
	"github.com/nikhil/teamhub/internal/service/users"
	"github.com/nikhil/teamhub/internal/validation"
)

// CreateTeamRequest represents the request body for team creation
type CreateTeamRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
	Color       string `json:"color"`
}

// UpdateTeamRequest represents the request body for team updates
type UpdateTeamRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
	Color       string `json:"color"`
}

// AddMemberRequest identifies the user to add by id or email.
type AddMemberRequest struct {
	UserID int64       `json:"user_id" validate:"gte=0"`
	Email  string      `json:"email" validate:"omitempty,email"`
	Role   models.Role `json:"role" validate:"omitempty,team_role"`
}

// UpdateRoleRequest carries a member's new role.
type UpdateRoleRequest struct {
	Role models.Role `json:"role" validate:"required,team_role"`
}

// TeamHandler serves team and membership endpoints.
type TeamHandler struct {
	Members *membership.Store
	Gate    *authz.Gate
	Cascade *cascade.Coordinator
	Users   *users.Directory
	Log     *logger.Logger
}

// CreateTeam handles the creation of a new team
func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	var req CreateTeamRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		respondWithAppError(w, r, h.Log, err, "create_team")
		return
	}

	team, err := h.Members.CreateTeam(r.Context(), req.Name, req.Description, req.Color, user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "create_team")
		return
	}
	respondWithJSON(w, http.StatusCreated, team)
}

// GetUserTeams retrieves all teams associated with the current user
func (h *TeamHandler) GetUserTeams(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "list_teams")
		return
	}
	perPage, err := queryInt(r, "per_page", 20)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "list_teams")
		return
	}

	resp, err := h.Members.ListUserTeams(r.Context(), user.UserID, page, perPage)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "list_teams")
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetTeam returns a team with its members. Non-members get 403 for an
// existing team and 404 otherwise.
func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := h.Gate.Require(ctx, teamID, user.UserID, authz.ActionRead); err != nil {
		if apperr.Is(err, apperr.KindAuthorization) {
			if exists, existsErr := h.Members.TeamExists(ctx, teamID); existsErr == nil && !exists {
				err = apperr.NotFound("team not found")
			}
		}
		respondWithAppError(w, r, h.Log, err, "get_team", "team_id", teamID)
		return
	}

	team, err := h.Members.GetTeam(ctx, teamID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "get_team", "team_id", teamID)
		return
	}
	members, err := h.Members.GetMembers(ctx, teamID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "get_team", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, models.TeamDetail{Team: team, Members: members})
}

// UpdateTeam handles team updates
func (h *TeamHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateTeamRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		respondWithAppError(w, r, h.Log, err, "update_team", "team_id", teamID)
		return
	}
	if _, err := h.Gate.Require(r.Context(), teamID, user.UserID, authz.ActionWrite); err != nil {
		respondWithAppError(w, r, h.Log, err, "update_team", "team_id", teamID)
		return
	}

	team, err := h.Members.UpdateTeam(r.Context(), teamID, req.Name, req.Description, req.Color)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "update_team", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, team)
}

// DeleteTeam removes the team and everything that depends on it.
func (h *TeamHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	report, err := h.Cascade.DeleteTeam(r.Context(), teamID, user.UserID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "delete_team", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Team deleted successfully",
		"report":  report,
	})
}

// GetMembers lists the team's members.
func (h *TeamHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.Gate.Require(r.Context(), teamID, user.UserID, authz.ActionRead); err != nil {
		respondWithAppError(w, r, h.Log, err, "list_members", "team_id", teamID)
		return
	}

	members, err := h.Members.GetMembers(r.Context(), teamID)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "list_members", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// AddMember adds an existing user to the team directly. Only owners may
// grant the owner role.
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AddMemberRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		respondWithAppError(w, r, h.Log, err, "add_member", "team_id", teamID)
		return
	}
	if req.UserID == 0 && req.Email == "" {
		respondWithAppError(w, r, h.Log, apperr.Validation("user_id or email is required"), "add_member", "team_id", teamID)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}

	ctx := r.Context()
	callerRole, err := h.Gate.Require(ctx, teamID, user.UserID, authz.ActionManageMembers)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "add_member", "team_id", teamID)
		return
	}
	if req.Role == models.RoleOwner && callerRole != models.RoleOwner {
		respondWithAppError(w, r, h.Log, apperr.Forbidden("Only owners can grant the owner role"), "add_member", "team_id", teamID)
		return
	}

	targetID := req.UserID
	if targetID == 0 {
		target, err := h.Users.FindByEmail(ctx, req.Email)
		if err != nil {
			respondWithAppError(w, r, h.Log, err, "add_member", "team_id", teamID)
			return
		}
		targetID = target.UserID
	}

	if err := h.Members.AddMember(ctx, teamID, targetID, req.Role, &user.UserID); err != nil {
		respondWithAppError(w, r, h.Log, err, "add_member", "team_id", teamID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Member added successfully",
		"user_id": targetID,
		"role":    req.Role,
	})
}

// RemoveMember removes a member. Any member may remove themselves; removing
// someone else needs manage_members, and only owners may remove an owner.
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	ctx := r.Context()

	action := authz.ActionManageMembers
	if memberID == user.UserID {
		action = authz.ActionRead
	}
	callerRole, err := h.Gate.Require(ctx, teamID, user.UserID, action)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "remove_member", "team_id", teamID, "member_id", memberID)
		return
	}
	if err := h.Members.RemoveMemberAs(ctx, teamID, memberID, callerRole); err != nil {
		respondWithAppError(w, r, h.Log, err, "remove_member", "team_id", teamID, "member_id", memberID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Member removed successfully"})
}

// UpdateMemberRole changes a member's role. Owner grants and changes to an
// owner's role are reserved for owners.
func (h *TeamHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.Log)
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !decodeBody(w, r, h.Log, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		respondWithAppError(w, r, h.Log, err, "update_role", "team_id", teamID, "member_id", memberID)
		return
	}
	ctx := r.Context()

	callerRole, err := h.Gate.Require(ctx, teamID, user.UserID, authz.ActionManageMembers)
	if err != nil {
		respondWithAppError(w, r, h.Log, err, "update_role", "team_id", teamID, "member_id", memberID)
		return
	}
	if err := h.Members.UpdateMemberRoleAs(ctx, teamID, memberID, req.Role, callerRole); err != nil {
		respondWithAppError(w, r, h.Log, err, "update_role", "team_id", teamID, "member_id", memberID)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Member role updated successfully",
		"user_id": memberID,
		"role":    req.Role,
	})
}
