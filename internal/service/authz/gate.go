// Package authz is the single authority on what a team member may do.
package authz

import (
	"context"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/metrics"
	"github.com/nikhil/teamhub/internal/models"
)

// Action is a team-scoped operation class.
type Action string

const (
	ActionRead          Action = "read"
	ActionWrite         Action = "write"
	ActionDelete        Action = "delete"
	ActionManageMembers Action = "manage_members"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := policy[a]
	return ok
}

// policy maps each action to the roles allowed to perform it.
var policy = map[Action]map[models.Role]bool{
	ActionRead: {
		models.RoleOwner:  true,
		models.RoleAdmin:  true,
		models.RoleMember: true,
		models.RoleViewer: true,
	},
	ActionWrite: {
		models.RoleOwner: true,
		models.RoleAdmin: true,
	},
	ActionManageMembers: {
		models.RoleOwner: true,
		models.RoleAdmin: true,
	},
	ActionDelete: {
		models.RoleOwner: true,
	},
}

// Allows evaluates the policy table. Unknown roles and actions are denied.
func Allows(role models.Role, action Action) bool {
	return policy[action][role]
}

// MembershipLookup resolves a user's role in a team.
type MembershipLookup interface {
	IsMember(ctx context.Context, teamID, userID int64) (models.Role, bool, error)
}

// Gate answers permission questions from fresh membership lookups. It keeps
// no cache: roles may change between requests.
type Gate struct {
	members MembershipLookup
	Log     *logger.Logger
}

// NewGate returns a gate backed by members.
func NewGate(members MembershipLookup, log *logger.Logger) *Gate {
	return &Gate{members: members, Log: log}
}

// HasPermission reports whether userID may perform action on teamID.
// Non-members are always denied.
func (g *Gate) HasPermission(ctx context.Context, teamID, userID int64, action Action) (bool, error) {
	role, ok, err := g.members.IsMember(ctx, teamID, userID)
	if err != nil {
		return false, err
	}
	return ok && Allows(role, action), nil
}

// Require returns the caller's role when action is allowed and an
// authorization error otherwise.
func (g *Gate) Require(ctx context.Context, teamID, userID int64, action Action) (models.Role, error) {
	role, ok, err := g.members.IsMember(ctx, teamID, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		metrics.AuthzDecisions.WithLabelValues(string(action), "non_member").Inc()
		g.Log.WithContext(ctx).Warn("Unauthorized team access attempt", "team_id", teamID, "user_id", userID, "action", action)
		return "", apperr.Forbidden("You don't have access to this team")
	}
	if !Allows(role, action) {
		metrics.AuthzDecisions.WithLabelValues(string(action), "denied").Inc()
		g.Log.WithContext(ctx).Warn("Insufficient permissions", "team_id", teamID, "user_id", userID, "action", action, "role", role)
		return role, apperr.Forbidden("You don't have permission to perform this action")
	}
	metrics.AuthzDecisions.WithLabelValues(string(action), "allowed").Inc()
	return role, nil
}
