package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/models"
)

type fakeMembers struct {
	roles map[[2]int64]models.Role
	err   error
	calls int
}

func (f *fakeMembers) IsMember(_ context.Context, teamID, userID int64) (models.Role, bool, error) {
	f.calls++
	if f.err != nil {
		return "", false, f.err
	}
	role, ok := f.roles[[2]int64{teamID, userID}]
	return role, ok, nil
}

func TestAllowsPolicyTable(t *testing.T) {
	want := map[Action]map[models.Role]bool{
		ActionRead:          {models.RoleOwner: true, models.RoleAdmin: true, models.RoleMember: true, models.RoleViewer: true},
		ActionWrite:         {models.RoleOwner: true, models.RoleAdmin: true, models.RoleMember: false, models.RoleViewer: false},
		ActionManageMembers: {models.RoleOwner: true, models.RoleAdmin: true, models.RoleMember: false, models.RoleViewer: false},
		ActionDelete:        {models.RoleOwner: true, models.RoleAdmin: false, models.RoleMember: false, models.RoleViewer: false},
	}
	for action, roles := range want {
		for role, allowed := range roles {
			t.Run(string(action)+"/"+string(role), func(t *testing.T) {
				assert.Equal(t, allowed, Allows(role, action))
			})
		}
	}
}

func TestAllowsUnknownInputs(t *testing.T) {
	assert.False(t, Allows(models.Role("root"), ActionRead))
	assert.False(t, Allows(models.RoleOwner, Action("launch")))
	assert.False(t, Allows("", ActionRead))
	assert.True(t, ActionManageMembers.Valid())
	assert.False(t, Action("launch").Valid())
}

func TestHasPermission(t *testing.T) {
	members := &fakeMembers{roles: map[[2]int64]models.Role{
		{1, 10}: models.RoleViewer,
		{1, 11}: models.RoleAdmin,
	}}
	gate := NewGate(members, logger.NewNop())
	ctx := context.Background()

	tests := []struct {
		user   int64
		action Action
		want   bool
	}{
		{10, ActionRead, true},
		{10, ActionWrite, false},
		{10, ActionDelete, false},
		{10, ActionManageMembers, false},
		{11, ActionManageMembers, true},
		{11, ActionDelete, false},
		{99, ActionRead, false},
	}
	for _, tt := range tests {
		got, err := gate.HasPermission(ctx, 1, tt.user, tt.action)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "user %d action %s", tt.user, tt.action)
	}
	// Every call goes back to the membership store.
	assert.Equal(t, len(tests), members.calls)
}

func TestRequire(t *testing.T) {
	members := &fakeMembers{roles: map[[2]int64]models.Role{{1, 10}: models.RoleMember}}
	gate := NewGate(members, logger.NewNop())
	ctx := context.Background()

	role, err := gate.Require(ctx, 1, 10, ActionRead)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, role)

	_, err = gate.Require(ctx, 1, 10, ActionWrite)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = gate.Require(ctx, 1, 99, ActionRead)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	members.err = apperr.Internal(errors.New("db down"), "Failed to verify team membership")
	_, err = gate.Require(ctx, 1, 10, ActionRead)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}
