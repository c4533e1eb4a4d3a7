package cascade_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/models"
	"github.com/nikhil/teamhub/internal/service/cascade"
	"github.com/nikhil/teamhub/internal/service/membership"
	"github.com/nikhil/teamhub/internal/testutil"
)

type fixture struct {
	db      *database.DB
	store   *membership.Store
	coord   *cascade.Coordinator
	ownerID int64
	adminID int64
	teamID  int64
	otherID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := testutil.OpenDB(t)
	log := testutil.Logger()
	store := membership.NewStore(db, log)
	f := &fixture{
		db:      db,
		store:   store,
		coord:   cascade.NewCoordinator(db, store, log),
		ownerID: testutil.SeedUser(t, db, "owner@example.com"),
		adminID: testutil.SeedUser(t, db, "admin@example.com"),
	}

	team, err := store.CreateTeam(ctx, "Doomed", "", "", f.ownerID)
	require.NoError(t, err)
	f.teamID = team.ID
	require.NoError(t, store.AddMember(ctx, f.teamID, f.adminID, models.RoleAdmin, &f.ownerID))

	other, err := store.CreateTeam(ctx, "Survivor", "", "", f.ownerID)
	require.NoError(t, err)
	f.otherID = other.ID

	for _, id := range []int64{f.teamID, f.otherID} {
		seedTeamData(t, db, id, f.ownerID)
	}
	return f
}

func seedTeamData(t *testing.T, db *database.DB, teamID, userID int64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Unix()

	exec := func(query string, args ...any) int64 {
		res, err := db.ExecContext(ctx, query, args...)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}

	msgID := exec(`INSERT INTO chat_messages (team_id, user_id, body, created_at, updated_at) VALUES (?, ?, 'hi', ?, ?)`, teamID, userID, now, now)
	exec(`INSERT INTO chat_message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`, msgID, userID, now)
	exec(`INSERT INTO team_files (team_id, user_id, file_name, file_path, created_at) VALUES (?, ?, 'a.txt', '/a.txt', ?)`, teamID, userID, now)
	exec(`INSERT INTO notifications (user_id, team_id, type, message, created_at) VALUES (?, ?, 'team', 'x', ?)`, userID, teamID, now)
	exec(`INSERT INTO team_activity_log (team_id, user_id, action, created_at) VALUES (?, ?, 'created', ?)`, teamID, userID, now)
	exec(`INSERT INTO team_invitations (team_id, email, role, token, invited_by, expires_at, created_at) VALUES (?, ?, 'member', ?, ?, ?, ?)`,
		teamID, "guest@example.com", fmt.Sprintf("tok-%d", teamID), userID, now+3600, now)
	exec(`INSERT INTO projects (name, user_id, team_id, created_at) VALUES ('p', ?, ?, ?)`, userID, teamID, now)
	taskID := exec(`INSERT INTO tasks (title, user_id, team_id, created_at) VALUES ('t', ?, ?, ?)`, userID, teamID, now)
	exec(`INSERT INTO task_comments (task_id, user_id, team_id, body, created_at) VALUES (?, ?, ?, 'c', ?)`, taskID, userID, teamID, now)
}

func countFor(t *testing.T, db *database.DB, table string, teamID int64) int {
	return testutil.Count(t, db, `SELECT COUNT(*) FROM `+table+` WHERE team_id = ?`, teamID)
}

var teamScoped = []string{
	"team_members", "chat_messages", "team_files", "notifications",
	"team_activity_log", "task_comments", "team_invitations", "tasks", "projects", "teams",
}

func TestDeleteTeamRemovesEverything(t *testing.T) {
	f := newFixture(t)

	report, err := f.coord.DeleteTeam(context.Background(), f.teamID, f.ownerID)
	require.NoError(t, err)
	assert.Equal(t, f.teamID, report.TeamID)
	assert.Equal(t, int64(2), report.Rows("team_members"))
	assert.Equal(t, int64(1), report.Rows("chat_message_reads"))
	assert.Equal(t, int64(1), report.Rows("tasks"))
	assert.Equal(t, int64(1), report.Rows("teams"))

	for _, table := range teamScoped {
		assert.Zero(t, countFor(t, f.db, table, f.teamID), table)
		assert.NotZero(t, countFor(t, f.db, table, f.otherID), table)
	}
	assert.Equal(t, 1, testutil.Count(t, f.db, `SELECT COUNT(*) FROM chat_message_reads`))

	// Tasks and projects survive, detached from the team.
	assert.Equal(t, 1, testutil.Count(t, f.db, `SELECT COUNT(*) FROM tasks WHERE team_id IS NULL`))
	assert.Equal(t, 1, testutil.Count(t, f.db, `SELECT COUNT(*) FROM projects WHERE team_id IS NULL`))
}

func TestDeleteTeamRequiresOwner(t *testing.T) {
	f := newFixture(t)
	outsiderID := testutil.SeedUser(t, f.db, "outsider@example.com")

	for _, userID := range []int64{f.adminID, outsiderID} {
		_, err := f.coord.DeleteTeam(context.Background(), f.teamID, userID)
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	}
	for _, table := range teamScoped {
		assert.NotZero(t, countFor(t, f.db, table, f.teamID), table)
	}
}

func TestDeleteTeamRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.ExecContext(context.Background(), `DROP TABLE team_activity_log`)
	require.NoError(t, err)

	_, err = f.coord.DeleteTeam(context.Background(), f.teamID, f.ownerID)
	assert.True(t, apperr.Is(err, apperr.KindInternal))

	for _, table := range []string{"team_members", "chat_messages", "team_files", "notifications", "teams"} {
		assert.NotZero(t, countFor(t, f.db, table, f.teamID), table)
	}
	assert.Equal(t, 2, testutil.Count(t, f.db, `SELECT COUNT(*) FROM chat_message_reads`))

	role, ok, err := f.store.IsMember(context.Background(), f.teamID, f.ownerID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.RoleOwner, role)
}

func TestDeleteMissingTeam(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.DeleteTeam(context.Background(), 424242, f.ownerID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}
