// Package cascade removes a team together with everything that references it.
package cascade

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/metrics"
	"github.com/nikhil/teamhub/internal/service/authz"
	"github.com/nikhil/teamhub/internal/service/membership"
)

// step is one statement of the deletion, parameterised by the team id.
type step struct {
	name  string
	query string
}

// steps run in order. Dependent rows go first, tasks and projects are
// detached rather than deleted, and the team row is removed last.
var steps = []step{
	{"team_members", `DELETE FROM team_members WHERE team_id = ?`},
	{"chat_message_reads", `DELETE FROM chat_message_reads WHERE message_id IN (SELECT id FROM chat_messages WHERE team_id = ?)`},
	{"chat_messages", `DELETE FROM chat_messages WHERE team_id = ?`},
	{"team_files", `DELETE FROM team_files WHERE team_id = ?`},
	{"notifications", `DELETE FROM notifications WHERE team_id = ?`},
	{"team_activity_log", `DELETE FROM team_activity_log WHERE team_id = ?`},
	{"task_comments", `DELETE FROM task_comments WHERE team_id = ?`},
	{"team_invitations", `DELETE FROM team_invitations WHERE team_id = ?`},
	{"tasks", `UPDATE tasks SET team_id = NULL WHERE team_id = ?`},
	{"projects", `UPDATE projects SET team_id = NULL WHERE team_id = ?`},
	{"teams", `DELETE FROM teams WHERE team_id = ?`},
}

// StepResult is the number of rows a single step touched.
type StepResult struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Report describes a completed deletion.
type Report struct {
	TeamID int64        `json:"team_id"`
	Steps  []StepResult `json:"steps"`
}

// Rows returns the rows affected in table, or zero.
func (r Report) Rows(table string) int64 {
	for _, s := range r.Steps {
		if s.Table == table {
			return s.Rows
		}
	}
	return 0
}

// Coordinator deletes teams.
type Coordinator struct {
	db      *database.DB
	members *membership.Store
	Log     *logger.Logger
}

// NewCoordinator initializes a new cascade coordinator
func NewCoordinator(db *database.DB, members *membership.Store, log *logger.Logger) *Coordinator {
	return &Coordinator{db: db, members: members, Log: log}
}

// DeleteTeam removes teamID and all dependent data in one transaction. The
// requester must hold the delete permission, checked inside the same
// transaction. Any failure leaves the database untouched.
func (c *Coordinator) DeleteTeam(ctx context.Context, teamID, requesterID int64) (Report, error) {
	log := c.Log.WithContext(ctx)
	report := Report{TeamID: teamID}

	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		gate := authz.NewGate(c.members.WithTx(tx), c.Log)
		if _, err := gate.Require(ctx, teamID, requesterID, authz.ActionDelete); err != nil {
			return err
		}

		for _, s := range steps {
			result, err := tx.ExecContext(ctx, s.query, teamID)
			if err != nil {
				return apperr.Internal(fmt.Errorf("%s: %w", s.name, err), "Failed to delete team")
			}
			n, err := result.RowsAffected()
			if err != nil {
				return apperr.Internal(fmt.Errorf("%s: %w", s.name, err), "Failed to delete team")
			}
			if s.name == "teams" && n == 0 {
				return apperr.NotFound("team not found")
			}
			report.Steps = append(report.Steps, StepResult{Table: s.name, Rows: n})
		}
		return nil
	})
	if err != nil {
		outcome := "error"
		switch apperr.KindOf(err) {
		case apperr.KindAuthorization:
			outcome = "denied"
		case apperr.KindNotFound:
			outcome = "not_found"
		default:
			log.Error("Failed to delete team", "error", err, "team_id", teamID, "user_id", requesterID)
		}
		metrics.TeamsDeleted.WithLabelValues(outcome).Inc()
		return Report{}, err
	}

	metrics.TeamsDeleted.WithLabelValues("success").Inc()
	fields := []interface{}{"team_id", teamID, "user_id", requesterID}
	for _, s := range report.Steps {
		fields = append(fields, s.Table, s.Rows)
	}
	log.Audit("Team deleted", fields...)
	return report, nil
}
