// Package chat stores team chat messages and tracks which of them each
// member has read.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/models"
	"github.com/nikhil/teamhub/internal/service/authz"
	"github.com/nikhil/teamhub/internal/validation"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	// MaxMarkBatch bounds the ids accepted by a single MarkAsRead call.
	MaxMarkBatch = 500
)

const messageColumns = `
	m.id, m.team_id, m.user_id, m.body, m.type, m.reply_to, m.is_edited, m.edited_at,
	m.created_at, m.updated_at, COALESCE(u.first_name, ''), COALESCE(u.last_name, '')
`

// Tracker handles chat messages and read receipts.
type Tracker struct {
	db   *database.DB
	gate *authz.Gate
	now  func() time.Time
	Log  *logger.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker initializes a new chat tracker
func NewTracker(db *database.DB, gate *authz.Gate, log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		db:   db,
		gate: gate,
		now:  func() time.Time { return time.Now().UTC() },
		Log:  log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts a message to the team chat. Any member may post, viewers
// included. A reply must point at a message of the same team.
func (t *Tracker) Send(ctx context.Context, teamID, userID int64, body string, typ models.MessageType, replyTo *int64) (models.ChatMessage, error) {
	if _, err := t.gate.Require(ctx, teamID, userID, authz.ActionRead); err != nil {
		return models.ChatMessage{}, err
	}

	body = strings.TrimSpace(body)
	if err := validation.Var("body", body, "notblank,max=5000"); err != nil {
		return models.ChatMessage{}, err
	}
	if typ == "" {
		typ = models.MessageText
	}
	if !typ.Valid() {
		return models.ChatMessage{}, apperr.Validation("type must be one of: text, system, file")
	}
	if replyTo != nil {
		var replyTeam int64
		err := t.db.QueryRowContext(ctx, `SELECT team_id FROM chat_messages WHERE id = ?`, *replyTo).Scan(&replyTeam)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && replyTeam != teamID) {
			return models.ChatMessage{}, apperr.Validation("reply_to must reference a message in this team")
		}
		if err != nil {
			return models.ChatMessage{}, apperr.Internal(err, "Failed to send message")
		}
	}

	currentTime := t.now().Unix()
	query := `
		INSERT INTO chat_messages (team_id, user_id, body, type, reply_to, is_edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`
	result, err := t.db.ExecContext(ctx, query, teamID, userID, body, string(typ), replyTo, currentTime, currentTime)
	if err != nil {
		t.Log.WithContext(ctx).Error("Failed to insert message", "error", err, "team_id", teamID, "user_id", userID)
		return models.ChatMessage{}, apperr.Internal(err, "Failed to send message")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.ChatMessage{}, apperr.Internal(err, "Failed to get message ID")
	}

	msg, err := t.message(ctx, teamID, id)
	if err != nil {
		return models.ChatMessage{}, err
	}
	msg.IsRead = true
	return msg, nil
}

// Edit replaces the body of a message. Only its author may edit it.
func (t *Tracker) Edit(ctx context.Context, teamID, messageID, userID int64, body string) (models.ChatMessage, error) {
	if _, err := t.gate.Require(ctx, teamID, userID, authz.ActionRead); err != nil {
		return models.ChatMessage{}, err
	}
	body = strings.TrimSpace(body)
	if err := validation.Var("body", body, "notblank,max=5000"); err != nil {
		return models.ChatMessage{}, err
	}

	msg, err := t.message(ctx, teamID, messageID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if msg.UserID != userID {
		return models.ChatMessage{}, apperr.Forbidden("only the author can edit this message")
	}

	currentTime := t.now().Unix()
	query := `UPDATE chat_messages SET body = ?, is_edited = 1, edited_at = ?, updated_at = ? WHERE id = ? AND team_id = ?`
	if _, err := t.db.ExecContext(ctx, query, body, currentTime, currentTime, messageID, teamID); err != nil {
		t.Log.WithContext(ctx).Error("Failed to edit message", "error", err, "team_id", teamID, "user_id", userID)
		return models.ChatMessage{}, apperr.Internal(err, "Failed to edit message")
	}

	msg.Body = body
	msg.IsEdited = true
	msg.EditedAt = &currentTime
	msg.UpdatedAt = currentTime
	msg.IsRead = true
	return msg, nil
}

// Delete removes a message and its read receipts. The author and team
// managers may delete.
func (t *Tracker) Delete(ctx context.Context, teamID, messageID, userID int64) error {
	role, err := t.gate.Require(ctx, teamID, userID, authz.ActionRead)
	if err != nil {
		return err
	}
	msg, err := t.message(ctx, teamID, messageID)
	if err != nil {
		return err
	}
	if msg.UserID != userID && !authz.Allows(role, authz.ActionManageMembers) {
		return apperr.Forbidden("only the author or a team admin can delete this message")
	}

	err = t.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_message_reads WHERE message_id = ?`, messageID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = ? AND team_id = ?`, messageID, teamID)
		return err
	})
	if err != nil {
		t.Log.WithContext(ctx).Error("Failed to delete message", "error", err, "team_id", teamID, "user_id", userID, "message_id", messageID)
		return apperr.Internal(err, "Failed to delete message")
	}
	t.Log.WithContext(ctx).Info("Message deleted", "team_id", teamID, "user_id", userID, "message_id", messageID)
	return nil
}

// MarkAsRead records read receipts for the given messages and returns how
// many new receipts were written. Ids outside the team are ignored, and
// repeating a call changes nothing.
func (t *Tracker) MarkAsRead(ctx context.Context, teamID, userID int64, messageIDs []int64) (int64, error) {
	if _, err := t.gate.Require(ctx, teamID, userID, authz.ActionRead); err != nil {
		return 0, err
	}
	ids, err := normalizeIDs(messageIDs)
	if err != nil {
		return 0, err
	}

	query := t.db.Dialect.InsertIgnore() + ` INTO chat_message_reads (message_id, user_id, read_at)
		SELECT id, ?, ? FROM chat_messages
		WHERE team_id = ? AND id IN (` + database.Placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+3)
	args = append(args, userID, t.now().Unix(), teamID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		t.Log.WithContext(ctx).Error("Failed to mark messages as read", "error", err, "team_id", teamID, "user_id", userID)
		return 0, apperr.Internal(err, "Failed to mark messages as read")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.Internal(err, "Failed to mark messages as read")
	}
	return n, nil
}

func normalizeIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("message_ids is required")
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, apperr.Validation("message_ids must be positive")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > MaxMarkBatch {
		return nil, apperr.Validation("at most %d message_ids per request", MaxMarkBatch)
	}
	return out, nil
}

// GetUnreadCount counts the team messages, written by others, that the user
// has no receipt for.
func (t *Tracker) GetUnreadCount(ctx context.Context, teamID, userID int64) (int, error) {
	if _, err := t.gate.Require(ctx, teamID, userID, authz.ActionRead); err != nil {
		return 0, err
	}
	return t.unreadCount(ctx, teamID, userID)
}

func (t *Tracker) unreadCount(ctx context.Context, teamID, userID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM chat_messages m
		WHERE m.team_id = ? AND m.user_id <> ?
		AND NOT EXISTS (
			SELECT 1 FROM chat_message_reads r WHERE r.message_id = m.id AND r.user_id = ?
		)
	`
	if err := t.db.QueryRowContext(ctx, query, teamID, userID, userID).Scan(&count); err != nil {
		return 0, apperr.Internal(err, "Failed to count unread messages")
	}
	return count, nil
}

// GetByTeamID returns a window of the team's history, oldest first. The
// window is the newest limit messages after skipping offset newer ones.
func (t *Tracker) GetByTeamID(ctx context.Context, teamID int64, limit, offset int, userID int64) (models.MessagePage, error) {
	if _, err := t.gate.Require(ctx, teamID, userID, authz.ActionRead); err != nil {
		return models.MessagePage{}, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + messageColumns + `,
		       CASE WHEN m.user_id = ? OR r.message_id IS NOT NULL THEN 1 ELSE 0 END
		FROM chat_messages m
		LEFT JOIN users u ON u.user_id = m.user_id
		LEFT JOIN chat_message_reads r ON r.message_id = m.id AND r.user_id = ?
		WHERE m.team_id = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := t.db.QueryContext(ctx, query, userID, userID, teamID, limit, offset)
	if err != nil {
		t.Log.WithContext(ctx).Error("Failed to get messages", "error", err, "team_id", teamID, "user_id", userID)
		return models.MessagePage{}, apperr.Internal(err, "Failed to get messages")
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows, true)
		if err != nil {
			return models.MessagePage{}, apperr.Internal(err, "Failed to process messages")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return models.MessagePage{}, apperr.Internal(err, "Failed to process messages")
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	unread, err := t.unreadCount(ctx, teamID, userID)
	if err != nil {
		return models.MessagePage{}, err
	}
	return models.MessagePage{Messages: messages, UnreadCount: unread, Limit: limit, Offset: offset}, nil
}

// UnreadByTeam returns the user's unread count for every team they belong to.
func (t *Tracker) UnreadByTeam(ctx context.Context, userID int64) (map[int64]int, error) {
	query := `
		SELECT tm.team_id, COUNT(m.id)
		FROM team_members tm
		LEFT JOIN chat_messages m ON m.team_id = tm.team_id AND m.user_id <> tm.user_id
			AND NOT EXISTS (
				SELECT 1 FROM chat_message_reads r WHERE r.message_id = m.id AND r.user_id = tm.user_id
			)
		WHERE tm.user_id = ?
		GROUP BY tm.team_id
	`
	rows, err := t.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to count unread messages")
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var teamID int64
		var n int
		if err := rows.Scan(&teamID, &n); err != nil {
			return nil, apperr.Internal(err, "Failed to count unread messages")
		}
		counts[teamID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "Failed to count unread messages")
	}
	return counts, nil
}

func (t *Tracker) message(ctx context.Context, teamID, messageID int64) (models.ChatMessage, error) {
	query := `SELECT ` + messageColumns + `
		FROM chat_messages m
		LEFT JOIN users u ON u.user_id = m.user_id
		WHERE m.id = ? AND m.team_id = ?
	`
	msg, err := scanMessage(t.db.QueryRowContext(ctx, query, messageID, teamID), false)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, apperr.NotFound("message not found")
	}
	if err != nil {
		return models.ChatMessage{}, apperr.Internal(err, "Failed to get message")
	}
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, withRead bool) (models.ChatMessage, error) {
	var (
		msg               models.ChatMessage
		typ               string
		replyTo, editedAt sql.NullInt64
		isRead            bool
	)
	dest := []any{
		&msg.ID, &msg.TeamID, &msg.UserID, &msg.Body, &typ, &replyTo, &msg.IsEdited, &editedAt,
		&msg.CreatedAt, &msg.UpdatedAt, &msg.FirstName, &msg.LastName,
	}
	if withRead {
		dest = append(dest, &isRead)
	}
	if err := row.Scan(dest...); err != nil {
		return models.ChatMessage{}, err
	}
	msg.Type = models.MessageType(typ)
	msg.IsRead = isRead
	if replyTo.Valid {
		v := replyTo.Int64
		msg.ReplyTo = &v
	}
	if editedAt.Valid {
		v := editedAt.Int64
		msg.EditedAt = &v
	}
	return msg, nil
}
