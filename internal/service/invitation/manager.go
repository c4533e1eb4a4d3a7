// Package invitation issues and resolves team invitations.
//
// Invitations move from pending to exactly one of accepted, declined,
// cancelled or expired. Every transition is a conditional update on the
// pending row, so concurrent callers race on the database and only one wins.
package invitation

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/metrics"
	"github.com/nikhil/teamhub/internal/models"
	"github.com/nikhil/teamhub/internal/service/authz"
	"github.com/nikhil/teamhub/internal/service/membership"
	"github.com/nikhil/teamhub/internal/validation"
)

// DefaultTTL is how long an invitation stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

// ErrInvalidInvitation is returned for unknown, used and expired tokens alike.
var ErrInvalidInvitation = apperr.NotFound("invalid or expired invitation")

const invitationColumns = `
	i.id, i.team_id, i.email, i.role, i.token, i.invited_by, i.status,
	i.expires_at, i.created_at, i.accepted_at, i.responded_at, COALESCE(t.name, '')
`

// Manager handles the invitation lifecycle.
type Manager struct {
	db      *database.DB
	members *membership.Store
	gate    *authz.Gate
	ttl     time.Duration
	now     func() time.Time
	Log     *logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager initializes a new invitation manager
func NewManager(db *database.DB, members *membership.Store, gate *authz.Gate, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		db:      db,
		members: members,
		gate:    gate,
		ttl:     DefaultTTL,
		now:     func() time.Time { return time.Now().UTC() },
		Log:     log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// invitableRole reports whether role may be granted through an invitation.
func invitableRole(role models.Role) bool {
	switch role {
	case models.RoleAdmin, models.RoleMember, models.RoleViewer:
		return true
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create issues a pending invitation for email to join teamID. The inviter
// needs the manage_members permission. A blank role defaults to member.
func (m *Manager) Create(ctx context.Context, teamID int64, email string, role models.Role, inviterID int64) (models.TeamInvitation, error) {
	log := m.Log.WithContext(ctx)

	if _, err := m.gate.Require(ctx, teamID, inviterID, authz.ActionManageMembers); err != nil {
		return models.TeamInvitation{}, err
	}

	email = normalizeEmail(email)
	if err := validation.Var("email", email, "required,email,max=255"); err != nil {
		return models.TeamInvitation{}, err
	}
	if role == "" {
		role = models.RoleMember
	}
	if !invitableRole(role) {
		return models.TeamInvitation{}, apperr.Validation("role must be one of: admin, member, viewer")
	}

	token, err := newToken()
	if err != nil {
		log.Error("Failed to generate invitation token", "error", err, "team_id", teamID)
		return models.TeamInvitation{}, apperr.Internal(err, "Failed to create invitation")
	}

	currentTime := m.now().Unix()
	inv := models.TeamInvitation{
		TeamID:    teamID,
		Email:     email,
		Role:      role,
		Token:     token,
		InvitedBy: inviterID,
		Status:    models.InvitationPending,
		ExpiresAt: m.now().Add(m.ttl).Unix(),
		CreatedAt: currentTime,
	}

	// The team row lock serializes concurrent invites to the same team, so
	// the pending check and the insert cannot interleave.
	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		var locked int64
		lockQuery := `SELECT team_id FROM teams WHERE team_id = ?` + m.db.Dialect.ForUpdate()
		if err := tx.QueryRowContext(ctx, lockQuery, teamID).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("team not found")
			}
			return apperr.Internal(err, "Failed to create invitation")
		}

		pending, err := m.pendingExists(ctx, tx, teamID, email)
		if err != nil {
			return err
		}
		if pending {
			return apperr.Conflict("an invitation is already pending for this email")
		}
		if _, isMember, err := m.members.WithTx(tx).MemberByEmail(ctx, teamID, email); err != nil {
			return err
		} else if isMember {
			return apperr.Conflict("user is already a member of this team")
		}

		query := `
			INSERT INTO team_invitations (team_id, email, role, token, invited_by, status, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query,
			inv.TeamID, inv.Email, string(inv.Role), inv.Token, inv.InvitedBy,
			string(inv.Status), inv.ExpiresAt, inv.CreatedAt)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return apperr.NotFound("team not found")
			}
			return apperr.Internal(err, "Failed to create invitation")
		}
		inv.ID, err = result.LastInsertId()
		if err != nil {
			return apperr.Internal(err, "Failed to get invitation ID")
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			log.Error("Failed to create invitation", "error", err, "team_id", teamID, "user_id", inviterID)
		}
		return models.TeamInvitation{}, err
	}

	metrics.InvitationTransitions.WithLabelValues(string(models.InvitationPending)).Inc()
	log.Info("Invitation created", "invitation_id", inv.ID, "team_id", teamID, "user_id", inviterID, "role", role)
	return inv, nil
}

// Accept redeems token for userID. The status flip and the membership insert
// commit together. A user who is already a member still consumes the
// invitation successfully.
func (m *Manager) Accept(ctx context.Context, token string, userID int64) (models.TeamInvitation, error) {
	if token == "" {
		return models.TeamInvitation{}, ErrInvalidInvitation
	}

	var inv models.TeamInvitation
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		currentTime := m.now().Unix()
		query := `
			UPDATE team_invitations
			SET status = ?, accepted_at = ?, responded_at = ?
			WHERE token = ? AND status = ? AND expires_at > ?
		`
		result, err := tx.ExecContext(ctx, query,
			string(models.InvitationAccepted), currentTime, currentTime,
			token, string(models.InvitationPending), currentTime)
		if err != nil {
			return apperr.Internal(err, "Failed to accept invitation")
		}
		if n, err := result.RowsAffected(); err != nil {
			return apperr.Internal(err, "Failed to accept invitation")
		} else if n == 0 {
			return ErrInvalidInvitation
		}

		inv, err = scanInvitation(tx.QueryRowContext(ctx, `SELECT `+invitationColumns+`
			FROM team_invitations i LEFT JOIN teams t ON t.team_id = i.team_id
			WHERE i.token = ?`, token))
		if err != nil {
			return apperr.Internal(err, "Failed to load invitation")
		}

		err = m.members.WithTx(tx).AddMember(ctx, inv.TeamID, userID, inv.Role, &inv.InvitedBy)
		if apperr.Is(err, apperr.KindConflict) {
			return nil
		}
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			m.Log.WithContext(ctx).Error("Failed to accept invitation", "error", err, "user_id", userID)
		}
		return models.TeamInvitation{}, err
	}

	metrics.InvitationTransitions.WithLabelValues(string(models.InvitationAccepted)).Inc()
	m.Log.WithContext(ctx).Info("Invitation accepted", "invitation_id", inv.ID, "team_id", inv.TeamID, "user_id", userID)
	return inv, nil
}

// Decline marks a pending, unexpired invitation as declined.
func (m *Manager) Decline(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidInvitation
	}
	currentTime := m.now().Unix()
	query := `
		UPDATE team_invitations SET status = ?, responded_at = ?
		WHERE token = ? AND status = ? AND expires_at > ?
	`
	n, err := m.exec(ctx, query,
		string(models.InvitationDeclined), currentTime,
		token, string(models.InvitationPending), currentTime)
	if err != nil {
		m.Log.WithContext(ctx).Error("Failed to decline invitation", "error", err)
		return apperr.Internal(err, "Failed to decline invitation")
	}
	if n == 0 {
		return ErrInvalidInvitation
	}
	metrics.InvitationTransitions.WithLabelValues(string(models.InvitationDeclined)).Inc()
	m.Log.WithContext(ctx).Info("Invitation declined")
	return nil
}

// Cancel withdraws a pending invitation. Only the inviter may cancel it.
func (m *Manager) Cancel(ctx context.Context, invitationID, requesterID int64) error {
	inv, err := m.FindByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.InvitedBy != requesterID {
		return apperr.Forbidden("only the inviter can cancel this invitation")
	}
	if inv.Status.Terminal() {
		return apperr.Conflict("invitation is no longer pending")
	}

	currentTime := m.now().Unix()
	query := `
		UPDATE team_invitations SET status = ?, responded_at = ?
		WHERE id = ? AND status = ? AND expires_at > ?
	`
	n, err := m.exec(ctx, query,
		string(models.InvitationCancelled), currentTime,
		invitationID, string(models.InvitationPending), currentTime)
	if err != nil {
		m.Log.WithContext(ctx).Error("Failed to cancel invitation", "error", err, "invitation_id", invitationID)
		return apperr.Internal(err, "Failed to cancel invitation")
	}
	if n == 0 {
		return apperr.Conflict("invitation is no longer pending")
	}
	metrics.InvitationTransitions.WithLabelValues(string(models.InvitationCancelled)).Inc()
	m.Log.WithContext(ctx).Info("Invitation cancelled", "invitation_id", invitationID, "team_id", inv.TeamID, "user_id", requesterID)
	return nil
}

// CleanExpired flips every pending invitation past its expiry to expired and
// returns how many rows changed.
func (m *Manager) CleanExpired(ctx context.Context) (int64, error) {
	query := `UPDATE team_invitations SET status = ? WHERE status = ? AND expires_at <= ?`
	n, err := m.exec(ctx, query, string(models.InvitationExpired), string(models.InvitationPending), m.now().Unix())
	if err != nil {
		return 0, apperr.Internal(err, "Failed to expire invitations")
	}
	if n > 0 {
		metrics.InvitationsExpired.Add(float64(n))
		metrics.InvitationTransitions.WithLabelValues(string(models.InvitationExpired)).Add(float64(n))
		m.Log.WithContext(ctx).Info("Expired invitations swept", "count", n)
	}
	return n, nil
}

// RunSweeper calls CleanExpired every interval until ctx is done. Expiry is
// also applied on read, so the sweeper only keeps stored statuses tidy.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.CleanExpired(ctx); err != nil && ctx.Err() == nil {
				m.Log.Warn("Invitation sweep failed", "error", err)
			}
		}
	}
}

// ExistsPendingForEmail reports whether a pending, unexpired invitation for
// email already exists in the team.
func (m *Manager) ExistsPendingForEmail(ctx context.Context, teamID int64, email string) (bool, error) {
	return m.pendingExists(ctx, m.db, teamID, normalizeEmail(email))
}

func (m *Manager) pendingExists(ctx context.Context, q database.Querier, teamID int64, email string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM team_invitations
			WHERE team_id = ? AND email = ? AND status = ? AND expires_at > ?
		)
	`
	err := q.QueryRowContext(ctx, query, teamID, email, string(models.InvitationPending), m.now().Unix()).Scan(&exists)
	if err != nil {
		return false, apperr.Internal(err, "Failed to check pending invitations")
	}
	return exists, nil
}

// GetByTeamID lists every invitation of the team, newest first, with lazy
// expiry applied. Tokens are not included.
func (m *Manager) GetByTeamID(ctx context.Context, teamID int64) ([]models.TeamInvitation, error) {
	invs, err := m.list(ctx, `WHERE i.team_id = ? ORDER BY i.created_at DESC, i.id DESC`, teamID)
	if err != nil {
		return nil, err
	}
	for i := range invs {
		invs[i].Token = ""
	}
	return invs, nil
}

// GetByEmail lists the pending, unexpired invitations addressed to email.
func (m *Manager) GetByEmail(ctx context.Context, email string) ([]models.TeamInvitation, error) {
	return m.list(ctx, `WHERE i.email = ? AND i.status = ? AND i.expires_at > ? ORDER BY i.created_at DESC, i.id DESC`,
		normalizeEmail(email), string(models.InvitationPending), m.now().Unix())
}

// FindByToken returns the invitation for token with lazy expiry applied.
func (m *Manager) FindByToken(ctx context.Context, token string) (models.TeamInvitation, error) {
	if token == "" {
		return models.TeamInvitation{}, ErrInvalidInvitation
	}
	return m.find(ctx, `WHERE i.token = ?`, ErrInvalidInvitation, token)
}

// FindByID returns the invitation with lazy expiry applied.
func (m *Manager) FindByID(ctx context.Context, invitationID int64) (models.TeamInvitation, error) {
	return m.find(ctx, `WHERE i.id = ?`, apperr.NotFound("invitation not found"), invitationID)
}

func (m *Manager) find(ctx context.Context, where string, notFound error, args ...any) (models.TeamInvitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM team_invitations i LEFT JOIN teams t ON t.team_id = i.team_id ` + where
	inv, err := scanInvitation(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.TeamInvitation{}, notFound
	}
	if err != nil {
		return models.TeamInvitation{}, apperr.Internal(err, "Failed to get invitation")
	}
	inv.Status = inv.EffectiveStatus(m.now().Unix())
	return inv, nil
}

func (m *Manager) list(ctx context.Context, clause string, args ...any) ([]models.TeamInvitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM team_invitations i LEFT JOIN teams t ON t.team_id = i.team_id ` + clause
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to get invitations")
	}
	defer rows.Close()

	currentTime := m.now().Unix()
	invs := []models.TeamInvitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, apperr.Internal(err, "Failed to process invitations")
		}
		inv.Status = inv.EffectiveStatus(currentTime)
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "Failed to process invitations")
	}
	return invs, nil
}

func (m *Manager) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (models.TeamInvitation, error) {
	var (
		inv                     models.TeamInvitation
		role, status            string
		acceptedAt, respondedAt sql.NullInt64
	)
	err := row.Scan(&inv.ID, &inv.TeamID, &inv.Email, &role, &inv.Token, &inv.InvitedBy, &status,
		&inv.ExpiresAt, &inv.CreatedAt, &acceptedAt, &respondedAt, &inv.TeamName)
	if err != nil {
		return models.TeamInvitation{}, err
	}
	inv.Role = models.Role(role)
	inv.Status = models.InvitationStatus(status)
	if acceptedAt.Valid {
		v := acceptedAt.Int64
		inv.AcceptedAt = &v
	}
	if respondedAt.Valid {
		v := respondedAt.Int64
		inv.RespondedAt = &v
	}
	return inv, nil
}
