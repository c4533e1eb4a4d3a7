// Package membership owns teams and team members: the ground truth for who
// belongs to which team with what role.
package membership

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
	"github.com/nikhil/teamhub/internal/validation"
)

// DefaultColor is assigned to teams created without a color.
const DefaultColor = "#3B82F6"

// CreatorRole is the role granted to the user who creates a team.
const CreatorRole = models.RoleOwner

// teamInput validates team attributes on create and update.
type teamInput struct {
	Name        string `json:"name" validate:"notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
	Color       string `json:"color" validate:"omitempty,hexcolor,len=7"`
}

// Store handles team and membership persistence.
type Store struct {
	db  *database.DB
	q   database.Querier
	tx  *sql.Tx
	now func() time.Time
	Log *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore initializes a new membership store
func NewStore(db *database.DB, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		db:  db,
		q:   db,
		now: func() time.Time { return time.Now().UTC() },
		Log: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a copy of the store whose statements run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	c := *s
	c.q = tx
	c.tx = tx
	return &c
}

// atomic runs fn in a transaction, reusing the current one if the store is
// already bound to a transaction.
func (s *Store) atomic(ctx context.Context, fn func(st *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(s.WithTx(tx))
	})
}

// CreateTeam inserts the team and adds the creator as its owner in one
// transaction.
func (s *Store) CreateTeam(ctx context.Context, name, description, color string, creatorID int64) (models.Team, error) {
	in := teamInput{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Color:       strings.TrimSpace(color),
	}
	if err := validation.Struct(in); err != nil {
		return models.Team{}, err
	}
	if in.Color == "" {
		in.Color = DefaultColor
	}

	currentTime := s.now().Unix()
	team := models.Team{
		Name:        in.Name,
		Description: in.Description,
		Color:       strings.ToUpper(in.Color),
		OwnerID:     creatorID,
		CreatedAt:   currentTime,
		UpdatedAt:   currentTime,
	}

	err := s.atomic(ctx, func(st *Store) error {
		query := `
			INSERT INTO teams (name, description, color, owner_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		result, err := st.q.ExecContext(ctx, query, team.Name, team.Description, team.Color, team.OwnerID, currentTime, currentTime)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return apperr.NotFound("user not found")
			}
			return apperr.Internal(err, "Failed to create team")
		}
		team.ID, err = result.LastInsertId()
		if err != nil {
			return apperr.Internal(err, "Failed to get team ID")
		}
		return st.insertMember(ctx, team.ID, creatorID, CreatorRole, &creatorID, currentTime)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.Log.WithContext(ctx).Error("Failed to create team", "error", err, "user_id", creatorID)
		}
		return models.Team{}, err
	}

	s.Log.WithContext(ctx).Info("Team created", "team_id", team.ID, "user_id", creatorID)
	return team, nil
}

// AddMember inserts a membership row. An existing (team, user) pair is a
// conflict, detected by the primary key rather than a prior read.
func (s *Store) AddMember(ctx context.Context, teamID, userID int64, role models.Role, invitedBy *int64) error {
	if !role.Valid() {
		return apperr.Validation("invalid role %q", role)
	}
	if err := s.insertMember(ctx, teamID, userID, role, invitedBy, s.now().Unix()); err != nil {
		return err
	}
	s.Log.WithContext(ctx).Info("Member added", "team_id", teamID, "user_id", userID, "role", role)
	return nil
}

func (s *Store) insertMember(ctx context.Context, teamID, userID int64, role models.Role, invitedBy *int64, joinedAt int64) error {
	query := `
		INSERT INTO team_members (team_id, user_id, role, joined_at, invited_by)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query, teamID, userID, string(role), joinedAt, invitedBy)
	switch {
	case err == nil:
		return nil
	case database.IsDuplicateKey(err):
		return apperr.Conflict("user is already a member of this team")
	case database.IsForeignKeyViolation(err):
		return apperr.NotFound("team or user not found")
	default:
		return apperr.Internal(err, "Failed to add user to team")
	}
}

// RemoveMember deletes the membership row. Removing a non-member succeeds.
// The last owner of a team, and its last owner or admin, cannot be removed.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID int64) error {
	return s.RemoveMemberAs(ctx, teamID, userID, models.RoleOwner)
}

// RemoveMemberAs is RemoveMember on behalf of a caller holding actorRole.
// Only owners may remove an owner.
func (s *Store) RemoveMemberAs(ctx context.Context, teamID, userID int64, actorRole models.Role) error {
	err := s.atomic(ctx, func(st *Store) error {
		role, ok, err := st.lockedRole(ctx, teamID, userID)
		if err != nil || !ok {
			return err
		}
		if role == models.RoleOwner && actorRole != models.RoleOwner {
			return apperr.Forbidden("Only owners can remove an owner")
		}
		if err := st.ensureSuccessor(ctx, teamID, userID, role, ""); err != nil {
			return err
		}
		if _, err := st.q.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID); err != nil {
			return apperr.Internal(err, "Failed to remove member")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Log.WithContext(ctx).Info("Member removed", "team_id", teamID, "user_id", userID)
	return nil
}

// UpdateMemberRole changes a member's role. Demoting the last owner, or the
// last owner or admin, is refused.
func (s *Store) UpdateMemberRole(ctx context.Context, teamID, userID int64, role models.Role) error {
	return s.UpdateMemberRoleAs(ctx, teamID, userID, role, models.RoleOwner)
}

// UpdateMemberRoleAs is UpdateMemberRole on behalf of a caller holding
// actorRole. Granting the owner role or changing an owner's role is reserved
// for owners.
func (s *Store) UpdateMemberRoleAs(ctx context.Context, teamID, userID int64, role, actorRole models.Role) error {
	if !role.Valid() {
		return apperr.Validation("invalid role %q", role)
	}
	if role == models.RoleOwner && actorRole != models.RoleOwner {
		return apperr.Forbidden("Only owners can change owner roles")
	}
	err := s.atomic(ctx, func(st *Store) error {
		current, ok, err := st.lockedRole(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("member not found")
		}
		if current == models.RoleOwner && actorRole != models.RoleOwner {
			return apperr.Forbidden("Only owners can change owner roles")
		}
		if current == role {
			return nil
		}
		if err := st.ensureSuccessor(ctx, teamID, userID, current, role); err != nil {
			return err
		}
		_, err = st.q.ExecContext(ctx, `UPDATE team_members SET role = ? WHERE team_id = ? AND user_id = ?`, string(role), teamID, userID)
		if err != nil {
			return apperr.Internal(err, "Failed to update member role")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Log.WithContext(ctx).Info("Member role updated", "team_id", teamID, "user_id", userID, "role", role)
	return nil
}

func (s *Store) lockedRole(ctx context.Context, teamID, userID int64) (models.Role, bool, error) {
	var role string
	query := `SELECT role FROM team_members WHERE team_id = ? AND user_id = ?` + s.db.Dialect.ForUpdate()
	err := s.q.QueryRowContext(ctx, query, teamID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Internal(err, "Failed to check team membership")
	}
	return models.Role(role), true, nil
}

// ensureSuccessor refuses a move from one role to another (empty on removal)
// that would leave the team without an owner, or without any manager.
func (s *Store) ensureSuccessor(ctx context.Context, teamID, userID int64, from, to models.Role) error {
	switch {
	case from == models.RoleOwner && to != models.RoleOwner:
		return s.ensureOther(ctx, teamID, userID, "a team must keep at least one owner", models.RoleOwner)
	case from.IsManager() && !to.IsManager():
		return s.ensureOther(ctx, teamID, userID, "a team must keep at least one owner or admin", models.RoleOwner, models.RoleAdmin)
	}
	return nil
}

func (s *Store) ensureOther(ctx context.Context, teamID, excludeUserID int64, message string, roles ...models.Role) error {
	args := []any{teamID, excludeUserID}
	for _, r := range roles {
		args = append(args, string(r))
	}
	var others int
	query := `
		SELECT COUNT(*) FROM team_members
		WHERE team_id = ? AND user_id <> ? AND role IN (` + database.Placeholders(len(roles)) + `)
	` + s.db.Dialect.ForUpdate()
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&others); err != nil {
		return apperr.Internal(err, "Failed to count team managers")
	}
	if others == 0 {
		return apperr.Conflict("%s", message)
	}
	return nil
}

// IsMember returns the user's role in the team and whether they are a member.
// This is the lookup the authorization gate relies on.
func (s *Store) IsMember(ctx context.Context, teamID, userID int64) (models.Role, bool, error) {
	var role string
	err := s.q.QueryRowContext(ctx, `SELECT role FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Internal(err, "Failed to verify team membership")
	}
	return models.Role(role), true, nil
}

// IsOwner reports whether the user is an owner of the team.
func (s *Store) IsOwner(ctx context.Context, teamID, userID int64) (bool, error) {
	role, ok, err := s.IsMember(ctx, teamID, userID)
	if err != nil {
		return false, err
	}
	return ok && role == models.RoleOwner, nil
}

// GetMembers lists the team's members ordered by join time.
func (s *Store) GetMembers(ctx context.Context, teamID int64) ([]models.TeamMember, error) {
	query := `
		SELECT tm.team_id, tm.user_id, tm.role, tm.joined_at, tm.invited_by,
		       COALESCE(u.email, ''), COALESCE(u.first_name, ''), COALESCE(u.last_name, '')
		FROM team_members tm
		LEFT JOIN users u ON u.user_id = tm.user_id
		WHERE tm.team_id = ?
		ORDER BY tm.joined_at ASC, tm.user_id ASC
	`
	rows, err := s.q.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to get team members")
	}
	defer rows.Close()

	members := []models.TeamMember{}
	for rows.Next() {
		var (
			m         models.TeamMember
			role      string
			invitedBy sql.NullInt64
		)
		if err := rows.Scan(&m.TeamID, &m.UserID, &role, &m.JoinedAt, &invitedBy, &m.Email, &m.FirstName, &m.LastName); err != nil {
			return nil, apperr.Internal(err, "Failed to process team members")
		}
		m.Role = models.Role(role)
		if invitedBy.Valid {
			v := invitedBy.Int64
			m.InvitedBy = &v
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "Failed to process team members")
	}
	return members, nil
}

// MemberByEmail returns the membership of the user with email, if any.
func (s *Store) MemberByEmail(ctx context.Context, teamID int64, email string) (models.Role, bool, error) {
	var role string
	query := `
		SELECT tm.role FROM team_members tm
		JOIN users u ON u.user_id = tm.user_id
		WHERE tm.team_id = ? AND LOWER(u.email) = ?
	`
	err := s.q.QueryRowContext(ctx, query, teamID, strings.ToLower(strings.TrimSpace(email))).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Internal(err, "Failed to check team membership")
	}
	return models.Role(role), true, nil
}

// GetTeam retrieves a specific team by ID
func (s *Store) GetTeam(ctx context.Context, teamID int64) (models.Team, error) {
	var team models.Team
	query := `
		SELECT team_id, name, description, color, owner_id, created_at, updated_at
		FROM teams WHERE team_id = ?
	`
	err := s.q.QueryRowContext(ctx, query, teamID).Scan(
		&team.ID, &team.Name, &team.Description, &team.Color,
		&team.OwnerID, &team.CreatedAt, &team.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Team{}, apperr.NotFound("team not found")
	}
	if err != nil {
		return models.Team{}, apperr.Internal(err, "Failed to get team details")
	}
	return team, nil
}

// TeamExists reports whether a team row exists.
func (s *Store) TeamExists(ctx context.Context, teamID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE team_id = ?)`, teamID).Scan(&exists)
	if err != nil {
		return false, apperr.Internal(err, "Failed to check team")
	}
	return exists, nil
}

// UpdateTeam updates a team's name, description and color. A blank color
// keeps the current one.
func (s *Store) UpdateTeam(ctx context.Context, teamID int64, name, description, color string) (models.Team, error) {
	in := teamInput{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Color:       strings.TrimSpace(color),
	}
	if err := validation.Struct(in); err != nil {
		return models.Team{}, err
	}

	updateQuery := `UPDATE teams SET name = ?, description = ?, color = COALESCE(NULLIF(?, ''), color), updated_at = ? WHERE team_id = ?`
	_, err := s.q.ExecContext(ctx, updateQuery, in.Name, in.Description, strings.ToUpper(in.Color), s.now().Unix(), teamID)
	if err != nil {
		return models.Team{}, apperr.Internal(err, "Failed to update team")
	}

	// RowsAffected is not used: MySQL reports 0 for an update that changes nothing.
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return models.Team{}, err
	}
	s.Log.WithContext(ctx).Info("Team updated", "team_id", teamID)
	return team, nil
}

// ListUserTeams retrieves the teams the user belongs to, newest first.
func (s *Store) ListUserTeams(ctx context.Context, userID int64, page, perPage int) (models.PaginationResponse, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	var totalCount int
	countQuery := `
		SELECT COUNT(*)
		FROM teams t
		JOIN team_members tm ON t.team_id = tm.team_id
		WHERE tm.user_id = ?
	`
	if err := s.q.QueryRowContext(ctx, countQuery, userID).Scan(&totalCount); err != nil {
		return models.PaginationResponse{}, apperr.Internal(err, "Failed to get teams")
	}

	query := `
		SELECT t.team_id, t.name, t.description, t.color, t.owner_id, t.created_at, t.updated_at,
		       tm.role,
		       (SELECT COUNT(*) FROM team_members c WHERE c.team_id = t.team_id)
		FROM teams t
		JOIN team_members tm ON t.team_id = tm.team_id
		WHERE tm.user_id = ?
		ORDER BY t.created_at DESC, t.team_id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.q.QueryContext(ctx, query, userID, perPage, offset)
	if err != nil {
		return models.PaginationResponse{}, apperr.Internal(err, "Failed to get teams")
	}
	defer rows.Close()

	teams := []models.TeamSummary{}
	for rows.Next() {
		var (
			t    models.TeamSummary
			role string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Color, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt, &role, &t.MemberCount); err != nil {
			return models.PaginationResponse{}, apperr.Internal(err, "Failed to process teams data")
		}
		t.Role = models.Role(role)
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return models.PaginationResponse{}, apperr.Internal(err, "Error processing teams data")
	}

	return models.PaginationResponse{
		Teams:      teams,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
	}, nil
}
