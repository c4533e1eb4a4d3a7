// Package users is a read-only view of the accounts table, which is owned
// by the external account system.
package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/logger"
	"github.com/nikhil/teamhub/internal/models"
)

// Directory looks users up by id or email.
type Directory struct {
	db  *database.DB
	Log *logger.Logger
}

// NewDirectory initializes a new user directory
func NewDirectory(db *database.DB, log *logger.Logger) *Directory {
	return &Directory{db: db, Log: log}
}

// FindByID returns the user with id.
func (d *Directory) FindByID(ctx context.Context, userID int64) (models.User, error) {
	return d.find(ctx, `WHERE user_id = ?`, userID)
}

// FindByEmail returns the user registered with email, compared case-insensitively.
func (d *Directory) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return d.find(ctx, `WHERE LOWER(email) = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (d *Directory) find(ctx context.Context, where string, arg any) (models.User, error) {
	var user models.User
	query := `SELECT user_id, email, first_name, last_name FROM users ` + where
	err := d.db.QueryRowContext(ctx, query, arg).Scan(&user.UserID, &user.Email, &user.FirstName, &user.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		d.Log.WithContext(ctx).Error("Failed to get user", "error", err)
		return models.User{}, apperr.Internal(err, "Failed to get user details")
	}
	return user, nil
}
