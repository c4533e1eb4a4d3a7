// Package testutil opens migrated SQLite databases and seeds fixtures for
// package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/logger"
)

// OpenDB returns a migrated SQLite database in a per-test temp dir.
func OpenDB(t testing.TB) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "teamhub.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)

	db, err := database.Open(context.Background(), database.Config{
		Driver:       database.SQLite,
		DSN:          dsn,
		MaxOpenConns: 8,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// Logger returns a quiet logger for tests.
func Logger() *logger.Logger {
	return logger.NewNop()
}

// SeedUser inserts a user and returns its id.
func SeedUser(t testing.TB, db *database.DB, email string) int64 {
	t.Helper()

	res, err := db.ExecContext(context.Background(),
		`INSERT INTO users (email, first_name, last_name, created_at) VALUES (?, ?, ?, ?)`,
		email, "First", "Last", time.Now().Unix())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// Count runs a COUNT(*) query and returns the result.
func Count(t testing.TB, db *database.DB, query string, args ...any) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

// Clock is a settable time source.
type Clock struct {
	now atomic.Int64
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	c := &Clock{}
	c.Set(start)
	return c
}

func (c *Clock) Now() time.Time { return time.Unix(c.now.Load(), 0).UTC() }

func (c *Clock) Set(t time.Time) { c.now.Store(t.Unix()) }

func (c *Clock) Advance(d time.Duration) { c.now.Add(int64(d / time.Second)) }
