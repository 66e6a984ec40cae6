// Package testdb opens throwaway sqlite databases with the full schema applied.
package testdb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/openclerk/internal/schema"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// New returns a migrated sqlite database that is removed with the test
func New(t *testing.T, accountTables ...string) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "openclerk.db")
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := schema.Apply(context.Background(), db, accountTables); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// Clock is a settable time source for deterministic tests
type Clock struct {
	now time.Time
}

// NewClock starts a clock at a fixed UTC instant
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time { return c.now }

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// InsertUser adds a user row and returns its id
func InsertUser(t *testing.T, db *sqlx.DB, name, email string, premium bool) int64 {
	t.Helper()
	return insert(t, db, `INSERT INTO users (name, email, is_premium, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		name, email, premium, time.Now().UTC())
}

// InsertAccount adds a row to a failure-tracked account table and returns its id
func InsertAccount(t *testing.T, db *sqlx.DB, table string, userID int64, title string) int64 {
	t.Helper()
	return insert(t, db, `INSERT INTO `+table+` (user_id, title, created_at) VALUES (?, ?, ?) RETURNING id`,
		userID, title, time.Now().UTC())
}

func insert(t *testing.T, db *sqlx.DB, query string, args ...any) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRowx(db.Rebind(query), args...).Scan(&id); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}
