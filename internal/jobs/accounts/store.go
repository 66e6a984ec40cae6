package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/jmoiron/sqlx"
)

// Account is a row of a failure-tracked account table
type Account struct {
	ID           int64          `db:"id"`
	UserID       int64          `db:"user_id"`
	Title        string         `db:"title"`
	Address      sql.NullString `db:"address"`
	Failures     int            `db:"failures"`
	FirstFailure *time.Time     `db:"first_failure"`
	IsDisabled   bool           `db:"is_disabled"`
	CreatedAt    time.Time      `db:"created_at"`
}

// Store updates failure counters. Table names are only accepted when the
// catalog knows them, since they cannot be bound as parameters.
type Store struct {
	db      *sqlx.DB
	catalog *Catalog
}

// NewStore creates a Store
func NewStore(db *sqlx.DB, catalog *Catalog) *Store {
	return &Store{db: db, catalog: catalog}
}

func (s *Store) table(name string) (string, error) {
	if !s.catalog.HasTable(name) {
		return "", fmt.Errorf("unknown account table: %q", name)
	}
	return name, nil
}

// Get loads one account
func (s *Store) Get(ctx context.Context, table string, id int64) (*Account, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	var account Account
	query := s.db.Rebind(`SELECT id, user_id, title, address, failures, first_failure, is_disabled, created_at
		FROM ` + t + ` WHERE id = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// IncrementFailures counts one failure, remembering when the first one happened
func (s *Store) IncrementFailures(ctx context.Context, table string, id int64, now time.Time) error {
	return s.exec(ctx, table, `UPDATE %s SET failures = failures + 1, first_failure = COALESCE(first_failure, ?) WHERE id = ?`, now, id)
}

// ResetFailures clears the counter after a successful run
func (s *Store) ResetFailures(ctx context.Context, table string, id int64) error {
	return s.exec(ctx, table, `UPDATE %s SET failures = 0 WHERE id = ?`, id)
}

// Disable stops the account from being scheduled
func (s *Store) Disable(ctx context.Context, table string, id int64) error {
	return s.exec(ctx, table, `UPDATE %s SET is_disabled = TRUE WHERE id = ?`, id)
}

func (s *Store) exec(ctx context.Context, table, format string, args ...any) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(fmt.Sprintf(format, t)), args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", t, err)
	}
	return nil
}

// User is the subset of a user row the tracker needs
type User struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	IsPremium bool   `db:"is_premium"`
}

// DisplayName falls back to the email address
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserStore reads users
type UserStore struct {
	db *sqlx.DB
}

// NewUserStore creates a UserStore
func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// GetUser returns domain.ErrUserNotFound when the user is missing
func (s *UserStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	query := s.db.Rebind(`SELECT id, name, email, is_premium FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
