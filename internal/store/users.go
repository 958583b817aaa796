package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// User is the local identity record created on first OIDC login. Its ID is
// the owner id every link row is scoped by.
type User struct {
	ID          string    `db:"id"`
	Provider    string    `db:"provider"`
	Subject     string    `db:"subject"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) q(query string) string { return s.db.Rebind(query) }

// Upsert creates or refreshes the user for (provider, subject) on login.
// The id of an existing user never changes.
func (s *UserStore) Upsert(ctx context.Context, provider, subject, email, displayName string) (*User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("upsert user", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE users SET email = ?, display_name = ?, updated_at = ?
		WHERE provider = ? AND subject = ?
	`), email, displayName, now, provider, subject)
	if err != nil {
		return nil, wrapErr("upsert user", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, wrapErr("upsert user", err)
	} else if n == 0 {
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO users (id, provider, subject, email, display_name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), uuid.New().String(), provider, subject, email, displayName, now, now)
		// MySQL reports zero affected rows for a no-op update, so the row may exist.
		if err != nil && !isUniqueConstraintError(err) {
			return nil, wrapErr("upsert user", err)
		}
	}

	var u User
	err = tx.GetContext(ctx, &u, s.q(`SELECT * FROM users WHERE provider = ? AND subject = ?`), provider, subject)
	if err != nil {
		return nil, wrapErr("upsert user", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapErr("upsert user", err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT * FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, wrapErr("get user", err)
	}
	return &u, nil
}

// Count returns the number of registered users.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, wrapErr("count users", err)
	}
	return n, nil
}
