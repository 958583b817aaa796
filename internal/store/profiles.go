package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Profile is the public face of a user: the username in /u/{username} plus
// the display fields rendered above the link list.
type Profile struct {
	UserID      string         `db:"user_id"`
	Username    string         `db:"username"`
	DisplayName string         `db:"display_name"`
	Bio         sql.NullString `db:"bio"`
	AvatarURL   sql.NullString `db:"avatar_url"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// ProfileInput is the full set of editable profile fields.
type ProfileInput struct {
	Username    string
	DisplayName string
	Bio         *string
	AvatarURL   *string
}

type ProfileStore struct {
	db *sqlx.DB
}

func NewProfileStore(db *sqlx.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) q(query string) string { return s.db.Rebind(query) }

// GetByUsername returns the profile for username (case-insensitive), or ErrNotFound.
func (s *ProfileStore) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	u, err := ValidateUsername(username)
	if err != nil {
		return nil, ErrNotFound
	}
	var p Profile
	err = s.db.GetContext(ctx, &p, s.q(`SELECT * FROM profiles WHERE username = ?`), u)
	if err != nil {
		return nil, wrapErr("get profile", err)
	}
	return &p, nil
}

// GetByUserID returns the caller's own profile, or ErrNotFound if none was saved yet.
func (s *ProfileStore) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	var p Profile
	err := s.db.GetContext(ctx, &p, s.q(`SELECT * FROM profiles WHERE user_id = ?`), userID)
	if err != nil {
		return nil, wrapErr("get profile", err)
	}
	return &p, nil
}

// Upsert creates or replaces userID's profile. A username held by another
// user is reported as a *ValidationError on the username field.
func (s *ProfileStore) Upsert(ctx context.Context, userID string, in ProfileInput) (*Profile, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	username, err := ValidateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	displayName, err := ValidateDisplayName(in.DisplayName)
	if err != nil {
		return nil, err
	}
	bio, err := ValidateBio(in.Bio)
	if err != nil {
		return nil, err
	}
	var avatar *string
	if in.AvatarURL != nil && *in.AvatarURL != "" {
		a, err := ValidateURL("avatar_url", *in.AvatarURL)
		if err != nil {
			return nil, err
		}
		avatar = &a
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("save profile", err)
	}
	defer tx.Rollback()

	// Check-then-write keeps the query portable across the three dialects;
	// the unique index on username still arbitrates concurrent claims.
	var exists int
	err = tx.GetContext(ctx, &exists, s.q(`SELECT COUNT(*) FROM profiles WHERE user_id = ?`), userID)
	if err != nil {
		return nil, wrapErr("save profile", err)
	}

	now := time.Now().UTC()
	if exists == 0 {
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO profiles (user_id, username, display_name, bio, avatar_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), userID, username, displayName, bio, avatar, now, now)
	} else {
		_, err = tx.ExecContext(ctx, s.q(`
			UPDATE profiles SET username = ?, display_name = ?, bio = ?, avatar_url = ?, updated_at = ?
			WHERE user_id = ?
		`), username, displayName, bio, avatar, now, userID)
	}
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, invalid("username", "username %q is already taken", username)
		}
		return nil, wrapErr("save profile", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("save profile", err)
	}
	return s.GetByUserID(ctx, userID)
}

// UsernameAvailable reports whether username is free or already belongs to userID.
func (s *ProfileStore) UsernameAvailable(ctx context.Context, userID, username string) (bool, error) {
	p, err := s.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return p.UserID == userID, nil
}
