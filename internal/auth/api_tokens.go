package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/joestump/bio-links/internal/store"
)

// Scope limits what an API token may do on /api/v1.
type Scope string

const (
	// ScopeRead allows safe methods only: reading links, the profile and tokens.
	ScopeRead Scope = "read"
	// ScopeWrite also allows creating, editing, toggling, reordering and deleting.
	ScopeWrite Scope = "write"
)

const (
	// TokenPrefix marks API tokens so they are recognisable in logs and secret scanners.
	TokenPrefix = "bl_"

	DefaultTokenTTL = 90 * 24 * time.Hour
	MinTokenTTL     = time.Hour
	MaxTokenTTL     = 365 * 24 * time.Hour

	// MaxActiveTokens caps unexpired, unrevoked tokens per user.
	MaxActiveTokens = 10

	maxTokenNameLen = 50

	// touchInterval bounds how often last_used_at is rewritten for a busy token.
	touchInterval = time.Minute
)

// ParseScope reads a scope from user input. Empty means read.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeRead:
		return ScopeRead, nil
	case ScopeWrite:
		return ScopeWrite, nil
	}
	return "", &store.ValidationError{Field: "scope", Message: `scope must be "read" or "write"`}
}

// Allows reports whether a request with the given method fits the scope.
func (s Scope) Allows(method string) bool {
	if s == ScopeWrite {
		return true
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return s == ScopeRead
	}
	return false
}

// Token is a stored API token. Only the hash of the secret is kept.
type Token struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Name        string         `db:"name"`
	Hash        string         `db:"token_hash"`
	Scope       Scope          `db:"scope"`
	RotatedFrom sql.NullString `db:"rotated_from"`
	LastUsedAt  sql.NullTime   `db:"last_used_at"`
	ExpiresAt   time.Time      `db:"expires_at"`
	CreatedAt   time.Time      `db:"created_at"`
	RevokedAt   sql.NullTime   `db:"revoked_at"`
}

const tokenColumns = `id, user_id, name, token_hash, scope, rotated_from, last_used_at, expires_at, created_at, revoked_at`

// Usable reports whether the token is neither revoked nor expired at now.
func (t *Token) Usable(now time.Time) bool {
	return !t.RevokedAt.Valid && t.ExpiresAt.After(now)
}

// Lifetime is the validity window the token was issued with.
func (t *Token) Lifetime() time.Duration {
	return t.ExpiresAt.Sub(t.CreatedAt)
}

// TokenSpec is the caller's request for a new token.
type TokenSpec struct {
	Name  string
	Scope Scope
	TTL   time.Duration // 0 means DefaultTokenTTL
}

func (s TokenSpec) normalize() (TokenSpec, error) {
	s.Name = store.SanitizeText(s.Name)
	if s.Name == "" {
		return s, &store.ValidationError{Field: "name", Message: "token name is required"}
	}
	if utf8.RuneCountInString(s.Name) > maxTokenNameLen {
		return s, &store.ValidationError{Field: "name", Message: fmt.Sprintf("token name must be at most %d characters", maxTokenNameLen)}
	}
	scope, err := ParseScope(string(s.Scope))
	if err != nil {
		return s, err
	}
	s.Scope = scope
	if s.TTL == 0 {
		s.TTL = DefaultTokenTTL
	}
	if s.TTL < MinTokenTTL || s.TTL > MaxTokenTTL {
		return s, &store.ValidationError{Field: "expires_in", Message: "tokens must expire between 1 hour and 365 days from now"}
	}
	return s, nil
}

// IssuedToken is a freshly created token together with its plaintext, which
// exists nowhere else.
type IssuedToken struct {
	*Token
	Plaintext string
}

// TokenStore manages API tokens for the /api/v1 surface.
//
//go:generate mockgen -destination=mocks/mock_token_store.go -package=mocks github.com/joestump/bio-links/internal/auth TokenStore
type TokenStore interface {
	Issue(ctx context.Context, userID string, spec TokenSpec) (*IssuedToken, error)
	Rotate(ctx context.Context, userID, id string) (*IssuedToken, error)
	Lookup(ctx context.Context, plaintext string) (*Token, error)
	ListActive(ctx context.Context, userID string) ([]*Token, error)
	Revoke(ctx context.Context, userID, id string) error
	Touch(ctx context.Context, id string, at time.Time) error
}

// SQLTokenStore is the sqlx-backed TokenStore.
type SQLTokenStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLTokenStore(db *sqlx.DB) *SQLTokenStore {
	return &SQLTokenStore{db: db, now: time.Now}
}

func (s *SQLTokenStore) q(query string) string { return s.db.Rebind(query) }

// Issue creates a token for userID. A user may hold at most MaxActiveTokens
// usable tokens; rotating or revoking frees a slot.
func (s *SQLTokenStore) Issue(ctx context.Context, userID string, spec TokenSpec) (issued *IssuedToken, err error) {
	if userID == "" {
		return nil, store.ErrUnauthenticated
	}
	if spec, err = spec.normalize(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin issue token: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var active int
	err = tx.GetContext(ctx, &active, s.q(`
		SELECT COUNT(*) FROM api_tokens
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
	`), userID, now)
	if err != nil {
		return nil, fmt.Errorf("count active tokens: %w", err)
	}
	if active >= MaxActiveTokens {
		err = &store.ValidationError{Field: "name", Message: fmt.Sprintf("at most %d active tokens; revoke or rotate one instead", MaxActiveTokens)}
		return nil, err
	}

	if issued, err = s.insertTx(ctx, tx, userID, spec.Name, spec.Scope, "", now, now.Add(spec.TTL)); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issue token: %w", err)
	}
	return issued, nil
}

// Rotate revokes a usable token and issues its replacement with the same name,
// scope and lifetime. Unknown, foreign, revoked and expired tokens are
// ErrNotFound; losing a race with another revoke or rotate is ErrConflict.
func (s *SQLTokenStore) Rotate(ctx context.Context, userID, id string) (issued *IssuedToken, err error) {
	if userID == "" {
		return nil, store.ErrUnauthenticated
	}
	now := s.now().UTC()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rotate token: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var old Token
	err = tx.GetContext(ctx, &old, s.q(`SELECT `+tokenColumns+` FROM api_tokens WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		err = store.ErrNotFound
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if !old.Usable(now) {
		err = store.ErrNotFound
		return nil, err
	}

	res, err := tx.ExecContext(ctx, s.q(`UPDATE api_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`), now, id)
	if err != nil {
		return nil, fmt.Errorf("revoke rotated token: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		err = store.ErrConflict
		return nil, err
	}

	ttl := old.Lifetime()
	if ttl < MinTokenTTL || ttl > MaxTokenTTL {
		ttl = DefaultTokenTTL
	}
	if issued, err = s.insertTx(ctx, tx, userID, old.Name, old.Scope, old.ID, now, now.Add(ttl)); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotate token: %w", err)
	}
	return issued, nil
}

func (s *SQLTokenStore) insertTx(ctx context.Context, tx *sqlx.Tx, userID, name string, scope Scope, rotatedFrom string, now, expires time.Time) (*IssuedToken, error) {
	plaintext, err := newPlaintext()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	tok := &Token{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Hash:        HashToken(plaintext),
		Scope:       scope,
		RotatedFrom: sql.NullString{String: rotatedFrom, Valid: rotatedFrom != ""},
		ExpiresAt:   expires,
		CreatedAt:   now,
	}
	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO api_tokens (id, user_id, name, token_hash, scope, rotated_from, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), tok.ID, tok.UserID, tok.Name, tok.Hash, string(tok.Scope), tok.RotatedFrom, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert api token: %w", err)
	}
	return &IssuedToken{Token: tok, Plaintext: plaintext}, nil
}

// Lookup finds the token for a presented plaintext. Anything that is not one
// of ours is ErrNotFound without touching the database.
func (s *SQLTokenStore) Lookup(ctx context.Context, plaintext string) (*Token, error) {
	if !strings.HasPrefix(plaintext, TokenPrefix) {
		return nil, store.ErrNotFound
	}
	var tok Token
	err := s.db.GetContext(ctx, &tok, s.q(`SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = ?`), HashToken(plaintext))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return &tok, nil
}

// ListActive returns userID's usable tokens, newest first.
func (s *SQLTokenStore) ListActive(ctx context.Context, userID string) ([]*Token, error) {
	tokens := []*Token{}
	err := s.db.SelectContext(ctx, &tokens, s.q(`
		SELECT `+tokenColumns+` FROM api_tokens
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC
	`), userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

// Revoke ends a token owned by userID. Unknown, foreign or already revoked
// tokens are ErrNotFound.
func (s *SQLTokenStore) Revoke(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE api_tokens SET revoked_at = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL
	`), s.now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Touch records a use at `at`, skipping the write when the stored value is
// less than touchInterval old.
func (s *SQLTokenStore) Touch(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE api_tokens SET last_used_at = ?
		WHERE id = ? AND (last_used_at IS NULL OR last_used_at < ?)
	`), at, id, at.Add(-touchInterval))
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

// newPlaintext returns TokenPrefix followed by 32 random bytes, base64url.
func newPlaintext() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 of a plaintext token, the value stored
// and looked up.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
