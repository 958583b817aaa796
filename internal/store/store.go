package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a requested entity does not exist or is not
	// owned by the caller. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated is returned when an operation is called without an owner identity.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrConflict is returned when a link collection changed between read and
	// write (stale version stamp or a concurrent position assignment).
	ErrConflict = errors.New("link collection changed concurrently; reload and retry")

	// ErrValidation is the sentinel every *ValidationError unwraps to.
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a storage-layer failure that matches none of the typed
// errors above. Callers should treat it as opaque.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// wrapErr normalises a database error for op. Typed store errors pass through,
// sql.ErrNoRows becomes ErrNotFound and everything else becomes a *StoreError.
func wrapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrValidation), errors.Is(err, ErrUnauthenticated):
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// LinkStoreIface exposes all link collection operations.
// Handlers never query the links table directly.
type LinkStoreIface interface {
	Create(ctx context.Context, ownerID string, in LinkInput) (*Link, error)
	Get(ctx context.Context, ownerID, id string) (*Link, error)
	Update(ctx context.Context, ownerID, id string, p LinkPatch) (*Link, error)
	Delete(ctx context.Context, ownerID, id string) error
	ToggleActive(ctx context.Context, ownerID, id string) (*Link, error)
	Reorder(ctx context.Context, ownerID string, ids []string) error
	ReorderStamped(ctx context.Context, ownerID string, order []LinkStamp) error
	List(ctx context.Context, ownerID string) ([]*Link, error)
	ListPublic(ctx context.Context, username string) (*PublicPage, error)
}

// ProfileResolver maps a public username to its profile.
type ProfileResolver interface {
	GetByUsername(ctx context.Context, username string) (*Profile, error)
}

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isUniqueConstraintError checks whether err indicates a unique constraint violation.
// PostgreSQL and MySQL are matched on their error codes, SQLite on its message.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgerrcode.UniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
