package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/joestump/bio-links/internal/metrics"
)

// Link represents a row in the links table.
type Link struct {
	ID        string         `db:"id"`
	OwnerID   string         `db:"owner_id"`
	Title     string         `db:"title"`
	URL       string         `db:"url"`
	Icon      sql.NullString `db:"icon"`
	Position  int            `db:"position"`
	IsActive  bool           `db:"is_active"`
	Metadata  types.JSONText `db:"metadata"`
	Version   int64          `db:"version"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// IconName returns the icon identifier, or "" when the link has none.
func (l *Link) IconName() string {
	if !l.Icon.Valid {
		return ""
	}
	return l.Icon.String
}

// LinkInput carries the fields accepted when creating a link.
// IsActive defaults to true when nil.
type LinkInput struct {
	Title    string
	URL      string
	Icon     *string
	IsActive *bool
	Metadata json.RawMessage
}

// LinkPatch carries a partial update. Nil fields are left unchanged; an empty
// Icon clears it and a JSON null Metadata clears it. Position moves the link
// within the owner's sequence and renumbers its neighbours.
type LinkPatch struct {
	Title    *string
	URL      *string
	Icon     *string
	IsActive *bool
	Position *int
	Metadata json.RawMessage
}

// LinkStamp pairs a link id with the version the caller last read.
type LinkStamp struct {
	ID      string
	Version int64
}

// PublicPage is the public read model for a username: profile display fields
// and the owner's active links in position order.
type PublicPage struct {
	Profile *Profile
	Links   []*Link
}

// LinkStore is the sqlx-backed implementation of LinkStoreIface.
// Every query is scoped by owner_id; the store keeps no state between calls.
type LinkStore struct {
	db       *sqlx.DB
	profiles ProfileResolver
}

func NewLinkStore(db *sqlx.DB, profiles ProfileResolver) *LinkStore {
	return &LinkStore{db: db, profiles: profiles}
}

// q rebinds ? placeholders to the driver's native format ($1,$2,... for PostgreSQL).
func (s *LinkStore) q(query string) string { return s.db.Rebind(query) }

// Create validates in and appends a new link at the end of the owner's sequence.
// A concurrent create that claims the same position fails with ErrConflict.
func (s *LinkStore) Create(ctx context.Context, ownerID string, in LinkInput) (link *Link, err error) {
	defer func() { observe("create", err) }()
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	title, err := ValidateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	u, err := ValidateURL("url", in.URL)
	if err != nil {
		return nil, err
	}
	icon, err := ValidateIcon(in.Icon)
	if err != nil {
		return nil, err
	}
	meta, err := validateMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("create link", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.GetContext(ctx, &next, s.q(`SELECT COALESCE(MAX(position), -1) + 1 FROM links WHERE owner_id = ?`), ownerID)
	if err != nil {
		return nil, wrapErr("create link", err)
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO links (id, owner_id, title, url, icon, position, is_active, metadata, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`), id, ownerID, title, u, icon, next, active, meta, now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrConflict
		}
		return nil, wrapErr("create link", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("create link", err)
	}
	return s.Get(ctx, ownerID, id)
}

// Get returns the link with id owned by ownerID, or ErrNotFound.
func (s *LinkStore) Get(ctx context.Context, ownerID, id string) (*Link, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	var l Link
	err := s.db.GetContext(ctx, &l, s.q(`SELECT * FROM links WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return nil, wrapErr("get link", err)
	}
	return &l, nil
}

// List returns all of ownerID's links ordered by position.
func (s *LinkStore) List(ctx context.Context, ownerID string) ([]*Link, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	links, err := s.listTx(ctx, s.db, ownerID)
	if err != nil {
		return nil, wrapErr("list links", err)
	}
	return links, nil
}

// ListPublic resolves username and returns its profile with only the active
// links, ordered by position. This is the one read without an ownership check.
func (s *LinkStore) ListPublic(ctx context.Context, username string) (*PublicPage, error) {
	profile, err := s.profiles.GetByUsername(ctx, username)
	if err != nil {
		return nil, wrapErr("resolve username", err)
	}

	links := []*Link{}
	err = s.db.SelectContext(ctx, &links, s.q(`
		SELECT * FROM links WHERE owner_id = ? AND is_active = ? ORDER BY position ASC
	`), profile.UserID, true)
	if err != nil {
		return nil, wrapErr("list public links", err)
	}
	return &PublicPage{Profile: profile, Links: links}, nil
}

// Update applies p to the link and returns the updated row. Changed fields are
// re-validated with the same rules as Create.
func (s *LinkStore) Update(ctx context.Context, ownerID, id string, p LinkPatch) (link *Link, err error) {
	defer func() { observe("update", err) }()
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("update link", err)
	}
	defer tx.Rollback()

	var cur Link
	err = tx.GetContext(ctx, &cur, s.q(`SELECT * FROM links WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return nil, wrapErr("update link", err)
	}

	title := cur.Title
	if p.Title != nil {
		if title, err = ValidateTitle(*p.Title); err != nil {
			return nil, err
		}
	}
	u := cur.URL
	if p.URL != nil {
		if u, err = ValidateURL("url", *p.URL); err != nil {
			return nil, err
		}
	}
	var icon *string
	if cur.Icon.Valid {
		icon = &cur.Icon.String
	}
	if p.Icon != nil {
		if icon, err = ValidateIcon(p.Icon); err != nil {
			return nil, err
		}
	}
	active := cur.IsActive
	if p.IsActive != nil {
		active = *p.IsActive
	}
	meta := metadataArg(cur.Metadata)
	if p.Metadata != nil {
		if meta, err = validateMetadata(p.Metadata); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE links SET title = ?, url = ?, icon = ?, is_active = ?, metadata = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND owner_id = ? AND version = ?
	`), title, u, icon, active, meta, now, id, ownerID, cur.Version)
	if err := expectOneRow(res, err); err != nil {
		return nil, wrapErr("update link", err)
	}

	if p.Position != nil && *p.Position != cur.Position {
		if err := s.moveTx(ctx, tx, ownerID, id, *p.Position, now); err != nil {
			return nil, wrapErr("move link", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("update link", err)
	}
	return s.Get(ctx, ownerID, id)
}

// ToggleActive flips is_active and returns the updated link.
func (s *LinkStore) ToggleActive(ctx context.Context, ownerID, id string) (link *Link, err error) {
	defer func() { observe("toggle", err) }()
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE links SET is_active = NOT is_active, version = version + 1, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`), time.Now().UTC(), id, ownerID)
	if err := expectOneRow(res, err); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrNotFound
		}
		return nil, wrapErr("toggle link", err)
	}
	return s.Get(ctx, ownerID, id)
}

// Delete removes the link and closes the gap it leaves: every later link of
// the same owner moves up by one, in the same transaction.
func (s *LinkStore) Delete(ctx context.Context, ownerID, id string) (err error) {
	defer func() { observe("delete", err) }()
	if ownerID == "" {
		return ErrUnauthenticated
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("delete link", err)
	}
	defer tx.Rollback()

	var removed int
	err = tx.GetContext(ctx, &removed, s.q(`SELECT position FROM links WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return wrapErr("delete link", err)
	}

	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM links WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err := expectOneRow(res, err); err != nil {
		return wrapErr("delete link", err)
	}

	// Two phases so the (owner_id, position) index never sees a duplicate:
	// park the tail at negated positions, then bring it back shifted by one.
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, s.q(`
		UPDATE links SET position = -position, version = version + 1, updated_at = ?
		WHERE owner_id = ? AND position > ?
	`), now, ownerID, removed)
	if err != nil {
		return wrapErr("compact positions", err)
	}
	_, err = tx.ExecContext(ctx, s.q(`
		UPDATE links SET position = -position - 1 WHERE owner_id = ? AND position < 0
	`), ownerID)
	if err != nil {
		return wrapErr("compact positions", err)
	}

	return wrapErr("delete link", tx.Commit())
}

// Reorder sets each link's position to its index in ids. ids must be exactly
// the owner's current link ids, each once; otherwise a *ValidationError is
// returned and nothing changes. The renumbering is one transaction, and a row
// modified concurrently aborts it with ErrConflict. Re-applying an order that
// is already in place touches no rows.
func (s *LinkStore) Reorder(ctx context.Context, ownerID string, ids []string) (err error) {
	defer func() { observe("reorder", err) }()
	order := make([]LinkStamp, len(ids))
	for i, id := range ids {
		order[i] = LinkStamp{ID: id}
	}
	return s.reorder(ctx, ownerID, order, false)
}

// ReorderStamped is Reorder with optimistic concurrency against the caller's
// read: if any link's stored version differs from its stamp the call fails
// with ErrConflict and nothing changes.
func (s *LinkStore) ReorderStamped(ctx context.Context, ownerID string, order []LinkStamp) (err error) {
	defer func() { observe("reorder", err) }()
	return s.reorder(ctx, ownerID, order, true)
}

func (s *LinkStore) reorder(ctx context.Context, ownerID string, order []LinkStamp, checkVersions bool) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("reorder links", err)
	}
	defer tx.Rollback()

	current, err := s.listTx(ctx, tx, ownerID)
	if err != nil {
		return wrapErr("reorder links", err)
	}

	ids := make([]string, len(order))
	for i, st := range order {
		ids[i] = st.ID
	}
	if err := validateOrder(current, ids); err != nil {
		return err
	}

	if checkVersions {
		versions := make(map[string]int64, len(current))
		for _, l := range current {
			versions[l.ID] = l.Version
		}
		for _, st := range order {
			if versions[st.ID] != st.Version {
				return ErrConflict
			}
		}
	}

	if err := s.applyOrderTx(ctx, tx, ownerID, current, ids, time.Now().UTC()); err != nil {
		return wrapErr("reorder links", err)
	}
	return wrapErr("reorder links", tx.Commit())
}

// moveTx re-inserts id at target (clamped to the sequence bounds) and renumbers
// the owner's links around it.
func (s *LinkStore) moveTx(ctx context.Context, tx *sqlx.Tx, ownerID, id string, target int, now time.Time) error {
	current, err := s.listTx(ctx, tx, ownerID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(current))
	for _, l := range current {
		if l.ID != id {
			ids = append(ids, l.ID)
		}
	}
	target = max(0, min(target, len(ids)))
	ids = slices.Insert(ids, target, id)
	return s.applyOrderTx(ctx, tx, ownerID, current, ids, now)
}

// applyOrderTx writes position = index for every link in ids whose position
// differs. Moved rows are first parked at -(index+1) so the unique index on
// (owner_id, position) holds after every statement. Each park is guarded by
// the version read in this transaction.
func (s *LinkStore) applyOrderTx(ctx context.Context, tx *sqlx.Tx, ownerID string, current []*Link, ids []string, now time.Time) error {
	byID := make(map[string]*Link, len(current))
	for _, l := range current {
		byID[l.ID] = l
	}

	type move struct {
		link   *Link
		target int
	}
	var moves []move
	for i, id := range ids {
		if l := byID[id]; l.Position != i {
			moves = append(moves, move{link: l, target: i})
		}
	}

	for _, m := range moves {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE links SET position = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND owner_id = ? AND version = ?
		`), -(m.target + 1), now, m.link.ID, ownerID, m.link.Version)
		if err := expectOneRow(res, err); err != nil {
			return err
		}
	}
	for _, m := range moves {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE links SET position = ? WHERE id = ? AND owner_id = ? AND position = ?
		`), m.target, m.link.ID, ownerID, -(m.target + 1))
		if err := expectOneRow(res, err); err != nil {
			return err
		}
	}
	return nil
}

func (s *LinkStore) listTx(ctx context.Context, q sqlx.QueryerContext, ownerID string) ([]*Link, error) {
	links := []*Link{}
	err := sqlx.SelectContext(ctx, q, &links, s.q(`SELECT * FROM links WHERE owner_id = ? ORDER BY position ASC`), ownerID)
	if err != nil {
		return nil, err
	}
	return links, nil
}

// validateOrder checks that ids is a permutation of the ids in current.
func validateOrder(current []*Link, ids []string) error {
	owned := make(map[string]bool, len(current))
	for _, l := range current {
		owned[l.ID] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !owned[id] {
			return invalid("ids", "unknown link id %q", id)
		}
		if seen[id] {
			return invalid("ids", "link id %q appears more than once", id)
		}
		seen[id] = true
	}
	if len(seen) != len(owned) {
		return invalid("ids", "order must list all %d links, got %d", len(owned), len(seen))
	}
	return nil
}

// expectOneRow turns a zero-row update into ErrConflict: the row either
// vanished or its version moved on since it was read.
func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// validateMetadata accepts an absent/null value or a JSON object and returns
// the driver argument to store.
func validateMetadata(raw json.RawMessage) (any, error) {
	j := types.JSONText(raw)
	if len(j) == 0 || string(j) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := j.Unmarshal(&m); err != nil {
		return nil, invalid("metadata", "metadata must be a JSON object")
	}
	return j.String(), nil
}

func metadataArg(j types.JSONText) any {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	return j.String()
}

// observe counts a mutation by operation and outcome.
func observe(op string, err error) {
	metrics.LinkOperationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}
