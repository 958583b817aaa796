package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ClickEvent is one visit to a link through the public redirect.
type ClickEvent struct {
	LinkID    string
	IPHash    string // see HashIP
	UserAgent string
	Referrer  string
}

type ClickStore struct {
	db *sqlx.DB
}

func NewClickStore(db *sqlx.DB) *ClickStore {
	return &ClickStore{db: db}
}

func (s *ClickStore) q(query string) string { return s.db.Rebind(query) }

const maxUserAgentLen = 512

// RecordClick inserts a click row. user_agent is cut to 512 bytes, referrer to
// 2048, never inside a UTF-8 sequence.
func (s *ClickStore) RecordClick(ctx context.Context, e ClickEvent) error {
	ua := truncateUTF8(e.UserAgent, maxUserAgentLen)
	ref := truncateUTF8(e.Referrer, MaxURLLen)

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO link_clicks (id, link_id, ip_hash, user_agent, referrer, clicked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), uuid.New().String(), e.LinkID, e.IPHash, ua, ref, time.Now().UTC())
	return wrapErr("record click", err)
}

// truncateUTF8 returns at most max bytes of s, backing off to a rune start.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}

// CountsByOwner returns total clicks per link id for ownerID's links.
// Links that were never clicked are absent from the map.
func (s *ClickStore) CountsByOwner(ctx context.Context, ownerID string) (map[string]int64, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	var rows []struct {
		LinkID string `db:"link_id"`
		Clicks int64  `db:"clicks"`
	}
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT c.link_id AS link_id, COUNT(*) AS clicks
		FROM link_clicks c
		JOIN links l ON l.id = c.link_id
		WHERE l.owner_id = ?
		GROUP BY c.link_id
	`), ownerID)
	if err != nil {
		return nil, wrapErr("count clicks", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.LinkID] = r.Clicks
	}
	return counts, nil
}

// PurgeBefore deletes clicks recorded before cutoff and reports how many went.
func (s *ClickStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM link_clicks WHERE clicked_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, wrapErr("purge clicks", err)
	}
	n, err := res.RowsAffected()
	return n, wrapErr("purge clicks", err)
}

// HashIP computes SHA-256(ip + ":" + YYYYMMDD_UTC) so visitors are only
// distinguishable within a single day.
func HashIP(ip string) string {
	salt := time.Now().UTC().Format("20060102")
	h := sha256.Sum256([]byte(ip + ":" + salt))
	return fmt.Sprintf("%x", h)
}
