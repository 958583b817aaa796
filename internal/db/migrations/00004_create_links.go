package migrations

// links.metadata is JSONB on PostgreSQL, JSON on MySQL and TEXT on SQLite.
// The (owner_id, position) unique index backs the contiguous ordering: the
// store renumbers in two phases so it is never violated mid-transaction.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateLinks, downCreateLinks)
}

func upCreateLinks(ctx context.Context, tx *sql.Tx) error {
	metadataType := "TEXT"
	switch dialect {
	case "postgres":
		metadataType = "JSONB"
	case "mysql":
		metadataType = "JSON"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE links (
    id         VARCHAR(36)   PRIMARY KEY,
    owner_id   VARCHAR(36)   NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    title      VARCHAR(100)  NOT NULL,
    url        VARCHAR(2048) NOT NULL,
    icon       VARCHAR(64)   NULL,
    position   INTEGER       NOT NULL,
    is_active  BOOLEAN       NOT NULL DEFAULT TRUE,
    metadata   %s            NULL,
    version    BIGINT        NOT NULL DEFAULT 1,
    created_at TIMESTAMP     NOT NULL,
    updated_at TIMESTAMP     NOT NULL
)`, metadataType),
		`CREATE UNIQUE INDEX idx_links_owner_position ON links (owner_id, position)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create links table: %w", err)
		}
	}
	return nil
}

func downCreateLinks(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS links`)
	return err
}
