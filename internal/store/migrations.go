package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id                     UUID PRIMARY KEY,
		user_id                TEXT NOT NULL,
		class                  TEXT NOT NULL CHECK (class IN ('deep', 'short', 'relationship')),
		summary                TEXT NOT NULL,
		topics                 TEXT[] NOT NULL DEFAULT '{}',
		importance_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
		origin_conversation_id TEXT NOT NULL DEFAULT '',
		origin_message_id      TEXT NOT NULL DEFAULT '',
		created_at             TIMESTAMPTZ NOT NULL,
		updated_at             TIMESTAMPTZ NOT NULL,
		last_referenced_at     TIMESTAMPTZ NOT NULL,
		reference_count        INTEGER NOT NULL DEFAULT 0,
		deleted                BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at             TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_user_recent
		ON memories (user_id, last_referenced_at DESC, id) WHERE NOT deleted`,
	`CREATE INDEX IF NOT EXISTS idx_memories_topics ON memories USING GIN (topics)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_deleted_at ON memories (deleted_at) WHERE deleted`,
}

// MigratePostgres applies the schema. Every statement is idempotent.
func MigratePostgres(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range postgresMigrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id                     TEXT PRIMARY KEY,
		user_id                TEXT NOT NULL,
		class                  TEXT NOT NULL CHECK (class IN ('deep', 'short', 'relationship')),
		summary                TEXT NOT NULL,
		topics                 TEXT NOT NULL DEFAULT '[]',
		importance_score       REAL NOT NULL DEFAULT 0,
		origin_conversation_id TEXT NOT NULL DEFAULT '',
		origin_message_id      TEXT NOT NULL DEFAULT '',
		created_at             INTEGER NOT NULL,
		updated_at             INTEGER NOT NULL,
		last_referenced_at     INTEGER NOT NULL,
		reference_count        INTEGER NOT NULL DEFAULT 0,
		deleted                INTEGER NOT NULL DEFAULT 0,
		deleted_at             INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_user_recent ON memories (user_id, deleted, last_referenced_at DESC, id)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_deleted_at ON memories (deleted, deleted_at)`,
}
