// Package sqlite is the single-node storage backend. One connection serializes
// every statement, which is what makes the job claim race-free here.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var dialect = goqu.Dialect("sqlite3")

var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	// in-memory databases vanish with their connection
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applySchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL,
    chat_id INTEGER NOT NULL,
    chat_type TEXT NOT NULL,
    chat_title TEXT,
    chat_username TEXT,
    from_id INTEGER,
    from_is_bot INTEGER,
    from_first_name TEXT,
    from_last_name TEXT,
    from_username TEXT,
    text TEXT,
    date INTEGER NOT NULL,
    raw JSON
)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_bot_date ON messages (chat_id, from_is_bot, date)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_from_date ON messages (chat_id, from_id, date)`,
	`CREATE TABLE IF NOT EXISTS heresy_cache (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    response TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_heresy_cache_chat_user ON heresy_cache (chat_id, user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS llm_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    chat_id INTEGER NOT NULL,
    request_message_id INTEGER NOT NULL,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    available_at INTEGER NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_jobs_status_available_created ON llm_jobs (status, available_at, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_jobs_chat_status_created ON llm_jobs (chat_id, status, created_at, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_llm_jobs_chat_processing ON llm_jobs (chat_id) WHERE status = 'processing'`,
}
