// Package store provides the sqlite persistence consumed by the ledger,
// the virtual file tree, and conversation history.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store wraps the sqlite database handle shared by the sub-stores.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the sqlite database and applies the schema.
// Pass ":memory:" for an ephemeral database in tests.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL improves concurrent reader behavior; a single writer connection
	// keeps sqlite's locking out of the picture for conditional updates.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Store initialized")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS credit_accounts (
			id         TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			suspended  INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS usage_records (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES credit_accounts(id),
			cost       INTEGER NOT NULL,
			reason     TEXT NOT NULL,
			metadata   TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_usage_account ON usage_records(account_id);

		CREATE TABLE IF NOT EXISTS virtual_nodes (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			parent_id  TEXT,
			kind       TEXT NOT NULL,
			name       TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_project ON virtual_nodes(project_id);
		CREATE INDEX IF NOT EXISTS idx_nodes_parent ON virtual_nodes(parent_id);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
