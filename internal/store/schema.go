// Package store implements the Conversation/Request Store (spec §4.5): a
// single SQLite file, WAL-journaled, holding conversations, messages, and
// requests. Grounded on the teacher's CockroachStore (internal/jobs/cockroach.go)
// for the ExecContext/QueryRowContext/scan-row shape, adapted from Postgres
// placeholders ($1, $2, ...) to SQLite's (?, ?, ...) and from lib/pq to
// mattn/go-sqlite3, since the spec requires an embedded file, not a server.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT,
	metadata_json TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL CHECK (role IN ('system','user','assistant','tool')),
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	seq INTEGER NOT NULL,
	request_id INTEGER REFERENCES requests(id),
	UNIQUE(conversation_id, seq)
);

CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	message_id INTEGER NOT NULL REFERENCES messages(id),
	model TEXT NOT NULL,
	params_json TEXT,
	input_hash TEXT NOT NULL,
	provider_response_id TEXT,
	status TEXT NOT NULL CHECK (status IN ('queued','in_progress','completed','failed','cancelled','expired')),
	error_json TEXT,
	tries INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME,
	completed_at DATETIME,
	output_text TEXT,
	raw_json TEXT,
	usage_json TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(conversation_id, input_hash)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);
CREATE INDEX IF NOT EXISTS idx_requests_conversation_status ON requests(conversation_id, status);
CREATE INDEX IF NOT EXISTS idx_requests_provider_response_id ON requests(provider_response_id);
`

// Store wraps the database handle. All exported methods are safe for
// concurrent use from multiple goroutines.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path, enables WAL
// journaling and foreign keys, and applies the fixed schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows only one writer at a time; a single connection avoids
	// "database is locked" errors under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
