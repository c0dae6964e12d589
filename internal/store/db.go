package store

import (
	"errors"
	"fmt"
	"sync"

	"call-relay/internal/observability"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver for sqlx
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS processed_calls (
    call_id         TEXT PRIMARY KEY,
    from_number     TEXT NOT NULL DEFAULT '',
    to_number       TEXT NOT NULL DEFAULT '',
    duration        INTEGER NOT NULL DEFAULT 0,
    event_timestamp TEXT NOT NULL DEFAULT '',
    claimed_at      TEXT NOT NULL DEFAULT '',
    transcript      TEXT NOT NULL DEFAULT '',
    posted          BOOLEAN NOT NULL DEFAULT 0,
    phase           TEXT NOT NULL DEFAULT 'processing'
);
CREATE INDEX IF NOT EXISTS idx_processed_calls_event_timestamp ON processed_calls (event_timestamp);
`

type Store struct {
	db     *sqlx.DB
	logger *observability.Logger

	// claimMu serializes the check-then-claim sequence across goroutines.
	claimMu sync.Mutex
}

// New opens the call database at path and ensures the schema exists.
func New(path string, logger *observability.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open call database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping call database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate call database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// DB returns the underlying database connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
