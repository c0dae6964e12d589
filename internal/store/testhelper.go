package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"call-relay/internal/observability"

	"github.com/jmoiron/sqlx"
)

// TestDB wraps a temporary on-disk database for tests
type TestDB struct {
	db     *sqlx.DB
	logger *observability.Logger
	Store  *Store
}

// SetupTestDB creates a fresh call database under t.TempDir
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	logger := observability.NewLogger()
	path := filepath.Join(t.TempDir(), "calls_test.db")

	st, err := New(path, logger)
	if err != nil {
		t.Fatalf("failed to setup test database: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})

	return &TestDB{
		db:     st.db,
		logger: logger,
		Store:  st,
	}
}

// GetDB returns the underlying sqlx.DB for direct access if needed
func (tdb *TestDB) GetDB() *sqlx.DB {
	return tdb.db
}

// ExecSQL executes raw SQL for test setup
func (tdb *TestDB) ExecSQL(t *testing.T, query string, args ...interface{}) sql.Result {
	t.Helper()
	result, err := tdb.db.Exec(query, args...)
	if err != nil {
		t.Fatalf("failed to execute SQL: %v", err)
	}
	return result
}

// MustExec executes SQL and fails the test if there's an error
func (tdb *TestDB) MustExec(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	_, err := tdb.db.Exec(query, args...)
	if err != nil {
		t.Fatalf("failed to execute SQL: %v", err)
	}
}

// WithContext returns a context for testing
func (tdb *TestDB) WithContext() context.Context {
	return context.Background()
}
