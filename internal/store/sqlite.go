// ABOUTME: SQLite implementation of the audit store using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists authorization events in SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ AuditStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// busy_timeout is per connection, so it goes in the DSN to reach every
	// pooled connection; concurrent appends wait on the writer lock.
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS auth_events (
			event_id    TEXT PRIMARY KEY,
			route       TEXT NOT NULL,
			scheme      TEXT NOT NULL,
			user_label  TEXT NOT NULL DEFAULT '',
			outcome     TEXT NOT NULL,
			error_kind  TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			remote_addr TEXT NOT NULL DEFAULT '',
			ts          TEXT NOT NULL,

			CHECK (outcome IN ('verified', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_auth_events_ts ON auth_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_auth_events_route ON auth_events(route, ts DESC);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}
