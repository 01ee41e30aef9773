// SQLite handle storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/biotools/model"
)

// SqliteHandleStore implements HandleStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteHandleStore struct {
	db *sql.DB
}

// OpenSqliteHandleStore opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqliteHandleStore(path string) (*SqliteHandleStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteHandleStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSqliteHandleStoreInMemory creates an in-memory database (useful for testing).
func NewSqliteHandleStoreInMemory() (*SqliteHandleStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	store := &SqliteHandleStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteHandleStore) Close() error {
	return s.db.Close()
}

func (s *SqliteHandleStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS database_handles (
			name TEXT PRIMARY KEY,
			local_path TEXT NOT NULL,
			present INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			last_checked INTEGER NOT NULL,
			downloads INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get returns the handle for name.
func (s *SqliteHandleStore) Get(ctx context.Context, name string) (model.DatabaseHandle, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, local_path, present, state, last_checked, downloads, last_error
		 FROM database_handles WHERE name = ?`, name)

	h, err := scanHandle(row)
	if err == sql.ErrNoRows {
		return model.DatabaseHandle{}, false, nil
	}
	if err != nil {
		return model.DatabaseHandle{}, false, fmt.Errorf("failed to load handle %s: %w", name, err)
	}
	return h, true, nil
}

// Put creates or replaces a handle.
func (s *SqliteHandleStore) Put(ctx context.Context, h model.DatabaseHandle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO database_handles (name, local_path, present, state, last_checked, downloads, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			local_path = excluded.local_path,
			present = excluded.present,
			state = excluded.state,
			last_checked = excluded.last_checked,
			downloads = excluded.downloads,
			last_error = excluded.last_error`,
		h.Name, h.LocalPath, h.Present, string(h.State), h.LastChecked.UnixNano(), h.Downloads, h.LastError)
	if err != nil {
		return fmt.Errorf("failed to store handle %s: %w", h.Name, err)
	}
	return nil
}

// List returns handles whose name starts with prefix, sorted by name.
func (s *SqliteHandleStore) List(ctx context.Context, prefix string) ([]model.DatabaseHandle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, local_path, present, state, last_checked, downloads, last_error
		 FROM database_handles
		 WHERE substr(name, 1, length(?)) = ?
		 ORDER BY name ASC`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query handles: %w", err)
	}
	defer rows.Close()

	handles := []model.DatabaseHandle{} // Start with empty slice, not nil
	for rows.Next() {
		h, err := scanHandle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan handle: %w", err)
		}
		handles = append(handles, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating handles: %w", err)
	}

	return handles, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHandle(row scanner) (model.DatabaseHandle, error) {
	var (
		h           model.DatabaseHandle
		state       string
		lastChecked int64
	)
	if err := row.Scan(&h.Name, &h.LocalPath, &h.Present, &state, &lastChecked, &h.Downloads, &h.LastError); err != nil {
		return model.DatabaseHandle{}, err
	}
	h.State = model.DatabaseState(state)
	h.LastChecked = time.Unix(0, lastChecked)
	return h, nil
}
