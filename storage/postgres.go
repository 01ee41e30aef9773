package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/richinex/biotools/model"
)

// PostgresHandleStore implements HandleStore on PostgreSQL, for replicas
// that share one database directory.
type PostgresHandleStore struct {
	db *sql.DB
}

// OpenPostgresHandleStore connects to dsn and creates the handle table
// if needed.
func OpenPostgresHandleStore(ctx context.Context, dsn string) (*PostgresHandleStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	store := &PostgresHandleStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the connection pool.
func (p *PostgresHandleStore) Close() error {
	return p.db.Close()
}

func (p *PostgresHandleStore) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS database_handles (
			name TEXT PRIMARY KEY,
			local_path TEXT NOT NULL,
			present BOOLEAN NOT NULL DEFAULT FALSE,
			state TEXT NOT NULL,
			last_checked TIMESTAMPTZ NOT NULL,
			downloads INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		)`)
	return err
}

// Get returns the handle for name.
func (p *PostgresHandleStore) Get(ctx context.Context, name string) (model.DatabaseHandle, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT name, local_path, present, state, last_checked, downloads, last_error
		 FROM database_handles WHERE name = $1`, name)

	h, err := scanPostgresHandle(row)
	if err == sql.ErrNoRows {
		return model.DatabaseHandle{}, false, nil
	}
	if err != nil {
		return model.DatabaseHandle{}, false, fmt.Errorf("failed to load handle %s: %w", name, err)
	}
	return h, true, nil
}

// Put creates or replaces a handle.
func (p *PostgresHandleStore) Put(ctx context.Context, h model.DatabaseHandle) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO database_handles (name, local_path, present, state, last_checked, downloads, last_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (name) DO UPDATE SET
			local_path = EXCLUDED.local_path,
			present = EXCLUDED.present,
			state = EXCLUDED.state,
			last_checked = EXCLUDED.last_checked,
			downloads = EXCLUDED.downloads,
			last_error = EXCLUDED.last_error`,
		h.Name, h.LocalPath, h.Present, string(h.State), h.LastChecked.UTC(), h.Downloads, h.LastError)
	if err != nil {
		return fmt.Errorf("failed to store handle %s: %w", h.Name, err)
	}
	return nil
}

// List returns handles whose name starts with prefix, sorted by name.
func (p *PostgresHandleStore) List(ctx context.Context, prefix string) ([]model.DatabaseHandle, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name, local_path, present, state, last_checked, downloads, last_error
		 FROM database_handles
		 WHERE starts_with(name, $1)
		 ORDER BY name COLLATE "C" ASC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query handles: %w", err)
	}
	defer rows.Close()

	handles := []model.DatabaseHandle{}
	for rows.Next() {
		h, err := scanPostgresHandle(rows)
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

func scanPostgresHandle(row scanner) (model.DatabaseHandle, error) {
	var (
		h           model.DatabaseHandle
		state       string
		lastChecked time.Time
	)
	if err := row.Scan(&h.Name, &h.LocalPath, &h.Present, &state, &lastChecked, &h.Downloads, &h.LastError); err != nil {
		return model.DatabaseHandle{}, err
	}
	h.State = model.DatabaseState(state)
	h.LastChecked = lastChecked
	return h, nil
}
