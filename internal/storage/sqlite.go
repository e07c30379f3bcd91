package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the durable Store backed by a single sqlite database file.
type SQLite struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*SQLite, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLite{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// migrate runs database migrations
func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS records (
			tbl TEXT NOT NULL,
			key TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (tbl, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_tbl ON records(tbl);`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, table, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM records WHERE tbl = ? AND key = ?", table, key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, table, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (tbl, key, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tbl, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		table, key, data, time.Now().UTC(),
	)
	return err
}

// ListAll implements Store.
func (s *SQLite) ListAll(ctx context.Context, table string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, data, updated_at FROM records WHERE tbl = ? ORDER BY key", table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Data, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
