package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/durability-labs/ultra-data-burning-rom/internal/database/migrations"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// sqliteBackend stores one row per record in the entities table.
type sqliteBackend struct {
	db *sql.DB
}

// NewSQLiteStore creates a Store backed by the SQLite database at path and
// migrates its schema. path can be ":memory:".
func NewSQLiteStore(path string, capacity int, logger rom.Logger) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}
	return newStore(&sqliteBackend{db: db}, capacity, logger), nil
}

// OpenConnection opens and configures a SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database; the store
	// serializes access anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (b *sqliteBackend) read(kind, id string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow("SELECT data FROM entities WHERE kind = ? AND id = ?", kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errMissing
	}
	return data, err
}

func (b *sqliteBackend) write(kind, id string, data []byte) error {
	_, err := b.db.Exec(`
		INSERT INTO entities (kind, id, data, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		kind, id, data)
	return err
}

func (b *sqliteBackend) remove(kind, id string) error {
	res, err := b.db.Exec("DELETE FROM entities WHERE kind = ? AND id = ?", kind, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errMissing
	}
	return nil
}

func (b *sqliteBackend) list(kind string) ([]string, error) {
	rows, err := b.db.Query("SELECT id FROM entities WHERE kind = ? ORDER BY id", kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}
