// Package store is a generic keyed document store over modernc.org/sqlite,
// one database file per role (server, or one per agent) and one table per
// logical collection within that file. Values round-trip through the
// standard encoding/json codec: Put marshals any value with json.Marshal
// and Get unmarshals into the caller's target; there is no pluggable codec.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a single sqlite-backed database file holding any number of
// logical tables, each created lazily on first use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Table is a typed view over one logical collection (`table` name) within a
// Store. Every value is JSON-encoded into a BLOB column; callers that need a
// custom encoding marshal before Put and unmarshal after Get themselves.
type Table struct {
	store *Store
	name  string
}

// Table returns (creating if absent) the named table within s.
func (s *Store) Table(ctx context.Context, name string) (*Table, error) {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	)`, name)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("creating table %s: %w", name, err)
	}
	return &Table{store: s, name: name}, nil
}

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = fmt.Errorf("key not found")

// Put encodes value as JSON and writes it under key, autocommitting
// per-statement (no cross-key transactions).
func (t *Table) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for key %s: %w", key, err)
	}
	q := fmt.Sprintf(`INSERT INTO %q (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, t.name)
	if _, err := t.store.db.ExecContext(ctx, q, key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("writing key %s into %s: %w", key, t.name, err)
	}
	return nil
}

// Get decodes the value stored under key into out. Returns ErrNotFound if
// key is absent, or a decode error if the stored bytes are corrupt.
func (t *Table) Get(ctx context.Context, key string, out any) error {
	q := fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, t.name)
	row := t.store.db.QueryRowContext(ctx, q, key)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("reading key %s from %s: %w", key, t.name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding key %s from %s: %w", key, t.name, err)
	}
	return nil
}

// Delete removes key; absent keys are a silent no-op.
func (t *Table) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, t.name)
	if _, err := t.store.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("deleting key %s from %s: %w", key, t.name, err)
	}
	return nil
}

// Iter invokes fn for every (key, raw JSON value) pair in the table.
// Iteration order is not guaranteed. fn returning an error stops iteration
// and the error propagates.
func (t *Table) Iter(ctx context.Context, fn func(key string, raw json.RawMessage) error) error {
	q := fmt.Sprintf(`SELECT key, value FROM %q`, t.name)
	rows, err := t.store.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("iterating %s: %w", t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return fmt.Errorf("scanning row in %s: %w", t.name, err)
		}
		if err := fn(key, json.RawMessage(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}
