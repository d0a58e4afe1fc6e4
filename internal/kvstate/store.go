// Package kvstate provides a namespaced key-value store backed by SQLite,
// used for rule-engine resume state (IngestStates cooldown/reset timestamps)
// and for persisted admin presets. NewStore accepts an already-opened
// *sql.DB so production code can wire github.com/mattn/go-sqlite3 while
// tests wire modernc.org/sqlite.
package kvstate

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a namespaced key-value store. All public methods are safe for
// concurrent use; SQLite serializes writes at the driver level.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-opened database connection, creating the
// schema on first use. Callers own the connection's lifetime.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate kvstate: %w", err)
	}
	return s, nil
}

// OpenFile opens a SQLite database file using the mattn/go-sqlite3 driver
// and wraps it in a Store. This is the production entry point; tests use
// NewStore directly against a modernc-backed in-memory *sql.DB instead.
func OpenFile(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open kvstate database: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_state (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		);
	`)
	return err
}

// Get returns the stored value for a namespace/key pair, and false if no
// such entry exists.
func (s *Store) Get(namespace, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM kv_state WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// Set upserts a namespace/key/value triple, refreshing updated_at.
func (s *Store) Set(namespace, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv_state (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes a namespace/key entry. A missing key is not an error.
func (s *Store) Delete(namespace, key string) error {
	_, err := s.db.Exec(
		`DELETE FROM kv_state WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// DeleteNamespace removes every entry under a namespace.
func (s *Store) DeleteNamespace(namespace string) error {
	_, err := s.db.Exec(`DELETE FROM kv_state WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return nil
}

// List returns every key/value pair under a namespace as a map; the map
// carries no key order.
func (s *Store) List(namespace string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM kv_state WHERE namespace = ? ORDER BY key`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		result[k] = v
	}
	return result, rows.Err()
}

// ListNamespaces returns the distinct set of namespaces with at least one
// entry, ordered lexically. Used by admin.ingestStates.presets.list-style
// commands that enumerate everything under a namespace prefix.
func (s *Store) ListNamespaces() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT namespace FROM kv_state ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}
