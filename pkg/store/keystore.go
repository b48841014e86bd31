// Package store persists client key material for keyplanectl in a local
// SQLite database. Generated proof-of-possession keys are saved by key id
// so a token bound to a key survives process restarts.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keyplane/keyplane/pkg/jose"
)

// ErrKeyNotFound is returned when no key exists under the requested id.
var ErrKeyNotFound = errors.New("store: key not found")

// KeyInfo describes a stored key without exposing its material.
type KeyInfo struct {
	Kid       string
	Bits      int
	CreatedAt time.Time
}

// KeyStore is a SQLite-backed store for private JWKs. It is safe for
// concurrent use within one process; SQLite's own locking covers
// concurrent processes.
type KeyStore struct {
	db *sql.DB
}

// DefaultPath returns the store location under the user config directory,
// falling back to the system temp dir when none can be resolved.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "keyplane", "keys.db")
}

// Open opens or creates the key store at path, creating parent
// directories as needed.
func Open(path string) (*KeyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS keys (
			kid        TEXT PRIMARY KEY,
			jwk        TEXT NOT NULL,
			bits       INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &KeyStore{db: db}, nil
}

// Close releases the database handle.
func (s *KeyStore) Close() error {
	return s.db.Close()
}

// Save stores a private key under its key id, replacing any existing
// entry. Public-only keys are rejected; there is nothing worth persisting.
func (s *KeyStore) Save(key *jose.RsaKey) error {
	if key == nil || !key.IsPrivate() {
		return fmt.Errorf("%w: only private keys are stored", jose.ErrInvalidArgument)
	}
	jwk, err := key.ToJWK(true)
	if err != nil {
		return fmt.Errorf("store: export key: %w", err)
	}
	data, err := jwk.Marshal()
	if err != nil {
		return fmt.Errorf("store: marshal key: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO keys (kid, jwk, bits, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(kid) DO UPDATE SET jwk = excluded.jwk, bits = excluded.bits`,
		key.Kid(), string(data), key.Bits(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save key %q: %w", key.Kid(), err)
	}
	return nil
}

// Get loads the private key stored under kid.
func (s *KeyStore) Get(kid string) (*jose.RsaKey, error) {
	var raw string
	err := s.db.QueryRow(`SELECT jwk FROM keys WHERE kid = ?`, kid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load key %q: %w", kid, err)
	}

	jwk, err := jose.ParseJWK([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("store: key %q: %w", kid, err)
	}
	return jose.RsaKeyFromJWK(jwk)
}

// List returns metadata for every stored key, newest first.
func (s *KeyStore) List() ([]KeyInfo, error) {
	rows, err := s.db.Query(`SELECT kid, bits, created_at FROM keys ORDER BY created_at DESC, kid`)
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var info KeyInfo
		if err := rows.Scan(&info.Kid, &info.Bits, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan key row: %w", err)
		}
		keys = append(keys, info)
	}
	return keys, rows.Err()
}

// Delete removes the key stored under kid.
func (s *KeyStore) Delete(kid string) error {
	res, err := s.db.Exec(`DELETE FROM keys WHERE kid = ?`, kid)
	if err != nil {
		return fmt.Errorf("store: delete key %q: %w", kid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}
	return nil
}
