package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// KeyPrefix marks keys issued by this service.
const KeyPrefix = "tia_"

// ErrInvalidKey is returned for unknown or revoked keys.
var ErrInvalidKey = errors.New("invalid API key")

// Store keeps API keys for callers of the chat endpoints. It guards access
// to the service; conversations and quotes are never written here.
type Store struct {
	db *sql.DB
}

// APIKey represents an API key record
type APIKey struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used,omitempty"`
	Requests  int64     `json:"requests"`
	Revoked   bool      `json:"revoked"`
}

// NewStore opens (or creates) the sqlite key database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT UNIQUE NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used DATETIME,
			requests INTEGER NOT NULL DEFAULT 0,
			revoked INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(key);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate key store: %w", err)
	}

	return &Store{db: db}, nil
}

// Issue creates a new API key for owner.
func (s *Store) Issue(ctx context.Context, owner string) (*APIKey, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (key, owner) VALUES (?, ?)",
		key, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("insert key: %w", err)
	}

	id, _ := result.LastInsertId()
	return &APIKey{
		ID:        id,
		Key:       key,
		Owner:     owner,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Validate returns the record for an active key, or ErrInvalidKey.
func (s *Store) Validate(ctx context.Context, key string) (*APIKey, error) {
	k, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if k.Revoked {
		return nil, ErrInvalidKey
	}
	return k, nil
}

// RecordUse bumps the request counter and last-used time.
func (s *Store) RecordUse(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET requests = requests + 1, last_used = CURRENT_TIMESTAMP WHERE key = ?",
		key,
	)
	return err
}

// Usage returns the record for key, revoked or not.
func (s *Store) Usage(ctx context.Context, key string) (*APIKey, error) {
	return s.get(ctx, key)
}

// Revoke disables a key.
func (s *Store) Revoke(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked = 1 WHERE key = ?", key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidKey
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, key, owner, created_at, last_used, requests, revoked FROM api_keys WHERE key = ?",
		key,
	)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	return k, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(sc scanner) (*APIKey, error) {
	var k APIKey
	var lastUsed sql.NullTime
	if err := sc.Scan(&k.ID, &k.Key, &k.Owner, &k.CreatedAt, &lastUsed, &k.Requests, &k.Revoked); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		k.LastUsed = lastUsed.Time
	}
	return &k, nil
}

func generateKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
