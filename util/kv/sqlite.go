package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteKV persists entries in a single SQLite table. Values are stored as
// JSON.
type SQLiteKV[K ~string, V any] struct {
	db *sql.DB
}

// NewSQLiteKV opens (and creates if needed) the database at path.
func NewSQLiteKV[K ~string, V any](ctx context.Context, path string) (KV[K, V], error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create kv directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open kv database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY NOT NULL,
		value BLOB NOT NULL,
		expire INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv schema: %w", err)
	}

	return &SQLiteKV[K, V]{db: db}, nil
}

func (kv *SQLiteKV[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	var raw []byte
	var expire int64

	err := kv.db.QueryRowContext(ctx,
		`SELECT value, expire FROM kv WHERE key = ?`, string(key),
	).Scan(&raw, &expire)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("kv get %q: %w", key, err)
	}

	if expire != 0 && expired(time.Unix(0, expire)) {
		if _, err := kv.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND expire = ?`, string(key), expire); err != nil {
			return zero, fmt.Errorf("kv expire %q: %w", key, err)
		}
		return zero, ErrNotFound
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, fmt.Errorf("kv decode %q: %w", key, err)
	}
	return value, nil
}

func (kv *SQLiteKV[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv encode %q: %w", key, err)
	}

	var expire int64
	if at := expiry(ttl); !at.IsZero() {
		expire = at.UnixNano()
	}

	_, err = kv.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expire) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expire = excluded.expire`,
		string(key), raw, expire,
	)
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (kv *SQLiteKV[K, V]) Delete(ctx context.Context, key K) error {
	if _, err := kv.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (kv *SQLiteKV[K, V]) Close() error {
	return kv.db.Close()
}
