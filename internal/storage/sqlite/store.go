// Package sqlite is a durable sessionsdk.Storage backed by a local SQLite
// file, the CLI's equivalent of a browser profile's localStorage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/cryptox"
	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"

	_ "modernc.org/sqlite"
)

var _ sessionsdk.Storage = (*Store)(nil)

// Store keeps key/value pairs in the client_storage table. With a Sealer
// configured every value is encrypted before it is written.
type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts stored values at rest.
func WithSealer(s *cryptox.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// DSN builds a modernc.org/sqlite data source name for a database file.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// Open opens the database at dsn and applies pending migrations.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive for the life of the Store.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value for key, or "" when it is absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", key, err)
	}

	if s.sealer == nil {
		return value, nil
	}

	plain, err := s.sealer.OpenString(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %q: %w", key, err)
	}
	return plain, nil
}

// Set inserts or overwrites key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.sealer != nil {
		sealed, err := s.sealer.SealString(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %q: %w", key, err)
		}
		value = sealed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_storage (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}
