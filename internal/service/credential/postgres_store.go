package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS relay_sessions (
	handle     TEXT PRIMARY KEY,
	credential BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists sessions to Postgres so several API replicas can
// accept uploads for the same login.
type PostgresStore struct {
	pool   *pgxpool.Pool
	sealer *Sealer
}

// NewPostgresStore opens a pool for dsn and creates the sessions table if needed.
func NewPostgresStore(ctx context.Context, dsn string, sealer *Sealer) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres session dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres session config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres session pool: %w", err)
	}
	if _, err := pool.Exec(ctx, createSessionsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create relay_sessions table: %w", err)
	}
	return &PostgresStore{pool: pool, sealer: sealer}, nil
}

// Put stores credential under a new handle.
func (s *PostgresStore) Put(ctx context.Context, credential []byte) (string, error) {
	if len(credential) == 0 {
		return "", ErrCredentialMissing
	}
	handle := uuid.NewString()
	sealed, err := s.sealer.Seal(handle, credential)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO relay_sessions (handle, credential, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (handle) DO UPDATE SET credential = EXCLUDED.credential
`, handle, sealed, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("store session %s: %w", handle, err)
	}
	return handle, nil
}

// Get fetches the credential stored for handle.
func (s *PostgresStore) Get(ctx context.Context, handle string) ([]byte, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrSessionNotFound
	}
	var sealed []byte
	err := s.pool.QueryRow(ctx, `SELECT credential FROM relay_sessions WHERE handle = $1`, handle).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", handle, err)
	}
	return s.sealer.Open(handle, sealed)
}

// Close releases the pool, giving up when ctx ends first.
func (s *PostgresStore) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
