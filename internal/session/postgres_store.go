package session

import (
	"context"
	"time"

	"carelink/api/internal/store"
)

// Store is the refresh session backend the app layer depends on. Redis is the
// preferred implementation; Postgres serves as the fallback when Redis is not
// reachable at startup.
type Store interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// PostgresStore adapts the relational refresh_sessions table to the Store
// interface. Lookups join the users table, so unlike the Redis backend every
// refresh costs a database round trip.
type PostgresStore struct {
	db *store.PostgresStore
}

func NewPostgresStore(db *store.PostgresStore) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return s.db.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return s.db.LookupRefreshSession(ctx, tokenHash)
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return s.db.RevokeRefreshSession(ctx, tokenHash)
}
