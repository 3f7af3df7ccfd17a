package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-progression-engine/internal/domain"
	"github.com/tbourn/go-progression-engine/internal/repo"
)

// IdempotencyStore remembers admin corrections by (user, scope, key) so a
// retried request replays the stored activity entry.
type IdempotencyStore struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup reports whether a live record exists. Its signature matches
// middleware.IdempotencyLookup.
func (s *IdempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	rec, err := s.Get(ctx, userID, scope, key, now)
	return rec != nil, err
}

// Get returns the live record, or nil when there is none.
func (s *IdempotencyStore) Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// Put stores the outcome of a correction. A concurrent duplicate is not an
// error: the first writer wins.
func (s *IdempotencyStore) Put(ctx context.Context, userID, scope, key, activityID string, status int) error {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, activityID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Purge drops expired records and returns how many were removed.
func (s *IdempotencyStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, now)
}
