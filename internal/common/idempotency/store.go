package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers request keys for ttl so a resubmitted order is recognised.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(scope, requestKey string) string {
	return "idem:" + scope + ":" + requestKey
}

// Claim returns true the first time key is seen.
func (s *Store) Claim(ctx context.Context, scope, requestKey string) (bool, error) {
	return s.rdb.SetNX(ctx, s.Key(scope, requestKey), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

// Release forgets a key, letting a failed request be retried with the same key.
func (s *Store) Release(ctx context.Context, scope, requestKey string) error {
	return s.rdb.Del(ctx, s.Key(scope, requestKey)).Err()
}
