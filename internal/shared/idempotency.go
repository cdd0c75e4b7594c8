package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// IdempotencyGuard claims submission keys so a repeated request is refused.
type IdempotencyGuard interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// IdempotencyStore persists processed keys in postgres.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Claim ensures key uniqueness per scope.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, scope, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Release removes a key, used to roll back a failed submission.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND module=$2`, key, scope)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// RedisIdempotency claims keys with SETNX and lets them expire after ttl.
type RedisIdempotency struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotency constructs the redis-backed guard.
func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotency{client: client, ttl: ttl}
}

// Claim sets the key if absent.
func (r *RedisIdempotency) Claim(ctx context.Context, scope, key string) error {
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	ok, err := r.client.SetNX(ctx, IdempotencyRedisKey(scope, key), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release deletes the key.
func (r *RedisIdempotency) Release(ctx context.Context, scope, key string) error {
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	return r.client.Del(ctx, IdempotencyRedisKey(scope, key)).Err()
}
