package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/podcast-influence-tracker/app/database"
)

// Store holds window counters. Increment must be atomic per key.
type Store interface {
	Increment(ctx context.Context, userID int64, endpoint string, windowStart int64, window time.Duration) (int, error)
	Count(ctx context.Context, userID int64, endpoint string, windowStart int64) (int, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// SQLStore keeps counters in the rate_limits table.
type SQLStore struct {
	repo *database.RateLimitRepository
}

func NewSQLStore(repo *database.RateLimitRepository) *SQLStore {
	return &SQLStore{repo: repo}
}

func (s *SQLStore) Increment(_ context.Context, userID int64, endpoint string, windowStart int64, _ time.Duration) (int, error) {
	return s.repo.Increment(userID, endpoint, windowStart)
}

func (s *SQLStore) Count(_ context.Context, userID int64, endpoint string, windowStart int64) (int, error) {
	return s.repo.Count(userID, endpoint, windowStart)
}

func (s *SQLStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteBefore(before.Unix())
}

// RedisStore shares counters between processes. Keys expire on their own, so Cleanup is a no-op.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to a redis:// URL and pings it.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr)
	return &RedisStore{client: client}, nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(userID int64, endpoint string, windowStart int64) string {
	return fmt.Sprintf("ratelimit:%d:%s:%d", userID, endpoint, windowStart)
}

// Increment runs INCR and EXPIRE in one MULTI so a counter never outlives its window.
func (s *RedisStore) Increment(ctx context.Context, userID int64, endpoint string, windowStart int64, window time.Duration) (int, error) {
	key := redisKey(userID, endpoint, windowStart)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window+time.Minute)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Count(ctx context.Context, userID int64, endpoint string, windowStart int64) (int, error) {
	key := redisKey(userID, endpoint, windowStart)
	n, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Cleanup(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
