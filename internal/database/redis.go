package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banhbaoring/dns-broker/internal/config"
)

// Redis wraps a Redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a new Redis client.
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Client returns the underlying Redis client.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set stores a key-value pair with optional expiration.
func (r *Redis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Exists checks if a key exists.
func (r *Redis) Exists(ctx context.Context, keys ...string) (int64, error) {
	return r.client.Exists(ctx, keys...).Result()
}

// IncrWithExpire increments a key and sets expiration if it doesn't exist.
// Used to track per-step retry attempts within a bounded window.
func (r *Redis) IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, expiration).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// SetNX sets a key only if it doesn't exist.
func (r *Redis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, expiration).Result()
}

// Enqueue pushes a task payload onto the tail of a FIFO list.
func (r *Redis) Enqueue(ctx context.Context, queue string, payload string) error {
	return r.client.RPush(ctx, queue, payload).Err()
}

// Dequeue blocks up to timeout for a task payload at the head of a FIFO list.
// Returns ("", nil) on timeout so callers can loop without treating it as an error.
func (r *Redis) Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	result, err := r.client.BLPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BLPop returns [key, value]
	return result[1], nil
}

// RequeueWithDelay schedules a payload for redelivery after delay by pushing
// it onto a sorted-set "delayed" queue keyed by due-time; a separate poller
// moves due entries onto the FIFO list. Used to implement bounded exponential
// backoff between step retries without holding a worker goroutine asleep.
func (r *Redis) RequeueWithDelay(ctx context.Context, delayedSet string, payload string, delay time.Duration) error {
	dueAt := float64(time.Now().Add(delay).UnixNano())
	return r.client.ZAdd(ctx, delayedSet, redis.Z{Score: dueAt, Member: payload}).Err()
}

// PromoteDue moves entries from the delayed sorted set whose due-time has
// passed onto the destination FIFO list, returning how many were promoted.
func (r *Redis) PromoteDue(ctx context.Context, delayedSet, queue string) (int, error) {
	now := float64(time.Now().UnixNano())
	due, err := r.client.ZRangeByScore(ctx, delayedSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	pipe := r.client.Pipeline()
	for _, payload := range due {
		pipe.RPush(ctx, queue, payload)
		pipe.ZRem(ctx, delayedSet, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(due), nil
}
