package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edibez/tokenagent/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter is a fixed-window request limiter per caller, backed by Redis
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewLimiter connects to redisAddr and allows requestsPerSecond per caller.
// The initial ping is retried with exponential backoff for a few attempts.
func NewLimiter(ctx context.Context, redisAddr string, requestsPerSecond int) (*Limiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        redisAddr,
		DialTimeout: 3 * time.Second,
		ReadTimeout: time.Second,
	})

	ping := func() error {
		err := client.Ping(ctx).Err()
		if err != nil {
			logger.Log.Warn("redis ping failed", zap.String("addr", redisAddr), zap.Error(err))
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(ping, bo); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return newLimiter(client, requestsPerSecond), nil
}

func newLimiter(client *redis.Client, requestsPerSecond int) *Limiter {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &Limiter{
		client: client,
		limit:  requestsPerSecond,
		window: time.Second,
		now:    time.Now,
	}
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int { return l.limit }

// Allow checks if a request is allowed for the given caller
func (l *Limiter) Allow(ctx context.Context, caller string) (bool, int, error) {
	redisKey := fmt.Sprintf("tokenagent:ratelimit:%s:%d", caller, l.now().Unix())

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}

	// Set expiry on first request
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window*2).Err(); err != nil {
			logger.Log.Warn("rate limit expire failed", zap.String("key", redisKey), zap.Error(err))
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return count <= int64(l.limit), remaining, nil
}

// Close closes the Redis connection
func (l *Limiter) Close() error {
	return l.client.Close()
}
