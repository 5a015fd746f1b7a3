package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("too many attempts, please try again later")

// RateLimiter applies fixed-window counters per email. A nil redis client
// disables limiting, so development setups work without redis.
type RateLimiter struct {
	redis  *redis.Client
	window time.Duration
	max    int64
}

func NewRateLimiter(redis *redis.Client, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		redis:  redis,
		window: window,
		max:    int64(max),
	}
}

func (r *RateLimiter) CheckSendCode(ctx context.Context, email string) error {
	if r == nil {
		return nil
	}
	return r.check(ctx, "send_code", email, r.window, r.max)
}

func (r *RateLimiter) CheckVerifyCode(ctx context.Context, email string) error {
	if r == nil {
		return nil
	}
	return r.check(ctx, "verify_code", email, r.window, r.max*2)
}

func (r *RateLimiter) CheckSubmit(ctx context.Context, email string) error {
	return r.check(ctx, "submit", email, time.Hour, 3)
}

func (r *RateLimiter) CheckLogin(ctx context.Context, email string) error {
	return r.check(ctx, "login", email, 15*time.Minute, 5)
}

func (r *RateLimiter) ResetAttempts(ctx context.Context, operation, email string) error {
	if r == nil || r.redis == nil {
		return nil
	}
	key := fmt.Sprintf("%s_attempts:%s", operation, email)
	return r.redis.Del(ctx, key).Err()
}

func (r *RateLimiter) check(ctx context.Context, operation, email string, window time.Duration, max int64) error {
	if r == nil || r.redis == nil {
		return nil
	}

	key := fmt.Sprintf("%s_attempts:%s", operation, email)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return err
	}

	if count == 1 {
		r.redis.Expire(ctx, key, window)
	}

	if count > max {
		return ErrTooManyAttempts
	}

	return nil
}
