package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login limiter tuning parameters.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// Limiter enforces per-email and per-IP budgets for failed logins using
// Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a login [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin returns ErrRateLimited when the email, or the IP if IP
// throttling is on, has used up its failure budget.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if err := checkCounter(ctx, l.redis, loginEmailKey(email), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := checkCounter(ctx, l.redis, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the email and IP.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	count, err := incrementWithTTL(ctx, l.redis, loginEmailKey(email), l.config.LoginCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = incrementWithTTL(ctx, l.redis, loginIPKey(ip), l.config.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failure counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	keys := []string{loginEmailKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// LoginAttempts returns the current failure counter for an email.
// Missing keys return zero.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, loginEmailKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Window is a fixed-window counter over one key prefix. Every Hit counts,
// so it suits operations limited by volume rather than by failures.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	max    int
	period time.Duration
}

// NewWindow returns a Window allowing max hits per period for each subject.
func NewWindow(redisClient redis.UniversalClient, prefix string, max int, period time.Duration) *Window {
	return &Window{redis: redisClient, prefix: prefix, max: max, period: period}
}

// Hit counts one use by subject and returns ErrRateLimited once the window
// budget is exceeded. A Window with max <= 0 never limits.
func (w *Window) Hit(ctx context.Context, subject string) error {
	if w == nil || w.max <= 0 {
		return nil
	}
	count, err := incrementWithTTL(ctx, w.redis, w.prefix+subject, w.period)
	if err != nil {
		return err
	}
	if count > int64(w.max) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter of subject.
func (w *Window) Reset(ctx context.Context, subject string) error {
	if w == nil {
		return nil
	}
	if err := w.redis.Del(ctx, w.prefix+subject).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func checkCounter(ctx context.Context, rdb redis.UniversalClient, key string, maxAttempts int) error {
	count, err := rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func incrementWithTTL(ctx context.Context, rdb redis.UniversalClient, key string, ttl time.Duration) (int64, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func loginEmailKey(email string) string {
	return "rl:login:" + strings.ToLower(strings.TrimSpace(email))
}

func loginIPKey(ip string) string {
	return "rl:login-ip:" + ip
}
