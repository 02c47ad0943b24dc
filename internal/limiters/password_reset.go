package limiters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/otcAuth/internal/rate"
	"github.com/redis/go-redis/v9"
)

var ErrResetRateLimited = errors.New("reset rate limited")

type PasswordResetConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxAttempts              int
}

// ResetLimiter throttles reset requests and confirmations.
type ResetLimiter struct {
	config    PasswordResetConfig
	requestID *rate.Window
	requestIP *rate.Window
	confirmIP *rate.Window
}

func NewResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *ResetLimiter {
	return &ResetLimiter{
		config:    cfg,
		requestID: rate.NewWindow(redisClient, "rl:reset:", cfg.MaxAttempts, cfg.Window),
		requestIP: rate.NewWindow(redisClient, "rl:reset-ip:", cfg.MaxAttempts, cfg.Window),
		confirmIP: rate.NewWindow(redisClient, "rl:reset-confirm-ip:", cfg.MaxAttempts, cfg.Window),
	}
}

func (l *ResetLimiter) CheckRequest(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIdentifierThrottle {
		key := strings.ToLower(strings.TrimSpace(email))
		if err := mapRateErr(l.requestID.Hit(ctx, key), ErrResetRateLimited); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := mapRateErr(l.requestIP.Hit(ctx, ip), ErrResetRateLimited); err != nil {
			return err
		}
	}
	return nil
}

func (l *ResetLimiter) CheckConfirm(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableIPThrottle || ip == "" {
		return nil
	}
	return mapRateErr(l.confirmIP.Hit(ctx, ip), ErrResetRateLimited)
}
