package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otcAuth/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrRedeemRateLimited = errors.New("redeem rate limited")
	ErrIssueRateLimited  = errors.New("code issue rate limited")
)

// RedeemConfig bounds code guessing. A six-character code has 36^6
// possible values, so a small per-IP budget keeps brute force impractical.
type RedeemConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// RedeemLimiter counts redemption attempts per client IP.
type RedeemLimiter struct {
	window *rate.Window
}

func NewRedeemLimiter(redisClient redis.UniversalClient, cfg RedeemConfig) *RedeemLimiter {
	return &RedeemLimiter{
		window: rate.NewWindow(redisClient, "rl:redeem-ip:", cfg.MaxAttempts, cfg.Window),
	}
}

// Check counts one attempt from ip. Requests without an IP are not limited.
func (l *RedeemLimiter) Check(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	return mapRateErr(l.window.Hit(ctx, ip), ErrRedeemRateLimited)
}

// IssueConfig bounds how many codes are mailed to one user per window.
type IssueConfig struct {
	MaxPerUser int
	Window     time.Duration
}

// IssueLimiter counts issued codes per user id.
type IssueLimiter struct {
	window *rate.Window
}

func NewIssueLimiter(redisClient redis.UniversalClient, cfg IssueConfig) *IssueLimiter {
	return &IssueLimiter{
		window: rate.NewWindow(redisClient, "rl:otc-issue:", cfg.MaxPerUser, cfg.Window),
	}
}

func (l *IssueLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapRateErr(l.window.Hit(ctx, userID), ErrIssueRateLimited)
}

func mapRateErr(err, limited error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return limited
	}
	return err
}
