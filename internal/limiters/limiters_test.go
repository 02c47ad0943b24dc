package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedeemLimiter(t *testing.T) {
	l := NewRedeemLimiter(newTestRedis(t), RedeemConfig{MaxAttempts: 2, Window: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "10.0.0.1"))
	require.NoError(t, l.Check(ctx, "10.0.0.1"))
	require.ErrorIs(t, l.Check(ctx, "10.0.0.1"), ErrRedeemRateLimited)
	require.NoError(t, l.Check(ctx, "10.0.0.2"))
	require.NoError(t, l.Check(ctx, ""))

	var disabled *RedeemLimiter
	require.NoError(t, disabled.Check(ctx, "10.0.0.1"))
}

func TestIssueLimiter(t *testing.T) {
	l := NewIssueLimiter(newTestRedis(t), IssueConfig{MaxPerUser: 1, Window: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "1"))
	require.ErrorIs(t, l.Check(ctx, "1"), ErrIssueRateLimited)
	require.NoError(t, l.Check(ctx, "2"))
}

func TestResetLimiter(t *testing.T) {
	l := NewResetLimiter(newTestRedis(t), PasswordResetConfig{
		EnableIdentifierThrottle: true,
		EnableIPThrottle:         true,
		Window:                   time.Minute,
		MaxAttempts:              2,
	})
	ctx := context.Background()

	require.NoError(t, l.CheckRequest(ctx, "alice@example.com", "10.0.0.1"))
	require.NoError(t, l.CheckRequest(ctx, "ALICE@example.com", "10.0.0.2"))
	require.ErrorIs(t, l.CheckRequest(ctx, "alice@example.com", "10.0.0.3"), ErrResetRateLimited)

	require.NoError(t, l.CheckConfirm(ctx, "10.0.0.1"))
	require.NoError(t, l.CheckConfirm(ctx, "10.0.0.1"))
	require.ErrorIs(t, l.CheckConfirm(ctx, "10.0.0.1"), ErrResetRateLimited)
}
