package otcAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/otcAuth/internal"
	internalaudit "github.com/MrEthical07/otcAuth/internal/audit"
	"github.com/MrEthical07/otcAuth/internal/flows"
	"github.com/MrEthical07/otcAuth/internal/limiters"
	"github.com/MrEthical07/otcAuth/internal/rate"
	"github.com/MrEthical07/otcAuth/jwt"
	"github.com/MrEthical07/otcAuth/otc"
	"github.com/MrEthical07/otcAuth/password"
	"github.com/MrEthical07/otcAuth/store"
	"go.uber.org/zap"
)

// Engine is the account authentication core: login, the refresh rotation
// protocol, one-time-code gated account changes and password resets.
//
// Engine instances are built once by [Builder] and are safe for concurrent use.
type Engine struct {
	config        Config
	tokens        store.TokenStore
	users         UserStore
	mailer        Mailer
	logger        *zap.Logger
	otc           *otc.Registry
	rateLimiter   *rate.Limiter
	redeemLimiter *limiters.RedeemLimiter
	issueLimiter  *limiters.IssueLimiter
	resetLimiter  *limiters.ResetLimiter
	audit         *internalaudit.Dispatcher
	metrics       *Metrics
	passwordHash  *password.Argon2
	dummyHash     string
	jwtManager    *jwt.Manager
	flowDeps      flows.Deps
	now           func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close drains pending audit events into the sink. It does not close the
// Redis client or the user store, which the caller owns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped returns how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// AccessTTL is the lifetime of access tokens and the Max-Age of the Bearer cookie.
func (e *Engine) AccessTTL() time.Duration { return e.config.JWT.AccessTTL }

// RefreshTTL is the lifetime of refresh credentials and the Max-Age of the RefreshToken cookie.
func (e *Engine) RefreshTTL() time.Duration { return e.config.Refresh.TTL }

// CookieConfig returns the cookie attributes the transport should apply.
func (e *Engine) CookieConfig() CookieConfig { return e.config.Cookie }

// Ready pings the token store and the user store when they support it.
func (e *Engine) Ready(ctx context.Context) error {
	if e == nil || e.tokens == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if p, ok := e.tokens.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if p, ok := e.users.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (e *Engine) warn(msg string, keysAndValues ...any) {
	e.logger.Sugar().Warnw(msg, keysAndValues...)
}

func (e *Engine) lookupIdentity(ctx context.Context, userID int64) (Identity, error) {
	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return u.identity(), nil
}

func (e *Engine) issueAccess(id Identity) (string, error) {
	return e.jwtManager.Encode(id.ID, id.Name, id.Email)
}

func (e *Engine) newRefreshCredential() (string, error) {
	return internal.NewRefreshCredential(e.config.Refresh.CredentialBytes)
}

func (e *Engine) loadRefresh(ctx context.Context, cred string) (string, error) {
	owner, found, err := e.tokens.Get(ctx, store.RefreshKey(cred))
	if err != nil {
		return "", err
	}
	if !found {
		return "", store.ErrNotFound
	}
	return owner, nil
}

// rotateRefresh retires oldCred and installs nextCred under the same owner.
// Stores without [store.Rotator] get a non-atomic get, set, delete sequence.
func (e *Engine) rotateRefresh(ctx context.Context, oldCred, nextCred string) (string, error) {
	oldKey, nextKey := store.RefreshKey(oldCred), store.RefreshKey(nextCred)
	ttl := e.config.Refresh.TTL

	if r, ok := e.tokens.(store.Rotator); ok {
		return r.Rotate(ctx, oldKey, nextKey, ttl)
	}

	owner, found, err := e.tokens.Get(ctx, oldKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", store.ErrNotFound
	}
	if err := e.tokens.Set(ctx, nextKey, owner, ttl); err != nil {
		return "", err
	}
	if err := e.tokens.Delete(ctx, oldKey); err != nil {
		_ = e.tokens.Delete(ctx, nextKey)
		return "", err
	}
	return owner, nil
}

// revokeRefresh deletes every refresh credential owned by userID. Stores
// without [store.Sweeper] leave credentials to expire.
func (e *Engine) revokeRefresh(ctx context.Context, userID int64) error {
	sw, ok := e.tokens.(store.Sweeper)
	if !ok {
		return nil
	}
	n, err := sw.DeleteByValue(ctx, store.RefreshPrefix(), strconv.FormatInt(userID, 10))
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.Debug("revoked refresh credentials", zap.Int64("user_id", userID), zap.Int("count", n))
	}
	return nil
}

func (e *Engine) issueResetToken(ctx context.Context, owner string) (string, error) {
	return otc.Reserve(ctx, e.tokens, store.ResetTokenKey, func(string) (string, error) {
		return owner, nil
	}, e.config.PasswordReset.TTL)
}

func (e *Engine) loadResetToken(ctx context.Context, token string) (string, error) {
	owner, found, err := e.tokens.Get(ctx, store.ResetTokenKey(token))
	if err != nil {
		return "", err
	}
	if !found {
		return "", store.ErrNotFound
	}
	return owner, nil
}

func (e *Engine) send(ctx context.Context, kind MessageKind, to Identity, code string) error {
	err := e.mailer.Send(ctx, Message{Kind: kind, To: to.Email, Name: to.Name, Code: code})
	if err != nil {
		e.metricInc(MetricMailFailure)
		e.logger.Error("mail delivery failed",
			zap.String("kind", string(kind)),
			zap.Int64("user_id", to.ID),
			zap.Error(err),
		)
	}
	return err
}

// userStoreErr keeps the user store sentinels and wraps anything else as
// a backend failure.
func userStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrConflict):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
