package otcAuth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/otcAuth/internal/flows"
	"github.com/MrEthical07/otcAuth/store"
	"go.uber.org/zap"
)

// LoginResult is a freshly issued session.
type LoginResult struct {
	User         User
	AccessToken  string
	RefreshToken string
}

// Login describes the login operation and its observable behavior.
//
// Login verifies email and password and issues an access token plus a
// refresh credential. Unknown emails and wrong passwords both return
// ErrInvalidCredentials. Accounts that have not redeemed their
// confirmation code get ErrAccountNotConfirmed. When the engine has a
// Redis client, failed attempts count against per-email and per-IP
// budgets and a spent budget returns ErrRateLimited.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	v := &ValidationError{}
	if email == "" {
		v.add("email", "must not be empty")
	}
	if password == "" {
		v.add("password", "must not be empty")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	ip := clientIPFromContext(ctx)
	res := flows.RunLogin(ctx, email, password, ip, e.flowDeps.Login)

	if res.Failure != flows.LoginFailureNone {
		err := loginError(res)
		switch res.Failure {
		case flows.LoginFailureRateLimited:
			e.metricInc(MetricLoginRateLimited)
			e.emitRateLimit(ctx, "login")
			e.emitAudit(ctx, auditEventLoginRateLimited, false, 0, err, nil)
		case flows.LoginFailureNotConfirmed:
			e.metricInc(MetricLoginUnconfirmed)
			e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, err, nil)
		default:
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, err, nil)
		}
		if KindOf(err) == KindInternal {
			e.logger.Error("login failed", zap.Int64("user_id", res.User.ID), zap.Error(res.Err))
		}
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, res.User.ID)
	if err != nil {
		_ = e.tokens.Delete(ctx, store.RefreshKey(res.RefreshToken))
		return nil, userStoreErr(err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.User.ID, nil, func() map[string]string {
		if !res.Rehashed {
			return nil
		}
		return map[string]string{"password_rehashed": "true"}
	})

	return &LoginResult{
		User:         user,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, nil
}

func loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureRateLimited:
		return ErrRateLimited
	case flows.LoginFailureInvalidCredentials:
		return ErrInvalidCredentials
	case flows.LoginFailureNotConfirmed:
		return ErrAccountNotConfirmed
	case flows.LoginFailureLimiter, flows.LoginFailureStoreRefresh, flows.LoginFailureUserLookup:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	case flows.LoginFailureHashing:
		return fmt.Errorf("%w: %v", ErrHashingFailure, res.Err)
	default:
		return fmt.Errorf("%w: %v", ErrInternalFailure, res.Err)
	}
}

// Logout deletes the refresh credential. Access tokens stay valid until
// they expire. Logging out with an unknown or empty credential succeeds.
func (e *Engine) Logout(ctx context.Context, userID int64, refresh string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	if refresh != "" {
		owner, found, err := e.tokens.Get(ctx, store.RefreshKey(refresh))
		if err != nil {
			return storeErr(err)
		}
		// A credential belonging to someone else is left alone.
		if found && (userID == 0 || owner == strconv.FormatInt(userID, 10)) {
			if err := e.tokens.Delete(ctx, store.RefreshKey(refresh)); err != nil {
				return storeErr(err)
			}
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, nil, nil)
	return nil
}
