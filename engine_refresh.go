package otcAuth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/otcAuth/internal/flows"
	"go.uber.org/zap"
)

// SessionState is the outcome of [Engine.Authenticate].
type SessionState = flows.RotationState

const (
	// SessionRejected means the request carries no usable credential.
	SessionRejected = flows.StateRejected
	// SessionAuthenticated means the Bearer token was valid and unexpired.
	SessionAuthenticated = flows.StateAuthenticated
	// SessionRotated means the refresh credential was exchanged for a new
	// pair. The transport must write both cookies back.
	SessionRotated = flows.StateRotated
)

// AuthResult is the identity established for one request.
type AuthResult struct {
	State  SessionState
	UserID int64
	Claims *Claims
	// AccessToken and RefreshToken are only set when State is SessionRotated.
	AccessToken  string
	RefreshToken string
}

// Authenticate runs the refresh rotation protocol for the two cookie values
// of a request. Either may be empty.
//
// A valid unexpired bearer authenticates without touching the token store.
// Otherwise the refresh credential is exchanged atomically: among
// concurrent requests presenting the same credential, at most one rotates
// and the rest are rejected. Expired bearers carry no authority of their
// own.
//
// Only an unknown credential or a deleted owner yields [ErrRefreshRevoked].
// Store and user lookup failures leave the credential live for a retry.
//
// Rotation runs detached from ctx cancellation so a client disconnect
// cannot leave a retired credential without its replacement.
func (e *Engine) Authenticate(ctx context.Context, bearer, refresh string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := flows.RunRotation(context.WithoutCancel(ctx), bearer, refresh, e.flowDeps.Rotation)

	if res.State == flows.StateAuthenticated {
		e.metricInc(MetricSessionAuthenticated)
		return &AuthResult{State: res.State, UserID: res.UserID, Claims: res.Claims}, nil
	}

	if refresh != "" {
		e.metrics.Observe(MetricRotationLatency, time.Since(start))
	}

	if res.State == flows.StateRotated {
		e.metricInc(MetricRotationSuccess)
		e.emitAudit(ctx, auditEventRotationSuccess, true, res.UserID, nil, nil)
		return &AuthResult{
			State:        res.State,
			UserID:       res.UserID,
			Claims:       res.Claims,
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		}, nil
	}

	err := rotationError(res)
	e.metricInc(MetricRotationRejected)
	if res.Failure != flows.RotationFailureNoCredentials {
		e.emitAudit(ctx, auditEventRotationRejected, false, res.UserID, err, func() map[string]string {
			return map[string]string{"reason": rotationReason(res.Failure)}
		})
	}
	if KindOf(err) == KindInternal {
		e.logger.Error("refresh rotation failed", zap.Int64("user_id", res.UserID), zap.Error(res.Err))
	}
	return &AuthResult{State: res.State}, err
}

func rotationError(res flows.RotationResult) error {
	switch res.Failure {
	case flows.RotationFailureNoCredentials:
		return ErrAuthenticationFailure
	case flows.RotationFailureRefreshUnknown,
		flows.RotationFailureUserMissing:
		return ErrRefreshRevoked
	case flows.RotationFailureStore:
		return fmt.Errorf("%w: %v", ErrAuthenticationFailure, res.Err)
	default:
		return fmt.Errorf("%w: %v", ErrInternalFailure, res.Err)
	}
}

func rotationReason(kind flows.RotationFailureKind) string {
	switch kind {
	case flows.RotationFailureRefreshUnknown:
		return "refresh_unknown"
	case flows.RotationFailureStore:
		return "store"
	case flows.RotationFailureUserMissing:
		return "user_missing"
	case flows.RotationFailureUserLookup:
		return "user_lookup"
	case flows.RotationFailureNewCredential:
		return "credential"
	case flows.RotationFailureIssueAccess:
		return "issue_access"
	default:
		return strconv.Itoa(int(kind))
	}
}
