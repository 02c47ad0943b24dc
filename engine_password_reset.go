package otcAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/otcAuth/internal/flows"
	"github.com/MrEthical07/otcAuth/otc"
	"go.uber.org/zap"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset mails a reset token to the account behind email.
// Unknown emails succeed without sending anything, so the result never
// reveals whether an account exists.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrForbidden
	}

	email = strings.TrimSpace(email)
	v := &ValidationError{}
	validateEmail(v, "email", email)
	if err := v.orNil(); err != nil {
		return err
	}

	ip := clientIPFromContext(ctx)
	if err := e.checkLimit(ctx, e.resetLimiter.CheckRequest(ctx, email, ip), "password_reset_request"); err != nil {
		return err
	}

	res := flows.RunResetRequest(ctx, email, e.flowDeps.ResetRequest)

	e.metricInc(MetricPasswordResetRequest)
	if res.Failure != flows.ResetFailureNone {
		err := resetError(res.Failure, res.Err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, res.UserID, err, nil)
		e.logger.Error("password reset request failed", zap.Int64("user_id", res.UserID), zap.Error(res.Err))
		return err
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, res.UserID, nil, func() map[string]string {
		return map[string]string{"issued": fmt.Sprint(res.Issued)}
	})
	return nil
}

// ConfirmPasswordReset describes the confirmpasswordreset operation and its observable behavior.
//
// ConfirmPasswordReset sets a new password for the owner of token, then
// consumes the token and revokes every refresh credential of the account.
// The token survives a failed update.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, password, confirm string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrForbidden
	}

	if err := e.checkLimit(ctx, e.resetLimiter.CheckConfirm(ctx, clientIPFromContext(ctx)), "password_reset_confirm"); err != nil {
		return err
	}

	v := &ValidationError{}
	validatePassword(v, "password", password)
	validateMatch(v, "password_confirm", password, confirm)
	if err := v.orNil(); err != nil {
		return err
	}

	normalized, ok := otc.Normalize(token)
	if !ok {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, 0, ErrResetTokenNotFound, nil)
		return ErrResetTokenNotFound
	}

	res := flows.RunResetConfirm(context.WithoutCancel(ctx), normalized, password, e.flowDeps.ResetConfirm)
	if res.Failure != flows.ResetFailureNone {
		err := resetError(res.Failure, res.Err)
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, res.UserID, err, nil)
		if KindOf(err) == KindInternal {
			e.logger.Error("password reset failed", zap.Int64("user_id", res.UserID), zap.Error(res.Err))
		}
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, res.UserID, nil, nil)

	if res.Identity != nil {
		_ = e.send(ctx, MessagePasswordSet, *res.Identity, "")
	}
	return nil
}

func resetError(kind flows.ResetFailureKind, err error) error {
	switch kind {
	case flows.ResetFailureNotFound:
		return ErrResetTokenNotFound
	case flows.ResetFailureUserMissing:
		return ErrUserNotFound
	case flows.ResetFailureHashing:
		return fmt.Errorf("%w: %v", ErrHashingFailure, err)
	case flows.ResetFailureUserLookup, flows.ResetFailureMutation:
		return userStoreErr(err)
	case flows.ResetFailureStore:
		return storeErr(err)
	case flows.ResetFailureIssue:
		if errors.Is(err, otc.ErrCodeSpaceExhausted) {
			return fmt.Errorf("%w: %v", ErrInternalFailure, err)
		}
		return storeErr(err)
	default:
		return fmt.Errorf("%w: %v", ErrInternalFailure, err)
	}
}
