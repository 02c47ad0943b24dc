package otcAuth

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventAccountCreated       = "account_created"
	auditEventAccountCreateFailure = "account_create_failure"
	auditEventAccountUpdated       = "account_updated"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRotationSuccess      = "refresh_rotated"
	auditEventRotationRejected     = "refresh_rejected"
	auditEventLogout               = "logout"
	auditEventOTCIssued            = "otc_issued"
	auditEventOTCRedeemed          = "otc_redeemed"
	auditEventOTCRedeemFailure     = "otc_redeem_failure"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode is the error classification recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrNotConfirmed       AuditErrorCode = "account_not_confirmed"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrCodeNotFound       AuditErrorCode = "code_not_found"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID int64,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		IP:        clientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if userID > 0 {
		event.UserID = strconv.FormatInt(userID, 10)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, 0, ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotConfirmed):
		return auditErrNotConfirmed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrOTCNotFound),
		errors.Is(err, ErrResetTokenNotFound):
		return auditErrCodeNotFound
	case errors.Is(err, ErrAuthenticationFailure):
		return auditErrUnauthenticated
	case errors.Is(err, ErrValidationFailure):
		return auditErrValidation
	case errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
