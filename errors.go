package otcAuth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthenticationFailure is returned when a request carries no usable session.
	ErrAuthenticationFailure = errors.New("authentication failure")
	// ErrRefreshRevoked is returned when the presented refresh credential
	// can never be redeemed again. Transports clear the session cookies on
	// it and on nothing else.
	ErrRefreshRevoked = fmt.Errorf("%w: refresh credential revoked", ErrAuthenticationFailure)
	// ErrInvalidToken is returned for an access token with a bad signature or shape.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotConfirmed is returned by Login for accounts that never redeemed their confirmation code.
	ErrAccountNotConfirmed = errors.New("account not confirmed")
	// ErrOTCNotFound is returned for unknown, expired or consumed one-time codes.
	ErrOTCNotFound = errors.New("one-time code not found")
	// ErrResetTokenNotFound is returned for unknown, expired or consumed reset tokens.
	ErrResetTokenNotFound = errors.New("reset token not found")
	// ErrUserNotFound is returned by a UserStore for a missing user.
	ErrUserNotFound = errors.New("user not found")

	// ErrValidationFailure wraps every input validation error.
	ErrValidationFailure = errors.New("validation failure")
	// ErrForbidden is returned when an authenticated caller may not perform an operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned by a UserStore when an email is already taken.
	ErrConflict = errors.New("conflict")
	// ErrRateLimited is returned when a login, redemption or reset budget is used up.
	ErrRateLimited = errors.New("rate limited")

	// ErrHashingFailure wraps password hashing backend failures.
	ErrHashingFailure = errors.New("hashing failure")
	// ErrStoreUnavailable wraps token store and user store I/O failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInternalFailure wraps every other server-side failure.
	ErrInternalFailure = errors.New("internal failure")
	// ErrEngineNotReady is returned by methods of a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// FailureKind is the coarse class of an engine error. Transports map it to
// a status code.
type FailureKind uint8

const (
	KindNone FailureKind = iota
	KindAuthentication
	KindValidation
	KindForbidden
	KindConflict
	KindRateLimited
	KindInternal
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidationFailure):
		return KindValidation
	case errors.Is(err, ErrAuthenticationFailure),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountNotConfirmed),
		errors.Is(err, ErrOTCNotFound),
		errors.Is(err, ErrResetTokenNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindAuthentication
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// HTTPStatus returns the response status for k.
func (k FailureKind) HTTPStatus() int {
	switch k {
	case KindNone:
		return http.StatusOK
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthentication:
		return "authentication_failure"
	case KindValidation:
		return "validation_failure"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal_failure"
	}
}

// ErrorCode returns a stable machine-readable code for err, more specific
// than its FailureKind where clients can act on the difference.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountNotConfirmed):
		return "account_not_confirmed"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrOTCNotFound):
		return "otc_not_found"
	case errors.Is(err, ErrResetTokenNotFound):
		return "reset_token_not_found"
	default:
		return KindOf(err).String()
	}
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field errors. It matches ErrValidationFailure
// under errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidationFailure.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidationFailure.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailure }

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
