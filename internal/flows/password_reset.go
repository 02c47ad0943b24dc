package flows

import (
	"context"
	"errors"
	"strconv"
)

// ResetFailureKind classifies password reset failures.
type ResetFailureKind int

const (
	ResetFailureNone ResetFailureKind = iota
	ResetFailureUserLookup
	ResetFailureIssue
	ResetFailureDeliver
	ResetFailureNotFound
	ResetFailureStore
	ResetFailureHashing
	ResetFailureUserMissing
	ResetFailureMutation
)

// ResetRequestResult reports whether a token was issued. Unknown emails
// succeed without issuing, so callers cannot probe for accounts.
type ResetRequestResult struct {
	Failure ResetFailureKind
	Err     error
	Issued  bool
	UserID  int64
}

// ResetRequestDeps captures reset-request dependencies.
type ResetRequestDeps struct {
	GetUserByEmail func(ctx context.Context, email string) (Identity, error)
	// IssueToken binds a fresh token to owner and returns it.
	IssueToken func(ctx context.Context, owner string) (string, error)
	Deliver    func(ctx context.Context, user Identity, token string) error

	UserNotFound error
}

// RunResetRequest issues a password reset token for the account behind
// email and hands it to Deliver.
func RunResetRequest(ctx context.Context, email string, deps ResetRequestDeps) ResetRequestResult {
	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return ResetRequestResult{}
		}
		return ResetRequestResult{Failure: ResetFailureUserLookup, Err: err}
	}

	token, err := deps.IssueToken(ctx, strconv.FormatInt(user.ID, 10))
	if err != nil {
		return ResetRequestResult{Failure: ResetFailureIssue, Err: err, UserID: user.ID}
	}

	if err := deps.Deliver(ctx, user, token); err != nil {
		return ResetRequestResult{Failure: ResetFailureDeliver, Err: err, UserID: user.ID}
	}

	return ResetRequestResult{Issued: true, UserID: user.ID}
}

// ResetConfirmResult describes a completed or failed reset.
type ResetConfirmResult struct {
	Failure  ResetFailureKind
	Err      error
	UserID   int64
	Identity *Identity
	// ConsumeErr records a failure to delete the token after the password
	// was changed. The reset itself succeeded.
	ConsumeErr error
}

// ResetConfirmDeps captures reset-confirm dependencies.
type ResetConfirmDeps struct {
	// LoadToken returns the owner stored under token, or TokenNotFound.
	LoadToken      func(ctx context.Context, token string) (string, error)
	ConsumeToken   func(ctx context.Context, token string) error
	HashPassword   func(plaintext string) (string, error)
	StorePassword  func(ctx context.Context, userID int64, hash string) error
	RevokeRefresh  func(ctx context.Context, userID int64) error
	LookupIdentity LookupIdentityFunc
	Warn           func(string, ...any)

	TokenNotFound error
	UserNotFound  error
}

// RunResetConfirm sets a new password for the owner of token. Like code
// redemption, the token is consumed only after the update committed, and
// every refresh credential of the user is revoked afterwards.
func RunResetConfirm(ctx context.Context, token, password string, deps ResetConfirmDeps) ResetConfirmResult {
	owner, err := deps.LoadToken(ctx, token)
	if err != nil {
		if deps.TokenNotFound != nil && errors.Is(err, deps.TokenNotFound) {
			return ResetConfirmResult{Failure: ResetFailureNotFound, Err: err}
		}
		return ResetConfirmResult{Failure: ResetFailureStore, Err: err}
	}

	userID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil || userID <= 0 {
		return ResetConfirmResult{Failure: ResetFailureStore, Err: errors.New("corrupt reset token entry")}
	}

	hash, err := deps.HashPassword(password)
	if err != nil {
		return ResetConfirmResult{Failure: ResetFailureHashing, Err: err, UserID: userID}
	}

	if err := deps.StorePassword(ctx, userID, hash); err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			_ = deps.ConsumeToken(ctx, token)
			return ResetConfirmResult{Failure: ResetFailureUserMissing, Err: err, UserID: userID}
		}
		return ResetConfirmResult{Failure: ResetFailureMutation, Err: err, UserID: userID}
	}

	result := ResetConfirmResult{UserID: userID}
	result.ConsumeErr = deps.ConsumeToken(ctx, token)
	if result.ConsumeErr != nil && deps.Warn != nil {
		deps.Warn("otcAuth: consuming reset token failed", "user_id", userID, "error", result.ConsumeErr)
	}

	if deps.RevokeRefresh != nil {
		if err := deps.RevokeRefresh(ctx, userID); err != nil && deps.Warn != nil {
			deps.Warn("otcAuth: refresh revocation after reset failed", "user_id", userID, "error", err)
		}
	}

	identity, err := deps.LookupIdentity(ctx, userID)
	if err != nil {
		if deps.Warn != nil {
			deps.Warn("otcAuth: identity lookup after reset failed", "user_id", userID, "error", err)
		}
		return result
	}
	result.Identity = &identity
	return result
}
