package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/otcAuth/otc"
)

// RedeemFailureKind classifies one-time-code redemption failures.
type RedeemFailureKind int

const (
	RedeemFailureNone RedeemFailureKind = iota
	RedeemFailureNotFound
	RedeemFailureMalformed
	RedeemFailureStore
	RedeemFailureUserMissing
	RedeemFailureMutation
	RedeemFailureIssueAccess
)

// RedeemResult describes what a redeemed code did.
type RedeemResult struct {
	Failure RedeemFailureKind
	Err     error
	Action  otc.Action
	UserID  int64
	// Identity is the post-mutation identity for UpdateAccount.
	Identity *Identity
	// AccessToken is set when an UpdateAccount changed the name or email.
	AccessToken string
	// ConsumeErr records a failure to delete the code after a committed
	// mutation. The redemption itself succeeded.
	ConsumeErr error
}

// RedeemDeps captures redemption dependencies.
type RedeemDeps struct {
	Load    func(ctx context.Context, code string) (otc.Entry, error)
	Consume func(ctx context.Context, code string) error

	ConfirmUser   func(ctx context.Context, userID int64) error
	UpdateUser    func(ctx context.Context, userID int64, update otc.UpdateAccount) error
	DeleteUser    func(ctx context.Context, userID int64) error
	RevokeRefresh func(ctx context.Context, userID int64) error

	LookupIdentity LookupIdentityFunc
	IssueAccess    IssueAccessFunc
	Warn           func(string, ...any)

	UserNotFound error
}

// RunRedeem loads the pending action bound to code, applies it and only
// then consumes the code. A failed mutation leaves the code redeemable
// until it expires. A code whose user no longer exists is consumed, since
// no retry could succeed.
func RunRedeem(ctx context.Context, code string, deps RedeemDeps) RedeemResult {
	entry, err := deps.Load(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, otc.ErrNotFound):
			return RedeemResult{Failure: RedeemFailureNotFound, Err: err}
		case errors.Is(err, otc.ErrMalformed):
			return RedeemResult{Failure: RedeemFailureMalformed, Err: err}
		default:
			return RedeemResult{Failure: RedeemFailureStore, Err: err}
		}
	}

	result := RedeemResult{Action: entry.Pending.Action(), UserID: entry.UserID}

	var update otc.UpdateAccount
	switch p := entry.Pending.(type) {
	case otc.ConfirmAccount:
		err = deps.ConfirmUser(ctx, entry.UserID)
	case otc.UpdateAccount:
		update = p
		err = deps.UpdateUser(ctx, entry.UserID, p)
	case otc.DeleteAccount:
		if revokeErr := deps.RevokeRefresh(ctx, entry.UserID); revokeErr != nil && deps.Warn != nil {
			deps.Warn("otcAuth: refresh revocation before delete failed", "user_id", entry.UserID, "error", revokeErr)
		}
		err = deps.DeleteUser(ctx, entry.UserID)
	}
	if err != nil {
		result.Err = err
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			result.Failure = RedeemFailureUserMissing
			result.ConsumeErr = deps.Consume(ctx, entry.Code)
			return result
		}
		result.Failure = RedeemFailureMutation
		return result
	}

	result.ConsumeErr = deps.Consume(ctx, entry.Code)
	if result.ConsumeErr != nil && deps.Warn != nil {
		deps.Warn("otcAuth: consuming redeemed code failed", "user_id", entry.UserID, "error", result.ConsumeErr)
	}

	if entry.Pending.Action() != otc.ActionUpdateAccount {
		return result
	}

	identity, err := deps.LookupIdentity(ctx, entry.UserID)
	if err != nil {
		result.Failure = RedeemFailureIssueAccess
		result.Err = err
		return result
	}
	result.Identity = &identity

	if update.ChangesIdentity() {
		access, err := deps.IssueAccess(identity)
		if err != nil {
			result.Failure = RedeemFailureIssueAccess
			result.Err = err
			return result
		}
		result.AccessToken = access
	}

	return result
}
