package flows

import (
	"context"
	"errors"
	"strconv"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureLimiter
	LoginFailureUserLookup
	LoginFailureInvalidCredentials
	LoginFailureNotConfirmed
	LoginFailureHashing
	LoginFailureNewCredential
	LoginFailureStoreRefresh
	LoginFailureIssueAccess
)

// LoginUser is the flow-local view of a stored user.
type LoginUser struct {
	Identity
	PasswordHash string
	Confirmed    bool
}

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	User         LoginUser
	AccessToken  string
	RefreshToken string
	// Rehashed is true when a legacy or weak hash was upgraded in place.
	Rehashed bool
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	CheckLimit    func(ctx context.Context, email, ip string) error
	RecordFailure func(ctx context.Context, email, ip string) error
	ResetLimit    func(ctx context.Context, email, ip string) error

	GetUserByEmail func(ctx context.Context, email string) (LoginUser, error)
	VerifyPassword func(plaintext, hash string) (bool, error)
	// DummyHash is verified against when the email is unknown so both paths
	// cost one hash computation.
	DummyHash string

	NeedsUpgrade  func(hash string) bool
	HashPassword  func(plaintext string) (string, error)
	StorePassword func(ctx context.Context, userID int64, hash string) error

	NewRefreshCredential func() (string, error)
	StoreRefresh         func(ctx context.Context, cred, owner string) error
	IssueAccess          IssueAccessFunc
	Warn                 func(string, ...any)

	RateLimited  error
	UserNotFound error
}

// RunLogin verifies credentials and, for a confirmed account, issues an
// access token plus a new refresh credential.
func RunLogin(ctx context.Context, email, password, ip string, deps LoginDeps) LoginResult {
	if deps.CheckLimit != nil {
		if err := deps.CheckLimit(ctx, email, ip); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err}
			}
			return LoginResult{Failure: LoginFailureLimiter, Err: err}
		}
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.UserNotFound == nil || !errors.Is(err, deps.UserNotFound) {
			return LoginResult{Failure: LoginFailureUserLookup, Err: err}
		}
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		recordFailure(ctx, deps, email, ip)
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureHashing, Err: err, User: user}
	}
	if !ok {
		recordFailure(ctx, deps, email, ip)
		return LoginResult{Failure: LoginFailureInvalidCredentials, User: user}
	}

	if !user.Confirmed {
		return LoginResult{Failure: LoginFailureNotConfirmed, User: user}
	}

	if deps.ResetLimit != nil {
		if err := deps.ResetLimit(ctx, email, ip); err != nil && deps.Warn != nil {
			deps.Warn("otcAuth: login limiter reset failed", "error", err)
		}
	}

	rehashed := upgradeHash(ctx, deps, user, password)

	// Mint the access token first so a signing failure cannot leave an
	// undelivered refresh credential live.
	access, err := deps.IssueAccess(user.Identity)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueAccess, Err: err, User: user}
	}

	refresh, err := deps.NewRefreshCredential()
	if err != nil {
		return LoginResult{Failure: LoginFailureNewCredential, Err: err, User: user}
	}

	if err := deps.StoreRefresh(ctx, refresh, strconv.FormatInt(user.ID, 10)); err != nil {
		return LoginResult{Failure: LoginFailureStoreRefresh, Err: err, User: user}
	}

	return LoginResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		Rehashed:     rehashed,
	}
}

func recordFailure(ctx context.Context, deps LoginDeps, email, ip string) {
	if deps.RecordFailure == nil {
		return
	}
	if err := deps.RecordFailure(ctx, email, ip); err != nil && deps.Warn != nil {
		if deps.RateLimited == nil || !errors.Is(err, deps.RateLimited) {
			deps.Warn("otcAuth: login limiter increment failed", "error", err)
		}
	}
}

// upgradeHash replaces an outdated hash after a successful verification.
// Failures are logged and never fail the login.
func upgradeHash(ctx context.Context, deps LoginDeps, user LoginUser, password string) bool {
	if deps.NeedsUpgrade == nil || deps.HashPassword == nil || deps.StorePassword == nil {
		return false
	}
	if !deps.NeedsUpgrade(user.PasswordHash) {
		return false
	}

	hash, err := deps.HashPassword(password)
	if err == nil {
		err = deps.StorePassword(ctx, user.ID, hash)
	}
	if err != nil {
		if deps.Warn != nil {
			deps.Warn("otcAuth: password hash upgrade failed", "user_id", user.ID, "error", err)
		}
		return false
	}
	return true
}
