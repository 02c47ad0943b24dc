package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/otcAuth/jwt"
)

// RotationState is the outcome of one pass of the refresh rotation protocol.
type RotationState int

const (
	// StateRejected means no usable credential was presented.
	StateRejected RotationState = iota
	// StateAuthenticated means the access token was valid and unexpired.
	StateAuthenticated
	// StateRotated means the refresh credential was exchanged for a new pair.
	StateRotated
)

func (s RotationState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRotated:
		return "rotated"
	default:
		return "rejected"
	}
}

// RotationFailureKind classifies rejected rotations.
type RotationFailureKind int

const (
	RotationFailureNone RotationFailureKind = iota
	RotationFailureNoCredentials
	RotationFailureRefreshUnknown
	RotationFailureStore
	RotationFailureNewCredential
	RotationFailureUserMissing
	RotationFailureUserLookup
	RotationFailureIssueAccess
)

// RotationResult carries the established identity or the failure metadata.
type RotationResult struct {
	State   RotationState
	Failure RotationFailureKind
	Err     error
	UserID  int64
	Claims  *jwt.Claims
	// AccessToken and RefreshToken are set only when State is StateRotated.
	AccessToken  string
	RefreshToken string
}

// RotationDeps captures the rotation protocol dependencies.
type RotationDeps struct {
	Now                  func() time.Time
	DecodeAccess         func(string) (*jwt.Claims, error)
	NewRefreshCredential func() (string, error)
	// LoadRefresh returns the owning user id stored under cred, or
	// RefreshNotFound when cred is not live.
	LoadRefresh func(ctx context.Context, cred string) (string, error)
	// RotateRefresh retires oldCred, installs nextCred and returns the owning
	// user id as stored. It returns RefreshNotFound when oldCred is not live.
	RotateRefresh  func(ctx context.Context, oldCred, nextCred string) (string, error)
	DeleteRefresh  func(ctx context.Context, cred string) error
	LookupIdentity LookupIdentityFunc
	IssueAccess    IssueAccessFunc
	Warn           func(string, ...any)

	RefreshNotFound error
	UserNotFound    error
}

// RunRotation evaluates the protocol once for a request carrying the given
// cookie values. Either value may be empty.
//
// The user is resolved and the access token minted before the store is
// touched, so a failure at any of those steps leaves the presented
// credential live. The atomic swap comes last and picks the single winner
// among concurrent presenters.
func RunRotation(ctx context.Context, bearer, refresh string, deps RotationDeps) RotationResult {
	if bearer != "" {
		claims, err := deps.DecodeAccess(bearer)
		if err == nil && !claims.ExpiredAt(deps.Now()) {
			return RotationResult{
				State:  StateAuthenticated,
				UserID: claims.UserID,
				Claims: claims,
			}
		}
	}

	if refresh == "" {
		return RotationResult{State: StateRejected, Failure: RotationFailureNoCredentials}
	}

	owner, err := deps.LoadRefresh(ctx, refresh)
	if err != nil {
		return refreshStoreFailure(err, deps)
	}

	userID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil || userID <= 0 {
		return RotationResult{State: StateRejected, Failure: RotationFailureStore, Err: errors.New("corrupt refresh entry")}
	}

	identity, err := deps.LookupIdentity(ctx, userID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			// Nothing can ever redeem this credential again.
			discard(ctx, deps, refresh)
			return RotationResult{State: StateRejected, Failure: RotationFailureUserMissing, Err: err, UserID: userID}
		}
		return RotationResult{State: StateRejected, Failure: RotationFailureUserLookup, Err: err, UserID: userID}
	}

	access, err := deps.IssueAccess(identity)
	if err != nil {
		return RotationResult{State: StateRejected, Failure: RotationFailureIssueAccess, Err: err, UserID: userID}
	}

	claims, err := deps.DecodeAccess(access)
	if err != nil {
		return RotationResult{State: StateRejected, Failure: RotationFailureIssueAccess, Err: err, UserID: userID}
	}

	next, err := deps.NewRefreshCredential()
	if err != nil {
		return RotationResult{State: StateRejected, Failure: RotationFailureNewCredential, Err: err, UserID: userID}
	}

	rotated, err := deps.RotateRefresh(ctx, refresh, next)
	if err != nil {
		res := refreshStoreFailure(err, deps)
		res.UserID = userID
		return res
	}
	if rotated != owner {
		discard(ctx, deps, next)
		return RotationResult{State: StateRejected, Failure: RotationFailureStore, Err: errors.New("refresh owner changed during rotation"), UserID: userID}
	}

	return RotationResult{
		State:        StateRotated,
		UserID:       userID,
		Claims:       claims,
		AccessToken:  access,
		RefreshToken: next,
	}
}

func refreshStoreFailure(err error, deps RotationDeps) RotationResult {
	if deps.RefreshNotFound != nil && errors.Is(err, deps.RefreshNotFound) {
		return RotationResult{State: StateRejected, Failure: RotationFailureRefreshUnknown, Err: err}
	}
	return RotationResult{State: StateRejected, Failure: RotationFailureStore, Err: err}
}

// discard deletes a refresh credential that must not stay live.
func discard(ctx context.Context, deps RotationDeps, cred string) {
	if err := deps.DeleteRefresh(ctx, cred); err != nil && deps.Warn != nil {
		deps.Warn("otcAuth: discarding refresh credential failed", "error", err)
	}
}
