package otcAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/otcAuth/internal/flows"
	"github.com/MrEthical07/otcAuth/internal/rate"
	"github.com/MrEthical07/otcAuth/otc"
	"github.com/MrEthical07/otcAuth/store"
)

// buildFlowDeps binds the flow functions to this engine's stores and
// managers. It runs once from Build.
func (e *Engine) buildFlowDeps() flows.Deps {
	var deps flows.Deps

	deps.Rotation = flows.RotationDeps{
		Now:                  func() time.Time { return e.now() },
		DecodeAccess:         e.jwtManager.Decode,
		NewRefreshCredential: e.newRefreshCredential,
		LoadRefresh:          e.loadRefresh,
		RotateRefresh:        e.rotateRefresh,
		DeleteRefresh: func(ctx context.Context, cred string) error {
			return e.tokens.Delete(ctx, store.RefreshKey(cred))
		},
		LookupIdentity:  e.lookupIdentity,
		IssueAccess:     e.issueAccess,
		Warn:            e.warn,
		RefreshNotFound: store.ErrNotFound,
		UserNotFound:    ErrUserNotFound,
	}

	deps.Login = flows.LoginDeps{
		GetUserByEmail: func(ctx context.Context, email string) (flows.LoginUser, error) {
			u, err := e.users.GetUserByEmail(ctx, email)
			if err != nil {
				return flows.LoginUser{}, err
			}
			return flows.LoginUser{Identity: u.identity(), PasswordHash: u.PasswordHash, Confirmed: u.Confirmed}, nil
		},
		VerifyPassword:       e.passwordHash.Verify,
		DummyHash:            e.dummyHash,
		HashPassword:         e.passwordHash.Hash,
		StorePassword:        e.storePasswordHash,
		NewRefreshCredential: e.newRefreshCredential,
		StoreRefresh: func(ctx context.Context, cred, owner string) error {
			return e.tokens.Set(ctx, store.RefreshKey(cred), owner, e.config.Refresh.TTL)
		},
		IssueAccess:  e.issueAccess,
		Warn:         e.warn,
		RateLimited:  rate.ErrRateLimited,
		UserNotFound: ErrUserNotFound,
	}
	if e.rateLimiter != nil {
		deps.Login.CheckLimit = e.rateLimiter.CheckLogin
		deps.Login.RecordFailure = e.rateLimiter.IncrementLogin
		deps.Login.ResetLimit = e.rateLimiter.ResetLogin
	}
	if e.config.Password.UpgradeOnLogin {
		deps.Login.NeedsUpgrade = func(hash string) bool {
			upgrade, err := e.passwordHash.NeedsUpgrade(hash)
			return err == nil && upgrade
		}
	}

	deps.Redeem = flows.RedeemDeps{
		Load:        e.otc.Load,
		Consume:     e.otc.Consume,
		ConfirmUser: e.users.ConfirmUser,
		UpdateUser: func(ctx context.Context, userID int64, u otc.UpdateAccount) error {
			return e.users.UpdateUser(ctx, userID, UserUpdate{
				Name:         u.Name,
				Email:        u.Email,
				Phone:        u.Phone,
				PasswordHash: u.PasswordHash,
			})
		},
		DeleteUser:     e.users.DeleteUser,
		RevokeRefresh:  e.revokeRefresh,
		LookupIdentity: e.lookupIdentity,
		IssueAccess:    e.issueAccess,
		Warn:           e.warn,
		UserNotFound:   ErrUserNotFound,
	}

	deps.ResetRequest = flows.ResetRequestDeps{
		GetUserByEmail: func(ctx context.Context, email string) (Identity, error) {
			u, err := e.users.GetUserByEmail(ctx, email)
			if err != nil {
				return Identity{}, err
			}
			return u.identity(), nil
		},
		IssueToken: e.issueResetToken,
		Deliver: func(ctx context.Context, user Identity, token string) error {
			return e.send(ctx, MessagePasswordReset, user, token)
		},
		UserNotFound: ErrUserNotFound,
	}

	deps.ResetConfirm = flows.ResetConfirmDeps{
		LoadToken: e.loadResetToken,
		ConsumeToken: func(ctx context.Context, token string) error {
			return e.tokens.Delete(ctx, store.ResetTokenKey(token))
		},
		HashPassword:   e.passwordHash.Hash,
		StorePassword:  e.storePasswordHash,
		RevokeRefresh:  e.revokeRefresh,
		LookupIdentity: e.lookupIdentity,
		Warn:           e.warn,
		TokenNotFound:  store.ErrNotFound,
		UserNotFound:   ErrUserNotFound,
	}

	return deps
}

func (e *Engine) storePasswordHash(ctx context.Context, userID int64, hash string) error {
	return e.users.UpdateUser(ctx, userID, UserUpdate{PasswordHash: &hash})
}
