package otcAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/otcAuth/internal/flows"
	"github.com/MrEthical07/otcAuth/internal/limiters"
	"github.com/MrEthical07/otcAuth/otc"
	"go.uber.org/zap"
)

// RedeemResult describes the mutation a redeemed code applied.
type RedeemResult struct {
	Action otc.Action
	UserID int64
	// Identity is the post-update identity for UpdateAccount.
	Identity *Identity
	// AccessToken replaces the Bearer cookie when an UpdateAccount changed
	// the name or email.
	AccessToken string
}

// IssueOTC binds a fresh one-time code to p for userID and returns it
// without delivering it. When the engine has a Redis client the number of
// codes per user and window is capped.
func (e *Engine) IssueOTC(ctx context.Context, userID int64, p otc.Pending) (string, error) {
	if e == nil || e.otc == nil {
		return "", ErrEngineNotReady
	}
	if p == nil {
		return "", errors.New("nil pending action")
	}

	if err := e.checkLimit(ctx, e.issueLimiter.Check(ctx, strconv.FormatInt(userID, 10)), "otc_issue"); err != nil {
		return "", err
	}

	code, err := e.otc.Issue(ctx, userID, p)
	if err != nil {
		if errors.Is(err, otc.ErrCodeSpaceExhausted) {
			return "", fmt.Errorf("%w: %v", ErrInternalFailure, err)
		}
		return "", storeErr(err)
	}

	e.metricInc(MetricOTCIssued)
	e.emitAudit(ctx, auditEventOTCIssued, true, userID, nil, func() map[string]string {
		return map[string]string{"action": string(p.Action())}
	})
	return code, nil
}

// issueAndSend issues a code for user and mails it to their current address.
func (e *Engine) issueAndSend(ctx context.Context, user User, p otc.Pending, kind MessageKind) error {
	code, err := e.IssueOTC(ctx, user.ID, p)
	if err != nil {
		return err
	}
	if err := e.send(ctx, kind, user.identity(), code); err != nil {
		// The code is useless if it never reached the user.
		if cerr := e.otc.Consume(ctx, code); cerr != nil {
			e.warn("otcAuth: discarding undelivered code failed", "user_id", user.ID, "error", cerr)
		}
		return fmt.Errorf("%w: mail delivery: %v", ErrInternalFailure, err)
	}
	return nil
}

// RedeemOTC describes the redeemotc operation and its observable behavior.
//
// RedeemOTC applies the action bound to code and consumes the code once
// the mutation has committed. Unknown, expired and consumed codes return
// ErrOTCNotFound. A failed mutation leaves the code redeemable until it
// expires. Redemption attempts are capped per client IP.
func (e *Engine) RedeemOTC(ctx context.Context, code string) (*RedeemResult, error) {
	if e == nil || e.otc == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkLimit(ctx, e.redeemLimiter.Check(ctx, clientIPFromContext(ctx)), "otc_redeem"); err != nil {
		return nil, err
	}

	normalized, ok := otc.Normalize(code)
	if !ok {
		e.metricInc(MetricOTCRedeemFailure)
		e.emitAudit(ctx, auditEventOTCRedeemFailure, false, 0, ErrOTCNotFound, nil)
		return nil, ErrOTCNotFound
	}

	res := flows.RunRedeem(context.WithoutCancel(ctx), normalized, e.flowDeps.Redeem)

	if res.Failure != flows.RedeemFailureNone && res.Failure != flows.RedeemFailureIssueAccess {
		err := redeemError(res)
		e.metricInc(MetricOTCRedeemFailure)
		e.emitAudit(ctx, auditEventOTCRedeemFailure, false, res.UserID, err, func() map[string]string {
			if res.Action == "" {
				return nil
			}
			return map[string]string{"action": string(res.Action)}
		})
		if KindOf(err) == KindInternal {
			e.logger.Error("otc redemption failed",
				zap.Int64("user_id", res.UserID),
				zap.String("action", string(res.Action)),
				zap.Error(res.Err),
			)
		}
		return nil, err
	}

	// The mutation committed. A missing token only means the client keeps
	// its current Bearer until the next rotation.
	if res.Failure == flows.RedeemFailureIssueAccess {
		e.logger.Warn("access token after update not issued",
			zap.Int64("user_id", res.UserID),
			zap.Error(res.Err),
		)
	}

	e.metricInc(MetricOTCRedeemed)
	switch res.Action {
	case otc.ActionUpdateAccount:
		e.metricInc(MetricAccountUpdated)
		e.emitAudit(ctx, auditEventAccountUpdated, true, res.UserID, nil, nil)
	case otc.ActionDeleteAccount:
		e.metricInc(MetricAccountDeleted)
	}
	e.emitAudit(ctx, auditEventOTCRedeemed, true, res.UserID, nil, func() map[string]string {
		return map[string]string{"action": string(res.Action)}
	})

	e.notifyApplied(ctx, res)

	return &RedeemResult{
		Action:      res.Action,
		UserID:      res.UserID,
		Identity:    res.Identity,
		AccessToken: res.AccessToken,
	}, nil
}

// notifyApplied mails a best-effort notice after a successful redemption.
// Deleted accounts get none.
func (e *Engine) notifyApplied(ctx context.Context, res flows.RedeemResult) {
	if res.Action == otc.ActionDeleteAccount {
		return
	}
	to := res.Identity
	if to == nil {
		id, err := e.lookupIdentity(ctx, res.UserID)
		if err != nil {
			return
		}
		to = &id
	}
	_ = e.send(ctx, MessageActionApplied, *to, "")
}

func redeemError(res flows.RedeemResult) error {
	switch res.Failure {
	case flows.RedeemFailureNotFound:
		return ErrOTCNotFound
	case flows.RedeemFailureUserMissing:
		return ErrUserNotFound
	case flows.RedeemFailureStore:
		return storeErr(res.Err)
	case flows.RedeemFailureMutation:
		return userStoreErr(res.Err)
	default:
		return fmt.Errorf("%w: %v", ErrInternalFailure, res.Err)
	}
}

// checkLimit maps a limiter result onto the engine taxonomy. Limiter
// backend failures fail closed.
func (e *Engine) checkLimit(ctx context.Context, err error, scope string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRedeemRateLimited),
		errors.Is(err, limiters.ErrIssueRateLimited),
		errors.Is(err, limiters.ErrResetRateLimited):
		e.emitRateLimit(ctx, scope)
		return ErrRateLimited
	default:
		return storeErr(err)
	}
}
