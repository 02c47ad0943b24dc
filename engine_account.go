package otcAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/otcAuth/otc"
	"go.uber.org/zap"
)

// RegisterInput is the sign-up form. Password is plaintext.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// Register describes the register operation and its observable behavior.
//
// Register validates in, creates an unconfirmed account and mails a
// ConfirmAccount code to the new address. A taken email returns
// ErrConflict. The account cannot log in until the code is redeemed.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)

	v := &ValidationError{}
	validateName(v, "name", in.Name)
	validateEmail(v, "email", in.Email)
	validatePhone(v, "phone", in.Phone)
	validatePassword(v, "password", in.Password)
	if err := v.orNil(); err != nil {
		return nil, err
	}

	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashingFailure, err)
	}

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
	})
	if err != nil {
		err = userStoreErr(err)
		if errors.Is(err, ErrConflict) {
			e.metricInc(MetricAccountDuplicate)
		}
		e.emitAudit(ctx, auditEventAccountCreateFailure, false, 0, err, nil)
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, user.ID, nil, nil)

	if err := e.issueAndSend(ctx, user, otc.ConfirmAccount{}, MessageConfirmAccount); err != nil {
		e.logger.Error("confirmation code not delivered", zap.Int64("user_id", user.ID), zap.Error(err))
		return &user, err
	}
	return &user, nil
}

// ResendConfirmation mails a fresh ConfirmAccount code to an unconfirmed
// account. Unknown and already confirmed emails succeed silently.
func (e *Engine) ResendConfirmation(ctx context.Context, email string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	v := &ValidationError{}
	validateEmail(v, "email", email)
	if err := v.orNil(); err != nil {
		return err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return userStoreErr(err)
	}
	if user.Confirmed {
		return nil
	}
	return e.issueAndSend(ctx, user, otc.ConfirmAccount{}, MessageConfirmAccount)
}

// GetUser returns the account of an authenticated caller.
func (e *Engine) GetUser(ctx context.Context, userID int64) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, userStoreErr(err)
	}
	return &user, nil
}

// AccountUpdate is a partial account change. Nil fields are left alone.
// Email and Password need their confirmation field set to the same value.
type AccountUpdate struct {
	Name            *string
	Phone           *string
	Email           *string
	EmailConfirm    *string
	Password        *string
	PasswordConfirm *string
}

func (u AccountUpdate) sensitive() bool {
	return u.Email != nil || u.Password != nil
}

// AccountUpdateResult reports how an update was applied.
type AccountUpdateResult struct {
	User User
	// OTCSent is true when the change waits for an UpdateAccount code
	// mailed to the current address. User is then unchanged.
	OTCSent bool
	// AccessToken is a new Bearer value when a direct update changed the name.
	AccessToken string
}

// UpdateAccount describes the updateaccount operation and its observable behavior.
//
// Name and phone changes apply immediately. A change of email or password
// is deferred: the new values (the password already hashed) are bound to
// an UpdateAccount code mailed to the current address, together with any
// name or phone change in the same request.
func (e *Engine) UpdateAccount(ctx context.Context, userID int64, in AccountUpdate) (*AccountUpdateResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	if err := validateAccountUpdate(&in); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, userStoreErr(err)
	}

	pending := otc.UpdateAccount{Name: in.Name, Phone: in.Phone}

	if !in.sensitive() {
		if err := e.users.UpdateUser(ctx, userID, UserUpdate{Name: in.Name, Phone: in.Phone}); err != nil {
			return nil, userStoreErr(err)
		}
		updated, err := e.users.GetUserByID(ctx, userID)
		if err != nil {
			return nil, userStoreErr(err)
		}

		result := &AccountUpdateResult{User: updated}
		if pending.ChangesIdentity() {
			access, err := e.issueAccess(updated.identity())
			if err != nil {
				e.logger.Warn("access token after update not issued", zap.Int64("user_id", userID), zap.Error(err))
			} else {
				result.AccessToken = access
			}
		}

		e.metricInc(MetricAccountUpdated)
		e.emitAudit(ctx, auditEventAccountUpdated, true, userID, nil, nil)
		return result, nil
	}

	if in.Email != nil && !strings.EqualFold(*in.Email, user.Email) {
		other, err := e.users.GetUserByEmail(ctx, *in.Email)
		switch {
		case err == nil && other.ID != userID:
			return nil, ErrConflict
		case err != nil && !errors.Is(err, ErrUserNotFound):
			return nil, userStoreErr(err)
		}
		pending.Email = in.Email
	}
	if in.Password != nil {
		hash, err := e.passwordHash.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHashingFailure, err)
		}
		pending.PasswordHash = &hash
	}

	if pending.Empty() {
		return &AccountUpdateResult{User: user}, nil
	}

	if err := e.issueAndSend(ctx, user, pending, MessageUpdateAccount); err != nil {
		return nil, err
	}
	return &AccountUpdateResult{User: user, OTCSent: true}, nil
}

func validateAccountUpdate(in *AccountUpdate) error {
	v := &ValidationError{}

	if in.Name == nil && in.Phone == nil && in.Email == nil && in.Password == nil {
		v.add("body", "no changes requested")
		return v
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
		validateName(v, "name", name)
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		in.Phone = &phone
		validatePhone(v, "phone", phone)
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		in.Email = &email
		validateEmail(v, "email", email)
		if in.EmailConfirm == nil {
			v.add("email_confirm", "is required")
		} else {
			validateMatch(v, "email_confirm", email, strings.TrimSpace(*in.EmailConfirm))
		}
	}
	if in.Password != nil {
		validatePassword(v, "password", *in.Password)
		if in.PasswordConfirm == nil {
			v.add("password_confirm", "is required")
		} else {
			validateMatch(v, "password_confirm", *in.Password, *in.PasswordConfirm)
		}
	}

	return v.orNil()
}

// RequestDeletion mails a DeleteAccount code. The account and its refresh
// credentials are removed when the code is redeemed.
func (e *Engine) RequestDeletion(ctx context.Context, userID int64) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return userStoreErr(err)
	}
	return e.issueAndSend(ctx, user, otc.DeleteAccount{}, MessageDeleteAccount)
}
