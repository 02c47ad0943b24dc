package otc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action names a deferred account mutation on the wire.
type Action string

const (
	ActionConfirmAccount Action = "ConfirmAccount"
	ActionUpdateAccount  Action = "UpdateAccount"
	ActionDeleteAccount  Action = "DeleteAccount"
)

// ErrMalformed is returned when a stored payload cannot be decoded into a
// known variant.
var ErrMalformed = errors.New("malformed otc payload")

// Pending is a deferred account mutation.
type Pending interface {
	Action() Action
	pending()
}

// ConfirmAccount marks the user as confirmed.
type ConfirmAccount struct{}

// DeleteAccount removes the user and their refresh credentials.
type DeleteAccount struct{}

// UpdateAccount carries the fields to change. Nil means unchanged.
// PasswordHash is already hashed when the code is issued.
type UpdateAccount struct {
	Name         *string
	Email        *string
	Phone        *string
	PasswordHash *string
}

func (ConfirmAccount) Action() Action { return ActionConfirmAccount }
func (DeleteAccount) Action() Action  { return ActionDeleteAccount }
func (UpdateAccount) Action() Action  { return ActionUpdateAccount }

func (ConfirmAccount) pending() {}
func (DeleteAccount) pending()  {}
func (UpdateAccount) pending()  {}

// Empty reports whether u changes nothing.
func (u UpdateAccount) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.PasswordHash == nil
}

// ChangesIdentity reports whether u touches a field carried in access tokens.
func (u UpdateAccount) ChangesIdentity() bool {
	return u.Name != nil || u.Email != nil
}

// Entry is a decoded registry record.
type Entry struct {
	Code    string
	UserID  int64
	Pending Pending
}

type envelope struct {
	Code         string  `json:"otc"`
	UserID       int64   `json:"user_id"`
	Action       Action  `json:"action"`
	Name         *string `json:"name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Email        *string `json:"email,omitempty"`
	PasswordHash *string `json:"password_hash,omitempty"`
}

// Marshal encodes e as a flat JSON object keyed on "action".
func Marshal(e Entry) ([]byte, error) {
	if e.Pending == nil {
		return nil, fmt.Errorf("%w: nil pending action", ErrMalformed)
	}

	env := envelope{Code: e.Code, UserID: e.UserID, Action: e.Pending.Action()}
	switch p := e.Pending.(type) {
	case ConfirmAccount, DeleteAccount:
	case UpdateAccount:
		if p.Empty() {
			return nil, fmt.Errorf("%w: empty update", ErrMalformed)
		}
		env.Name, env.Email, env.Phone, env.PasswordHash = p.Name, p.Email, p.Phone, p.PasswordHash
	default:
		return nil, fmt.Errorf("%w: unknown variant %T", ErrMalformed, p)
	}

	return json.Marshal(env)
}

// Unmarshal decodes data produced by Marshal. Unknown actions, variant
// fields on a variant that does not carry them, and empty updates are
// rejected with [ErrMalformed].
func Unmarshal(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.UserID <= 0 {
		return Entry{}, fmt.Errorf("%w: missing user id", ErrMalformed)
	}

	hasFields := env.Name != nil || env.Email != nil || env.Phone != nil || env.PasswordHash != nil
	entry := Entry{Code: env.Code, UserID: env.UserID}

	switch env.Action {
	case ActionConfirmAccount:
		entry.Pending = ConfirmAccount{}
	case ActionDeleteAccount:
		entry.Pending = DeleteAccount{}
	case ActionUpdateAccount:
		if !hasFields {
			return Entry{}, fmt.Errorf("%w: empty update", ErrMalformed)
		}
		entry.Pending = UpdateAccount{
			Name:         env.Name,
			Email:        env.Email,
			Phone:        env.Phone,
			PasswordHash: env.PasswordHash,
		}
		return entry, nil
	default:
		return Entry{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, env.Action)
	}

	if hasFields {
		return Entry{}, fmt.Errorf("%w: %s carries update fields", ErrMalformed, env.Action)
	}
	return entry, nil
}
