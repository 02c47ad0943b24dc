package otcAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/otcAuth/internal/flows"
	"github.com/MrEthical07/otcAuth/jwt"
)

// User is the persisted account record.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Confirmed    bool      `json:"is_confirmed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the subset of a user carried in access tokens.
type Identity = flows.Identity

// Claims is the decoded access token of an authenticated request.
type Claims = jwt.Claims

// CreateUserInput is what Register hands to UserStore.CreateUser. The
// password is already hashed.
type CreateUserInput struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
}

// UserUpdate is a partial update; nil fields are left unchanged.
type UserUpdate struct {
	Name         *string
	Email        *string
	Phone        *string
	PasswordHash *string
}

// UserStore is the persistence contract the engine needs. Implementations
// return ErrUserNotFound for a missing user and ErrConflict when an email
// is already taken. Emails are compared case-insensitively.
type UserStore interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ConfirmUser(ctx context.Context, id int64) error
	UpdateUser(ctx context.Context, id int64, update UserUpdate) error
	DeleteUser(ctx context.Context, id int64) error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (u User) identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, Email: u.Email}
}
