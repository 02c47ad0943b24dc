package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every backend I/O failure.
	ErrUnavailable = errors.New("token store unavailable")
	// ErrNotFound is returned by Rotate when the source key does not exist.
	ErrNotFound = errors.New("token store key not found")
	// ErrInvalidTTL is returned when an entry would be written without expiry.
	ErrInvalidTTL = errors.New("token store ttl must be positive")
)

const (
	refreshPrefix    = "refresh:"
	otcPrefix        = "otc:"
	resetTokenPrefix = "reset-token:"
)

// TokenStore is the minimal contract every backend provides.
type TokenStore interface {
	// Get returns the value and true, or "", false when the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value under key, replacing any previous value, expiring after ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Rotator moves a value from oldKey to newKey in one atomic step: of any
// number of concurrent callers sharing oldKey, exactly one observes the value.
type Rotator interface {
	Rotate(ctx context.Context, oldKey, newKey string, ttl time.Duration) (string, error)
}

// Creator writes key only when it does not exist yet.
type Creator interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Sweeper deletes every key under prefix whose value equals value.
type Sweeper interface {
	DeleteByValue(ctx context.Context, prefix, value string) (int, error)
}

// RefreshKey returns the key of a refresh credential.
func RefreshKey(credential string) string { return refreshPrefix + credential }

// RefreshPrefix is the namespace of refresh credentials, for [Sweeper] calls.
func RefreshPrefix() string { return refreshPrefix }

// OTCKey returns the key of a one-time code.
func OTCKey(code string) string { return otcPrefix + code }

// ResetTokenKey returns the key of a password reset token.
func ResetTokenKey(code string) string { return resetTokenPrefix + code }
