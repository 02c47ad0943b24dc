package otc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/otcAuth/internal"
	"github.com/MrEthical07/otcAuth/store"
)

const (
	// DefaultTTL is the lifetime of an issued code.
	DefaultTTL = 600 * time.Second
	// CodeLength is the number of characters in a code.
	CodeLength = 6

	maxIssueAttempts = 5
)

var (
	// ErrNotFound is returned for unknown, expired or already consumed codes.
	ErrNotFound = errors.New("otc not found")
	// ErrCodeSpaceExhausted is returned when every drawn code collided with a live entry.
	ErrCodeSpaceExhausted = errors.New("otc code space exhausted")
)

// Registry issues and resolves one-time codes.
type Registry struct {
	store   store.TokenStore
	ttl     time.Duration
	newCode func(int) (string, error)
}

// NewRegistry returns a registry writing through ts. A non-positive ttl
// falls back to [DefaultTTL].
func NewRegistry(ts store.TokenStore, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{store: ts, ttl: ttl, newCode: internal.NewCode}
}

// TTL returns the lifetime applied to issued codes.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Issue binds a fresh code to p for userID and returns the code. The
// caller delivers it out of band.
func (r *Registry) Issue(ctx context.Context, userID int64, p Pending) (string, error) {
	return reserve(ctx, r.store, r.newCode, store.OTCKey, func(code string) (string, error) {
		payload, err := Marshal(Entry{Code: code, UserID: userID, Pending: p})
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}, r.ttl)
}

// Reserve draws codes until one can be written under key(code) without
// replacing a live entry, and returns that code. value renders what is
// stored for a drawn code. Stores without [store.Creator] accept the first
// draw unconditionally.
func Reserve(ctx context.Context, ts store.TokenStore, key func(string) string, value func(code string) (string, error), ttl time.Duration) (string, error) {
	return reserve(ctx, ts, internal.NewCode, key, value, ttl)
}

func reserve(
	ctx context.Context,
	ts store.TokenStore,
	newCode func(int) (string, error),
	key func(string) string,
	value func(string) (string, error),
	ttl time.Duration,
) (string, error) {
	creator, exclusive := ts.(store.Creator)

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code, err := newCode(CodeLength)
		if err != nil {
			return "", err
		}

		v, err := value(code)
		if err != nil {
			return "", err
		}

		if !exclusive {
			if err := ts.Set(ctx, key(code), v, ttl); err != nil {
				return "", err
			}
			return code, nil
		}

		ok, err := creator.SetIfAbsent(ctx, key(code), v, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}

	return "", ErrCodeSpaceExhausted
}

// Load resolves code without consuming it.
func (r *Registry) Load(ctx context.Context, code string) (Entry, error) {
	code, ok := Normalize(code)
	if !ok {
		return Entry{}, ErrNotFound
	}

	raw, found, err := r.store.Get(ctx, store.OTCKey(code))
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, ErrNotFound
	}

	entry, err := Unmarshal([]byte(raw))
	if err != nil {
		return Entry{}, err
	}
	if entry.Code != code {
		return Entry{}, fmt.Errorf("%w: code mismatch", ErrMalformed)
	}
	return entry, nil
}

// Consume deletes code so it cannot be redeemed again.
func (r *Registry) Consume(ctx context.Context, code string) error {
	code, ok := Normalize(code)
	if !ok {
		return nil
	}
	return r.store.Delete(ctx, store.OTCKey(code))
}

// Normalize trims and upper-cases user input and reports whether the
// result has the shape of a code.
func Normalize(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return code, internal.IsCode(code, CodeLength)
}
