package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	// RefreshCredentialBytes is the default entropy of a refresh credential (256 bits).
	RefreshCredentialBytes = 32
	// MinRefreshCredentialBytes is the lowest accepted entropy (128 bits).
	MinRefreshCredentialBytes = 16

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Reader is the entropy source for every helper in this file.
var Reader io.Reader = rand.Reader

// NewRefreshCredential returns size random bytes encoded as base64url
// without padding.
func NewRefreshCredential(size int) (string, error) {
	if size < MinRefreshCredentialBytes {
		return "", fmt.Errorf("refresh credential must carry at least %d bytes", MinRefreshCredentialBytes)
	}

	raw := make([]byte, size)
	if _, err := io.ReadFull(Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewCode returns a human-typable code of length characters drawn
// uniformly from [A-Z0-9].
func NewCode(length int) (string, error) {
	if length < 4 || length > 32 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// IsCode reports whether s has the shape produced by NewCode(length).
func IsCode(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
