package otcAuth

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	minPhoneDigits    = 10
	maxNameLength     = 100
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

func validateEmail(v *ValidationError, field, email string) {
	if !emailPattern.MatchString(email) || len(email) > 254 {
		v.add(field, "must be a valid email address")
	}
}

// validatePassword requires an upper-case letter, a digit and one of the
// special characters '-' or '!'.
func validatePassword(v *ValidationError, field, password string) {
	if len(password) < minPasswordLength {
		v.add(field, "must be at least 8 characters")
		return
	}
	if len(password) > maxPasswordLength {
		v.add(field, "must be at most 128 characters")
		return
	}
	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case r == '-' || r == '!':
			special = true
		}
	}
	if !upper || !digit || !special {
		v.add(field, "must contain an upper-case letter, a digit and one of - or !")
	}
}

// validatePhone accepts an empty value. Separators are ignored when
// counting digits.
func validatePhone(v *ValidationError, field, phone string) {
	if phone == "" {
		return
	}
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')':
		default:
			v.add(field, "must contain only digits and separators")
			return
		}
	}
	if digits < minPhoneDigits {
		v.add(field, "must contain at least 10 digits")
	}
}

func validateName(v *ValidationError, field, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		v.add(field, "must not be empty")
		return
	}
	if len(name) > maxNameLength {
		v.add(field, "must be at most 100 characters")
	}
}

func validateMatch(v *ValidationError, field, value, confirm string) {
	if value != confirm {
		v.add(field, "does not match")
	}
}
