package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher with the given cost; a cost below the
// bcrypt minimum falls back to the library default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of the password
func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether the password matches the stored hash
func (h *BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// StrengthPolicy rejects passwords that are too short, entirely numeric, or
// on the common-password list.
type StrengthPolicy struct {
	MinLength int
}

// DefaultMinPasswordLength is the minimum accepted password length
const DefaultMinPasswordLength = 8

// NewStrengthPolicy creates a strength policy with the default minimum length
func NewStrengthPolicy() *StrengthPolicy {
	return &StrengthPolicy{MinLength: DefaultMinPasswordLength}
}

// A small built-in denylist; the full list lives with the deployment and can
// be layered on top of this policy.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"qwerty123":   {},
	"letmein123":  {},
	"iloveyou":    {},
	"admin123":    {},
	"welcome1":    {},
}

// Validate returns an error describing why the password is too weak, or nil
func (p *StrengthPolicy) Validate(password string) error {
	min := p.MinLength
	if min <= 0 {
		min = DefaultMinPasswordLength
	}
	if len(password) < min {
		return errors.New("this password is too short")
	}
	if isAllNumeric(password) {
		return errors.New("this password is entirely numeric")
	}
	if _, found := commonPasswords[strings.ToLower(password)]; found {
		return errors.New("this password is too common")
	}
	return nil
}

func isAllNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
