// Package auth holds the credential and session machinery: bcrypt password
// hashing, signed session tokens, the server-side session store and the
// HTTP middleware that puts the caller's identity on the request context.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used in production.
//
// BCRYPT COST:
// Each +1 doubles the hashing time. 12 takes roughly 250ms on a modern
// CPU, which is unnoticeable for one login and ruinous for an attacker
// trying millions of guesses against a stolen users table.
const DefaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs are silently
// truncated by some implementations and rejected by x/crypto; refusing
// them up front gives a clear error instead of a surprise.
const maxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

type PasswordService struct {
	cost int
}

// NewPasswordService returns a service hashing at cost. Zero selects
// DefaultCost; anything outside bcrypt's accepted range is an error.
func NewPasswordService(cost int) (*PasswordService, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordService{cost: cost}, nil
}

// NewPasswordServiceForTest returns a service with the given cost and no
// validation. Other packages' tests use bcrypt.MinCost to stay fast.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext. The output embeds the
// algorithm version, cost and salt, so it is all Verify needs.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks plaintext against hash in constant time. A wrong password
// yields ErrPasswordMismatch; a malformed hash yields a wrapped error.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
