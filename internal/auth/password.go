package auth

import (
	"errors"
	"fmt"

	"github.com/perfect-api/apiserver/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 10

// HasherConfig is the immutable hashing policy.
type HasherConfig struct {
	Cost int
}

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost  int
	dummy []byte
}

// NewPasswordHasher validates cfg and precomputes a digest used to keep
// failed lookups as slow as real comparisons.
func NewPasswordHasher(cfg HasherConfig) (*PasswordHasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("perfect_api:dummy"), cost)
	if err != nil {
		return nil, fmt.Errorf("precompute dummy digest: %w", err)
	}
	return &PasswordHasher{cost: cost, dummy: dummy}, nil
}

// Cost returns the configured bcrypt cost.
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt digest of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", apperr.Validation("Password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", apperr.ErrHashing.Wrap(err)
	}
	return string(hash), nil
}

// Verify reports whether password matches digest. A mismatch is (false, nil);
// any other bcrypt failure is a HashingError.
func (h *PasswordHasher) Verify(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, apperr.ErrHashing.Wrap(err)
	}
}

// Burn performs one comparison against the precomputed digest and discards
// the result.
func (h *PasswordHasher) Burn(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
