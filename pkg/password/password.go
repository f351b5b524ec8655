// Package password hashes participant passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength is the longest password bcrypt accepts, in bytes.
const MaxLength = 72

// ErrTooLong is returned by Hash for passwords longer than MaxLength bytes.
var ErrTooLong = errors.New("password exceeds 72 bytes")

// Hasher hashes and verifies passwords. The salt is random per call and
// embedded in the encoded hash.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using the given bcrypt cost. Values outside
// bcrypt's accepted range fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the encoded bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > MaxLength {
		return "", ErrTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches hash. A malformed hash never
// matches.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
