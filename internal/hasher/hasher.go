// Package hasher produces salted one-way hashes of plaintext strings.
package hasher

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPlaintextLen is the longest input bcrypt accepts, in bytes.
const MaxPlaintextLen = 72

// ErrTooLong is returned for plaintexts longer than MaxPlaintextLen.
var ErrTooLong = errors.New("plaintext exceeds 72 bytes")

// Hasher hashes with bcrypt at a fixed cost. Every call draws a new random
// salt, so hashing the same input twice yields different strings.
type Hasher struct {
	cost int
}

// New returns a Hasher using cost, falling back to bcrypt.DefaultCost when
// cost is outside bcrypt's accepted range.
func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPlaintextLen {
		return "", ErrTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hasher.Hash: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether hashed is a hash of plaintext.
func (h *Hasher) Verify(plaintext, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}
