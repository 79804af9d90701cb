// Package auth provides password hashing and session token generation
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMismatchedPassword is returned by Verify when the password does not match the hash
	ErrMismatchedPassword = errors.New("password does not match")
)

// Hasher turns passwords into storable hashes and checks them back
type Hasher interface {
	Hash(password string) (string, error)
	// Verify returns ErrMismatchedPassword when password does not
	// produce hash.
	Verify(hash, password string) error
}

// BcryptHasher hashes passwords with bcrypt
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher creates a hasher with the given cost. Costs outside
// bcrypt's range fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash returns the bcrypt hash of password
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares password against a bcrypt hash
func (h *BcryptHasher) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedPassword
	}
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	return nil
}

// NewSessionToken mints an opaque session id. The ULID prefix sorts
// tokens by creation time and carries the randomness; the suffix ties
// the token to the user and site it was issued for.
func NewSessionToken(username, siteName string, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	owner := sha256.Sum256([]byte(username + "\x00" + siteName))
	return id.String() + "." + hex.EncodeToString(owner[:8])
}
