package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost factors. Admin credentials guard more than one account, so they
// pay for a slower hash.
const (
	MemberHashCost = 10
	AdminHashCost  = 12
)

// dummyHash is a valid bcrypt digest of an unguessable string. Verification
// against a missing principal compares the supplied password with this digest
// so the miss path costs roughly the same as a real mismatch.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword hashes a plaintext password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored bcrypt hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// burnHash performs a comparison that is guaranteed to fail. Used to keep the
// unknown-identifier path from returning faster than the wrong-password path.
func burnHash(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}

// NewSalt returns a random hex salt. bcrypt embeds its own salt; this value is
// stored alongside the hash for schema compatibility with the legacy tables.
func NewSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
