// Package auth verifies the admin API token. The configured token is either
// the plain value or a bcrypt hash of it.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var (
	// ErrEmptyToken is returned when an empty token is provided.
	ErrEmptyToken = errors.New("token cannot be empty")

	// ErrInvalidToken is returned when the presented token does not match.
	ErrInvalidToken = errors.New("invalid token")
)

// HashToken hashes a token with bcrypt cost 12.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}

	return string(hash), nil
}

// IsHashed reports whether configured looks like a bcrypt hash.
func IsHashed(configured string) bool {
	return strings.HasPrefix(configured, "$2a$") ||
		strings.HasPrefix(configured, "$2b$") ||
		strings.HasPrefix(configured, "$2y$")
}

// VerifyToken compares a presented token with the configured one.
// Returns nil if it matches.
func VerifyToken(configured, presented string) error {
	if configured == "" || presented == "" {
		return ErrEmptyToken
	}

	if !IsHashed(configured) {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
			return ErrInvalidToken
		}
		return nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidToken
		}
		return fmt.Errorf("verifying token: %w", err)
	}

	return nil
}
