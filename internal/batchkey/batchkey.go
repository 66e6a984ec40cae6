// Package batchkey checks the shared secret that authorizes batch runs.
package batchkey

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"golang.org/x/crypto/bcrypt"
)

const cost = 12

// Verifier compares keys against a stored bcrypt hash
type Verifier struct {
	hash []byte
}

// NewVerifier creates a Verifier, rejecting values that are not bcrypt hashes
func NewVerifier(hash string) (*Verifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid automated key hash: %w", err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Verify returns domain.ErrInvalidKey when key does not match
func (v *Verifier) Verify(key string) error {
	if key == "" {
		return domain.ErrInvalidKey
	}
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(key))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.ErrInvalidKey
	}
	if err != nil {
		return fmt.Errorf("failed to verify key: %w", err)
	}
	return nil
}

// Hash produces the value to store in the configuration
func Hash(key string) (string, error) {
	if key == "" {
		return "", errors.New("key must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
