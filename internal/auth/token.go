package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("missing adapter token")
	// ErrInvalidToken indicates the bearer token does not match the configured hash.
	ErrInvalidToken = errors.New("invalid adapter token")
)

// TokenVerifier checks the bearer token presented by a chat adapter against a
// bcrypt hash from configuration. The digest of the last accepted token is
// remembered so the bcrypt comparison runs once per token rather than once
// per request.
type TokenVerifier struct {
	hash []byte

	mu       sync.RWMutex
	accepted []byte
}

// NewTokenVerifier validates that hash is a bcrypt hash.
func NewTokenVerifier(hash string) (*TokenVerifier, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, errors.New("token hash must be provided")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.New("token hash is not a bcrypt hash")
	}
	return &TokenVerifier{hash: []byte(hash)}, nil
}

// Verify returns nil when token matches.
func (v *TokenVerifier) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))

	v.mu.RLock()
	accepted := v.accepted
	v.mu.RUnlock()
	if accepted != nil && subtle.ConstantTimeCompare(accepted, digest[:]) == 1 {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}

	v.mu.Lock()
	v.accepted = digest[:]
	v.mu.Unlock()
	return nil
}

// HashToken produces the bcrypt hash to put in configuration.
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
