package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// APITokenManager handles API token generation, hashing, and format checks.
type APITokenManager struct {
	prefix string
}

func NewAPITokenManager() *APITokenManager {
	return &APITokenManager{
		prefix: "gh_",
	}
}

// Generate creates a new API token in the format: gh_<64 hex chars>.
// Returns the plaintext token (shown once to the user) and the SHA-256
// hash stored in the database.
func (m *APITokenManager) Generate() (plainToken, hash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plainToken = m.prefix + hex.EncodeToString(randomBytes)
	hashBytes := sha256.Sum256([]byte(plainToken))
	hash = hex.EncodeToString(hashBytes[:])

	return plainToken, hash, nil
}

// Hash validates the token format and returns its SHA-256 hash.
func (m *APITokenManager) Hash(plainToken string) (string, error) {
	if !strings.HasPrefix(plainToken, m.prefix) {
		return "", errors.New("invalid API token format: missing prefix")
	}
	if len(plainToken) != len(m.prefix)+64 {
		return "", fmt.Errorf("invalid API token format: expected %d chars, got %d", len(m.prefix)+64, len(plainToken))
	}
	hashBytes := sha256.Sum256([]byte(plainToken))
	return hex.EncodeToString(hashBytes[:]), nil
}

// DisplayPrefix returns the first 10 characters of the token for listing.
func (m *APITokenManager) DisplayPrefix(plainToken string) string {
	if len(plainToken) < 10 {
		return plainToken
	}
	return plainToken[:10]
}
