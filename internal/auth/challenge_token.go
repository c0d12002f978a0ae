package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const challengeTokenType = "two_factor_challenge"

// ChallengeClaims are the claims carried by a second-factor challenge
// token. The token is returned to API clients after a successful primary
// factor and must accompany the verification request. It is bound to the
// session holding the pending slot; the slot stays authoritative and the
// token on its own never authenticates anything.
type ChallengeClaims struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// ChallengeTokenManager issues and validates short-lived signed challenge
// tokens.
type ChallengeTokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewChallengeTokenManager(secret string, ttl time.Duration) *ChallengeTokenManager {
	return &ChallengeTokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue creates a challenge token for the given user and session.
func (m *ChallengeTokenManager) Issue(userID, sessionID string) (string, error) {
	now := time.Now()
	claims := ChallengeClaims{
		Type:      challengeTokenType,
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a challenge token.
func (m *ChallengeTokenManager) Validate(tokenString string) (*ChallengeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChallengeClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid challenge token: %w", err)
	}

	claims, ok := token.Claims.(*ChallengeClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid challenge token claims")
	}
	if claims.Type != challengeTokenType {
		return nil, fmt.Errorf("unexpected token type %q", claims.Type)
	}

	return claims, nil
}
