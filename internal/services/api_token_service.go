package services

import (
	"context"
	"time"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/repositories"
)

// APITokenService issues and manages long-lived API tokens. The plaintext
// token is returned exactly once, at creation; only its digest and display
// prefix are stored.
type APITokenService struct {
	tokens  *repositories.APITokenRepository
	manager *auth.APITokenManager
}

func NewAPITokenService(tokens *repositories.APITokenRepository, manager *auth.APITokenManager) *APITokenService {
	return &APITokenService{tokens: tokens, manager: manager}
}

// CreatedToken carries the one-time plaintext alongside the stored record.
type CreatedToken struct {
	Token *models.APIToken
	Plain string
}

func (s *APITokenService) Create(ctx context.Context, userID, name string, expiresAt *time.Time) (*CreatedToken, error) {
	if name == "" {
		return nil, models.ErrBadRequest
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, models.ErrBadRequest
	}

	plain, hash, err := s.manager.Generate()
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Create(ctx, &models.APIToken{
		UserID:    userID,
		Name:      name,
		TokenHash: hash,
		Prefix:    s.manager.DisplayPrefix(plain),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	return &CreatedToken{Token: token, Plain: plain}, nil
}

func (s *APITokenService) List(ctx context.Context, userID string) ([]*models.APIToken, error) {
	return s.tokens.ListByUserID(ctx, userID)
}

func (s *APITokenService) Revoke(ctx context.Context, userID, tokenID string) error {
	return s.tokens.Revoke(ctx, tokenID, userID)
}
