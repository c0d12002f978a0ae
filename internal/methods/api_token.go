package methods

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
)

// TokenStore is the API token surface the method needs.
type TokenStore interface {
	GetActiveByHash(ctx context.Context, tokenHash string) (*models.APIToken, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// APITokenMethod authenticates a bearer API token. Tokens are compared
// by digest; the plaintext is never stored. Token auth is programmatic,
// so it counts as a strong factor and never enters an interactive
// challenge.
type APITokenMethod struct {
	tokens  TokenStore
	manager *auth.APITokenManager
	logger  *slog.Logger
}

func NewAPITokenMethod(tokens TokenStore, manager *auth.APITokenManager, logger *slog.Logger) *APITokenMethod {
	return &APITokenMethod{tokens: tokens, manager: manager, logger: logger}
}

func (m *APITokenMethod) Name() string { return NameAPIToken }

func (m *APITokenMethod) CanHandle(req *Request) bool {
	return req.APIToken != ""
}

func (m *APITokenMethod) Validate(req *Request) error {
	if strings.TrimSpace(req.APIToken) == "" {
		return models.ErrBadRequest
	}
	return nil
}

func (m *APITokenMethod) Authenticate(ctx context.Context, panel models.Panel, req *Request) (*Identity, error) {
	hash, err := m.manager.Hash(strings.TrimSpace(req.APIToken))
	if err != nil {
		// Malformed token: same outcome as an unknown one.
		return nil, nil
	}

	token, err := m.tokens.GetActiveByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := m.tokens.TouchLastUsed(ctx, token.ID); err != nil {
		m.logger.Warn("failed to record api token use", slog.Any("error", err))
	}

	return &Identity{
		UserID:       token.UserID,
		StrongFactor: true,
		Method:       NameAPIToken,
	}, nil
}
