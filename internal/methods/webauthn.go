package methods

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/session"
)

// PasskeyStore is the credential surface the webauthn method needs.
type PasskeyStore interface {
	GetByID(ctx context.Context, id string) (*models.PasskeyCredential, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.PasskeyCredential, error)
	AdvanceSignCount(ctx context.Context, id string, newCount uint32) (bool, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// WebAuthnMethod completes a passkey assertion ceremony started by the
// options endpoint. A verified assertion is phishing-resistant proof of
// possession, so it counts as a strong factor.
type WebAuthnMethod struct {
	manager  *auth.WebAuthnManager
	users    UserStore
	passkeys PasskeyStore
	sessions session.Store
	logger   *slog.Logger
}

func NewWebAuthnMethod(manager *auth.WebAuthnManager, users UserStore, passkeys PasskeyStore, sessions session.Store, logger *slog.Logger) *WebAuthnMethod {
	return &WebAuthnMethod{manager: manager, users: users, passkeys: passkeys, sessions: sessions, logger: logger}
}

func (m *WebAuthnMethod) Name() string { return NameWebAuthn }

func (m *WebAuthnMethod) CanHandle(req *Request) bool {
	return req.Method == NameWebAuthn && req.HTTP != nil
}

func (m *WebAuthnMethod) Validate(req *Request) error {
	if req.HTTP == nil || req.SessionID == "" {
		return models.ErrBadRequest
	}
	return nil
}

func (m *WebAuthnMethod) Authenticate(ctx context.Context, panel models.Panel, req *Request) (*Identity, error) {
	raw, err := m.sessions.Get(ctx, req.SessionID, session.KeyWebAuthnCeremony)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	// The ceremony is single-use whether or not verification succeeds.
	if err := m.sessions.Forget(ctx, req.SessionID, session.KeyWebAuthnCeremony); err != nil {
		return nil, err
	}

	var ceremony auth.CeremonyState
	if err := json.Unmarshal([]byte(raw), &ceremony); err != nil {
		return nil, nil
	}

	user, err := m.users.GetByID(ctx, ceremony.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	creds, err := m.passkeys.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	credentialID, newSignCount, err := m.manager.FinishLogin(user, creds, ceremony.Session, req.HTTP)
	if err != nil {
		if errors.Is(err, models.ErrCredentialCloned) {
			m.logger.Warn("passkey clone suspected",
				slog.String("user_id", user.ID),
				slog.String("credential_id", credentialID))
		}
		return nil, nil
	}

	// Counter must advance. A stale or replayed counter loses the
	// conditional update and the assertion is rejected. Authenticators
	// that report a zero counter skip the check.
	if newSignCount > 0 {
		advanced, err := m.passkeys.AdvanceSignCount(ctx, credentialID, newSignCount)
		if err != nil {
			return nil, err
		}
		if !advanced {
			m.logger.Warn("passkey sign count did not advance",
				slog.String("user_id", user.ID),
				slog.String("credential_id", credentialID))
			return nil, nil
		}
	} else if err := m.passkeys.TouchLastUsed(ctx, credentialID); err != nil {
		m.logger.Warn("failed to record passkey use", slog.Any("error", err))
	}

	return &Identity{
		UserID:       user.ID,
		Remember:     req.Remember,
		StrongFactor: true,
		Method:       NameWebAuthn,
	}, nil
}
