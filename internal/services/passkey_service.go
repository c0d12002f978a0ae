package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/repositories"
	"github.com/marenbeck/gatehouse/internal/session"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

// PasskeyService manages passkey credentials: registration ceremonies for
// signed-in users, assertion options for sign-in, and credential
// housekeeping. Ceremony state lives in the session between the options
// call and the verification call and is single-use.
type PasskeyService struct {
	manager  *auth.WebAuthnManager
	users    *repositories.UserRepository
	passkeys *repositories.PasskeyRepository
	sessions session.Store
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

func NewPasskeyService(manager *auth.WebAuthnManager, users *repositories.UserRepository, passkeys *repositories.PasskeyRepository, sessions session.Store, log *slog.Logger, audit *logger.AuditLogger) *PasskeyService {
	return &PasskeyService{
		manager:  manager,
		users:    users,
		passkeys: passkeys,
		sessions: sessions,
		logger:   log,
		audit:    audit,
	}
}

// BeginRegistration returns attestation options for the signed-in user
// and parks the ceremony in their session.
func (s *PasskeyService) BeginRegistration(ctx context.Context, sessionID, userID string) (*protocol.CredentialCreation, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	creds, err := s.passkeys.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	options, ceremony, err := s.manager.BeginRegistration(user, creds)
	if err != nil {
		return nil, err
	}

	if err := s.stashCeremony(ctx, sessionID, userID, ceremony); err != nil {
		return nil, err
	}

	return options, nil
}

// FinishRegistration verifies the attestation response and stores the new
// credential.
func (s *PasskeyService) FinishRegistration(ctx context.Context, sessionID, userID, alias string, r *http.Request) (*models.PasskeyCredential, error) {
	ceremony, err := s.takeCeremony(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ceremony == nil || ceremony.UserID != userID {
		return nil, models.ErrBadRequest
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	creds, err := s.passkeys.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	cred, err := s.manager.FinishRegistration(user, creds, ceremony.Session, r)
	if err != nil {
		s.audit.Log(logger.AuditEvent{
			EventType:     logger.EventPasskeyRejected,
			UserID:        userID,
			Success:       false,
			FailureReason: "attestation_failed",
		})
		return nil, models.ErrBadRequest
	}
	cred.Alias = alias

	created, err := s.passkeys.Create(ctx, cred)
	if err != nil {
		return nil, err
	}

	s.audit.Log(logger.AuditEvent{
		EventType: logger.EventPasskeyRegistered,
		UserID:    userID,
		Success:   true,
	})

	return created, nil
}

// BeginAssertion returns assertion options for the account behind the
// given email and parks the ceremony in the (anonymous) session. Unknown
// addresses and accounts without passkeys both return ErrNotFound; the
// handler translates that into a generic failure.
func (s *PasskeyService) BeginAssertion(ctx context.Context, sessionID, email string) (*protocol.CredentialAssertion, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	creds, err := s.passkeys.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	usable := 0
	for _, c := range creds {
		if c.Usable() {
			usable++
		}
	}
	if usable == 0 {
		return nil, models.ErrNotFound
	}

	options, ceremony, err := s.manager.BeginLogin(user, creds)
	if err != nil {
		return nil, err
	}

	if err := s.stashCeremony(ctx, sessionID, user.ID, ceremony); err != nil {
		return nil, err
	}

	return options, nil
}

// List returns the user's credentials.
func (s *PasskeyService) List(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
	return s.passkeys.GetByUserID(ctx, userID)
}

// Rename sets a credential's alias.
func (s *PasskeyService) Rename(ctx context.Context, userID, credentialID, alias string) error {
	return s.passkeys.SetAlias(ctx, credentialID, userID, alias)
}

// Remove deletes a credential owned by the user.
func (s *PasskeyService) Remove(ctx context.Context, userID, credentialID string) error {
	return s.passkeys.Delete(ctx, credentialID, userID)
}

func (s *PasskeyService) stashCeremony(ctx context.Context, sessionID, userID string, ceremony *webauthn.SessionData) error {
	raw, err := json.Marshal(auth.CeremonyState{UserID: userID, Session: *ceremony})
	if err != nil {
		return err
	}
	return s.sessions.Put(ctx, sessionID, session.KeyWebAuthnCeremony, string(raw))
}

func (s *PasskeyService) takeCeremony(ctx context.Context, sessionID string) (*auth.CeremonyState, error) {
	raw, err := s.sessions.Get(ctx, sessionID, session.KeyWebAuthnCeremony)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	if err := s.sessions.Forget(ctx, sessionID, session.KeyWebAuthnCeremony); err != nil {
		return nil, err
	}

	var state auth.CeremonyState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, errors.New("corrupt ceremony state")
	}
	return &state, nil
}
