package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/models"
)

// WebAuthnManager wraps the go-webauthn library behind the narrow contract
// the core needs: create options, verify ceremonies. Credential lookup and
// sign-counter enforcement stay in the repository layer.
type WebAuthnManager struct {
	wa  *webauthn.WebAuthn
	cfg config.WebAuthnConfig
}

func NewWebAuthnManager(cfg config.WebAuthnConfig) (*WebAuthnManager, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webauthn: %w", err)
	}
	return &WebAuthnManager{wa: wa, cfg: cfg}, nil
}

// CeremonyState is the pending WebAuthn ceremony stashed in the session
// between the options call and the verification call.
type CeremonyState struct {
	UserID  string               `json:"user_id"`
	Session webauthn.SessionData `json:"session"`
}

// passkeyUser adapts a user and their stored credentials to the library's
// user interface.
type passkeyUser struct {
	user  *models.User
	creds []*models.PasskeyCredential
}

func (u *passkeyUser) WebAuthnID() []byte          { return []byte(u.user.ID) }
func (u *passkeyUser) WebAuthnName() string        { return u.user.Email }
func (u *passkeyUser) WebAuthnDisplayName() string { return u.user.Name }

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(u.creds))
	for _, c := range u.creds {
		if !c.Usable() {
			continue
		}
		id, err := base64.RawURLEncoding.DecodeString(c.ID)
		if err != nil {
			continue
		}
		transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
		for _, t := range c.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		out = append(out, webauthn.Credential{
			ID:              id,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Transport:       transports,
			Flags: webauthn.CredentialFlags{
				BackupEligible: c.BackupEligible,
				BackupState:    c.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				AAGUID:    c.AAGUID,
				SignCount: c.SignCount,
			},
		})
	}
	return out
}

// BeginRegistration starts an attestation ceremony.
func (m *WebAuthnManager) BeginRegistration(user *models.User, creds []*models.PasskeyCredential) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	options, session, err := m.wa.BeginRegistration(&passkeyUser{user: user, creds: creds})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin registration: %w", err)
	}
	return options, session, nil
}

// FinishRegistration verifies an attestation response and returns the new
// credential to persist.
func (m *WebAuthnManager) FinishRegistration(user *models.User, creds []*models.PasskeyCredential, session webauthn.SessionData, r *http.Request) (*models.PasskeyCredential, error) {
	cred, err := m.wa.FinishRegistration(&passkeyUser{user: user, creds: creds}, session, r)
	if err != nil {
		return nil, fmt.Errorf("attestation verification failed: %w", err)
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}

	origin := ""
	if len(m.cfg.RPOrigins) > 0 {
		origin = m.cfg.RPOrigins[0]
	}

	return &models.PasskeyCredential{
		ID:              base64.RawURLEncoding.EncodeToString(cred.ID),
		UserID:          user.ID,
		RelyingPartyID:  m.cfg.RPID,
		Origin:          origin,
		PublicKey:       cred.PublicKey,
		SignCount:       cred.Authenticator.SignCount,
		Transports:      transports,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
		CreatedAt:       time.Now(),
	}, nil
}

// BeginLogin starts an assertion ceremony for the user's credentials.
func (m *WebAuthnManager) BeginLogin(user *models.User, creds []*models.PasskeyCredential) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	options, session, err := m.wa.BeginLogin(&passkeyUser{user: user, creds: creds})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin login: %w", err)
	}
	return options, session, nil
}

// FinishLogin verifies an assertion response. It returns the credential id
// and the authenticator's new sign count; a clone warning from the library
// is a hard failure. The caller must persist the counter with a
// conditional update so the check also holds under concurrent assertions.
func (m *WebAuthnManager) FinishLogin(user *models.User, creds []*models.PasskeyCredential, session webauthn.SessionData, r *http.Request) (credentialID string, newSignCount uint32, err error) {
	cred, err := m.wa.FinishLogin(&passkeyUser{user: user, creds: creds}, session, r)
	if err != nil {
		return "", 0, fmt.Errorf("assertion verification failed: %w", err)
	}

	if cred.Authenticator.CloneWarning {
		return "", 0, models.ErrCredentialCloned
	}

	return base64.RawURLEncoding.EncodeToString(cred.ID), cred.Authenticator.SignCount, nil
}
