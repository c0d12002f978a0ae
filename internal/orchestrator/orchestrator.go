// Package orchestrator drives the multi-step sign-in state machine: run a
// primary method, decide whether a second factor gates the login, park the
// identity in the pending slot, and promote it to an authenticated session
// once every required factor has passed.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/methods"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/session"
	"github.com/marenbeck/gatehouse/internal/twofactor"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

// Result statuses.
const (
	StatusAuthenticated = "authenticated"
	StatusChallenge     = "two_factor_challenge"
)

// Result is the outcome of a sign-in step. A challenge result carries the
// signed challenge token and the method the client must answer with; an
// authenticated result carries the regenerated session id.
type Result struct {
	Status             string
	SessionID          string
	UserID             string
	ChallengeToken     string
	TwoFactorMethod    string
	NeedsPasswordSetup bool
}

// UserStore is the user lookup surface the orchestrator needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ProfileStore is the profile surface the orchestrator needs.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error)
	ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error)
	CountRecoveryCodes(ctx context.Context, userID string) (int, error)
}

// Orchestrator owns the pending slot. Methods and drivers authenticate;
// only the orchestrator establishes sessions.
type Orchestrator struct {
	methods   *methods.Registry
	drivers   *twofactor.Registry
	users     UserStore
	profiles  ProfileStore
	sessions  session.Store
	challenge *auth.ChallengeTokenManager
	logger    *slog.Logger
	audit     *logger.AuditLogger
}

func New(methodRegistry *methods.Registry, drivers *twofactor.Registry, users UserStore, profiles ProfileStore, sessions session.Store, challenge *auth.ChallengeTokenManager, log *slog.Logger, audit *logger.AuditLogger) *Orchestrator {
	return &Orchestrator{
		methods:   methodRegistry,
		drivers:   drivers,
		users:     users,
		profiles:  profiles,
		sessions:  sessions,
		challenge: challenge,
		logger:    log,
		audit:     audit,
	}
}

// Attempt runs the primary factor for a login request. Every credential
// failure returns ErrInvalidCredentials with no further detail; account
// state errors pass through because the credentials were correct.
func (o *Orchestrator) Attempt(ctx context.Context, panel models.Panel, sessionID string, req *methods.Request) (*Result, error) {
	method := o.methods.ForRequest(req)
	if method == nil {
		o.auditFailure(panel, "", "", "no_method")
		return nil, models.ErrInvalidCredentials
	}

	if err := method.Validate(req); err != nil {
		return nil, err
	}

	identity, err := method.Authenticate(ctx, panel, req)
	if err != nil {
		if isAccountStateError(err) {
			o.auditFailure(panel, method.Name(), "", "account_state")
		}
		return nil, err
	}
	if identity == nil {
		o.auditFailure(panel, method.Name(), "", "invalid_credentials")
		return nil, models.ErrInvalidCredentials
	}

	profile, err := o.profiles.GetByUserID(ctx, identity.UserID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if o.requiresSecondFactor(panel, profile, identity) {
		return o.beginChallenge(ctx, panel, sessionID, identity, profile)
	}

	return o.establish(ctx, panel, sessionID, identity)
}

// requiresSecondFactor applies the gate: the panel must enable 2FA, the
// user must have a confirmed method, and the primary factor must not
// already be strong.
func (o *Orchestrator) requiresSecondFactor(panel models.Panel, profile *models.UserAuthProfile, identity *methods.Identity) bool {
	if !panel.TwoFactorEnabled || identity.StrongFactor {
		return false
	}
	return profile != nil && profile.TwoFactorConfirmed()
}

func (o *Orchestrator) beginChallenge(ctx context.Context, panel models.Panel, sessionID string, identity *methods.Identity, profile *models.UserAuthProfile) (*Result, error) {
	driver := o.drivers.Resolve(profile.TwoFactorMethod)
	if driver == nil {
		// A confirmed method without a registered driver is a deployment
		// bug; fail closed rather than skipping the factor.
		o.logger.Error("no driver for confirmed two-factor method",
			slog.String("user_id", identity.UserID),
			slog.String("method", profile.TwoFactorMethod))
		return nil, models.ErrInternalServer
	}

	err := session.PutPending(ctx, o.sessions, sessionID, session.PendingAuth{
		UserID:   identity.UserID,
		Remember: identity.Remember,
	})
	if err != nil {
		return nil, err
	}

	token, err := o.challenge.Issue(identity.UserID, sessionID)
	if err != nil {
		return nil, err
	}

	if driver.RequiresSending() {
		user, err := o.users.GetByID(ctx, identity.UserID)
		if err != nil {
			return nil, err
		}
		if err := driver.Send(ctx, user); err != nil {
			return nil, err
		}
	}

	o.audit.Log(logger.AuditEvent{
		EventType: logger.EventTwoFactorChallenged,
		UserID:    identity.UserID,
		Panel:     panel.Name,
		Method:    driver.Name(),
		Success:   true,
	})

	return &Result{
		Status:          StatusChallenge,
		SessionID:       sessionID,
		UserID:          identity.UserID,
		ChallengeToken:  token,
		TwoFactorMethod: driver.Name(),
	}, nil
}

// VerifySecondFactor answers a pending challenge with a driver code. A
// missing slot, an unknown user, a driver mismatch, and a wrong code all
// return ErrInvalidCode so a caller cannot probe which stage failed.
func (o *Orchestrator) VerifySecondFactor(ctx context.Context, panel models.Panel, sessionID, challengeToken, code string) (*Result, error) {
	pending, user, profile, err := o.loadChallenge(ctx, sessionID, challengeToken)
	if err != nil {
		return nil, err
	}

	driver := o.drivers.Resolve(profile.TwoFactorMethod)
	if driver == nil {
		return nil, models.ErrInvalidCode
	}

	ok, err := driver.Verify(ctx, user, profile, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		o.audit.Log(logger.AuditEvent{
			EventType:     logger.EventTwoFactorFailed,
			UserID:        user.ID,
			Panel:         panel.Name,
			Method:        driver.Name(),
			Success:       false,
			FailureReason: "invalid_code",
		})
		return nil, models.ErrInvalidCode
	}

	o.audit.Log(logger.AuditEvent{
		EventType: logger.EventTwoFactorVerified,
		UserID:    user.ID,
		Panel:     panel.Name,
		Method:    driver.Name(),
		Success:   true,
	})

	return o.establish(ctx, panel, sessionID, &methods.Identity{
		UserID:       user.ID,
		Remember:     pending.Remember,
		StrongFactor: true,
	})
}

// VerifyRecoveryCode answers a pending challenge with a single-use
// recovery code. Consumption is atomic: a replayed code finds no row and
// fails like a wrong one.
func (o *Orchestrator) VerifyRecoveryCode(ctx context.Context, panel models.Panel, sessionID, challengeToken, code string) (*Result, error) {
	pending, user, _, err := o.loadChallenge(ctx, sessionID, challengeToken)
	if err != nil {
		return nil, err
	}

	normalized := normalizeRecoveryCode(code)
	consumed, err := o.profiles.ConsumeRecoveryCode(ctx, user.ID, auth.HashCode(normalized))
	if err != nil {
		return nil, err
	}
	if !consumed {
		o.audit.Log(logger.AuditEvent{
			EventType:     logger.EventTwoFactorFailed,
			UserID:        user.ID,
			Panel:         panel.Name,
			Method:        "recovery_code",
			Success:       false,
			FailureReason: "invalid_code",
		})
		return nil, models.ErrInvalidCode
	}

	o.audit.Log(logger.AuditEvent{
		EventType: logger.EventRecoveryCodeUsed,
		UserID:    user.ID,
		Panel:     panel.Name,
		Method:    "recovery_code",
		Success:   true,
	})

	if remaining, err := o.profiles.CountRecoveryCodes(ctx, user.ID); err == nil && remaining <= 2 {
		o.logger.Warn("recovery codes running low",
			slog.String("user_id", user.ID),
			slog.Int("remaining", remaining))
	}

	return o.establish(ctx, panel, sessionID, &methods.Identity{
		UserID:       user.ID,
		Remember:     pending.Remember,
		StrongFactor: true,
	})
}

// ResendChallenge delivers a fresh code for a pending challenge whose
// driver delivers codes.
func (o *Orchestrator) ResendChallenge(ctx context.Context, sessionID string) error {
	pending, err := session.GetPending(ctx, o.sessions, sessionID)
	if err != nil {
		return err
	}
	if pending == nil {
		return models.ErrNoPendingChallenge
	}

	user, err := o.users.GetByID(ctx, pending.UserID)
	if err != nil {
		return err
	}

	profile, err := o.profiles.GetByUserID(ctx, pending.UserID)
	if err != nil {
		return err
	}
	if !profile.TwoFactorConfirmed() {
		return models.ErrNoPendingChallenge
	}

	driver := o.drivers.Resolve(profile.TwoFactorMethod)
	if driver == nil || !driver.RequiresSending() {
		return models.ErrBadRequest
	}

	return driver.Send(ctx, user)
}

// CancelChallenge abandons a pending challenge without establishing
// anything.
func (o *Orchestrator) CancelChallenge(ctx context.Context, sessionID string) error {
	return session.ClearPending(ctx, o.sessions, sessionID)
}

// EstablishSession promotes an identity that was verified outside the
// login state machine, such as a just-completed registration OTP. It runs
// the same promotion as any login: regenerated id, stamped keys.
func (o *Orchestrator) EstablishSession(ctx context.Context, panel models.Panel, sessionID string, identity *methods.Identity) (*Result, error) {
	return o.establish(ctx, panel, sessionID, identity)
}

// Logout destroys the session entirely.
func (o *Orchestrator) Logout(ctx context.Context, sessionID string) error {
	return o.sessions.Destroy(ctx, sessionID)
}

// loadChallenge resolves the pending slot plus the user and profile behind
// it. Every way it can fail maps to ErrInvalidCode; the caller must not be
// able to distinguish a missing challenge from a wrong answer. When a
// challenge token is supplied it must be valid and bound to this session
// and pending user, but the slot stays authoritative.
func (o *Orchestrator) loadChallenge(ctx context.Context, sessionID, challengeToken string) (*session.PendingAuth, *models.User, *models.UserAuthProfile, error) {
	pending, err := session.GetPending(ctx, o.sessions, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if pending == nil {
		return nil, nil, nil, models.ErrInvalidCode
	}

	if challengeToken != "" {
		claims, err := o.challenge.Validate(challengeToken)
		if err != nil || claims.SessionID != sessionID || claims.UserID != pending.UserID {
			return nil, nil, nil, models.ErrInvalidCode
		}
	}

	user, err := o.users.GetByID(ctx, pending.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, nil, models.ErrInvalidCode
		}
		return nil, nil, nil, err
	}

	profile, err := o.profiles.GetByUserID(ctx, pending.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, nil, models.ErrInvalidCode
		}
		return nil, nil, nil, err
	}
	if !profile.TwoFactorConfirmed() {
		return nil, nil, nil, models.ErrInvalidCode
	}

	return pending, user, profile, nil
}

// establish promotes an identity to an authenticated session: clear the
// pending slot, regenerate the session id against fixation, and stamp the
// authenticated keys.
func (o *Orchestrator) establish(ctx context.Context, panel models.Panel, sessionID string, identity *methods.Identity) (*Result, error) {
	if err := session.ClearPending(ctx, o.sessions, sessionID); err != nil {
		return nil, err
	}

	newID, err := o.sessions.Regenerate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := o.sessions.Put(ctx, newID, session.KeyUserID, identity.UserID); err != nil {
		return nil, err
	}
	remember := "0"
	if identity.Remember {
		remember = "1"
	}
	if err := o.sessions.Put(ctx, newID, session.KeyRemember, remember); err != nil {
		return nil, err
	}
	// Every transition to authenticated satisfies all factors the gate
	// asked for, so the session-scoped marker is stamped regardless of
	// how strong the primary factor was.
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := o.sessions.Put(ctx, newID, session.KeyTwoFactorConfirmedAt, stamp); err != nil {
		return nil, err
	}

	o.audit.Log(logger.AuditEvent{
		EventType: logger.EventLoginSuccess,
		UserID:    identity.UserID,
		Panel:     panel.Name,
		Method:    identity.Method,
		Success:   true,
	})

	return &Result{
		Status:             StatusAuthenticated,
		SessionID:          newID,
		UserID:             identity.UserID,
		NeedsPasswordSetup: identity.NeedsPasswordSetup,
	}, nil
}

func (o *Orchestrator) auditFailure(panel models.Panel, method, userID, reason string) {
	o.audit.Log(logger.AuditEvent{
		EventType:     logger.EventLoginFailed,
		UserID:        userID,
		Panel:         panel.Name,
		Method:        method,
		Success:       false,
		FailureReason: reason,
	})
}

func isAccountStateError(err error) bool {
	return errors.Is(err, models.ErrAccountDisabled) ||
		errors.Is(err, models.ErrAccountSuspended) ||
		errors.Is(err, models.ErrEmailNotVerified)
}

// normalizeRecoveryCode strips the separators users paste along with a
// code and upcases it to match the generated alphabet.
func normalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
