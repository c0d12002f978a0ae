package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/methods"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/session"
	"github.com/marenbeck/gatehouse/internal/twofactor"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

// memStore is an in-memory session.Store for tests.
type memStore struct {
	data map[string]map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]string)}
}

func (s *memStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	return s.data[sessionID][key], nil
}

func (s *memStore) Put(ctx context.Context, sessionID, key, value string) error {
	if s.data[sessionID] == nil {
		s.data[sessionID] = make(map[string]string)
	}
	s.data[sessionID][key] = value
	return nil
}

func (s *memStore) Forget(ctx context.Context, sessionID string, keys ...string) error {
	for _, key := range keys {
		delete(s.data[sessionID], key)
	}
	return nil
}

func (s *memStore) Regenerate(ctx context.Context, sessionID string) (string, error) {
	newID, err := session.NewSessionID()
	if err != nil {
		return "", err
	}
	s.data[newID] = s.data[sessionID]
	delete(s.data, sessionID)
	return newID, nil
}

func (s *memStore) Destroy(ctx context.Context, sessionID string) error {
	delete(s.data, sessionID)
	return nil
}

type mockUserStore struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}

type mockProfileStore struct {
	GetByUserIDFunc         func(ctx context.Context, userID string) (*models.UserAuthProfile, error)
	ConsumeRecoveryCodeFunc func(ctx context.Context, userID, codeHash string) (bool, error)
	CountRecoveryCodesFunc  func(ctx context.Context, userID string) (int, error)
}

func (m *mockProfileStore) GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
	return m.GetByUserIDFunc(ctx, userID)
}

func (m *mockProfileStore) ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	return m.ConsumeRecoveryCodeFunc(ctx, userID, codeHash)
}

func (m *mockProfileStore) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	if m.CountRecoveryCodesFunc == nil {
		return 8, nil
	}
	return m.CountRecoveryCodesFunc(ctx, userID)
}

// stubMethod is a primary method with scripted behavior.
type stubMethod struct {
	name     string
	identity *methods.Identity
	err      error
}

func (s *stubMethod) Name() string                        { return s.name }
func (s *stubMethod) CanHandle(req *methods.Request) bool { return true }
func (s *stubMethod) Validate(req *methods.Request) error { return nil }
func (s *stubMethod) Authenticate(ctx context.Context, panel models.Panel, req *methods.Request) (*methods.Identity, error) {
	return s.identity, s.err
}

// stubDriver is a second-factor driver with scripted behavior.
type stubDriver struct {
	name      string
	sends     bool
	sendCalls int
	sendErr   error
	verifyOK  bool
	verifyErr error
}

func (d *stubDriver) Name() string  { return d.name }
func (d *stubDriver) Label() string { return d.name }
func (d *stubDriver) Enable(ctx context.Context, user *models.User) (*twofactor.SetupData, error) {
	return &twofactor.SetupData{Method: d.name}, nil
}
func (d *stubDriver) Verify(ctx context.Context, user *models.User, profile *models.UserAuthProfile, code string) (bool, error) {
	return d.verifyOK, d.verifyErr
}
func (d *stubDriver) Send(ctx context.Context, user *models.User) error {
	d.sendCalls++
	return d.sendErr
}
func (d *stubDriver) RequiresSending() bool      { return d.sends }
func (d *stubDriver) RequiresConfirmation() bool { return true }

type fixture struct {
	orch     *Orchestrator
	sessions *memStore
	driver   *stubDriver
	tokens   *auth.ChallengeTokenManager
}

func confirmedProfile(userID, method string) *models.UserAuthProfile {
	now := time.Now()
	return &models.UserAuthProfile{
		UserID:               userID,
		PasswordHash:         "$2a$12$hash",
		TwoFactorEnabled:     true,
		TwoFactorMethod:      method,
		TwoFactorConfirmedAt: &now,
	}
}

func newFixture(t *testing.T, method methods.Method, profile *models.UserAuthProfile, consume func(ctx context.Context, userID, codeHash string) (bool, error)) *fixture {
	t.Helper()

	sessions := newMemStore()
	driver := &stubDriver{name: "totp", verifyOK: true}
	tokens := auth.NewChallengeTokenManager("test-challenge-secret", 5*time.Minute)
	log := slog.Default()

	users := &mockUserStore{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Email: "user@example.com", Status: "active"}, nil
		},
	}
	profiles := &mockProfileStore{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
			if profile == nil {
				return nil, models.ErrNotFound
			}
			return profile, nil
		},
		ConsumeRecoveryCodeFunc: consume,
	}

	orch := New(
		methods.NewRegistry(method),
		twofactor.NewRegistry(driver),
		users, profiles, sessions, tokens,
		log, logger.NewAuditLogger(log),
	)

	return &fixture{orch: orch, sessions: sessions, driver: driver, tokens: tokens}
}

func panelWith2FA(enabled bool) models.Panel {
	return models.Panel{Name: "app", TwoFactorEnabled: enabled, LoginField: "email"}
}

func TestAttempt_NoMatchingMethod(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}}, nil, nil)

	// An empty registry resolves nothing.
	f.orch.methods = methods.NewRegistry()

	_, err := f.orch.Attempt(context.Background(), panelWith2FA(false), "sess1", &methods.Request{Method: "password"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAttempt_CredentialFailureIsGeneric(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: nil}, nil, nil)

	_, err := f.orch.Attempt(context.Background(), panelWith2FA(false), "sess1", &methods.Request{})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAttempt_NoTwoFactor_EstablishesSession(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1", Remember: true, Method: "password"}}, nil, nil)

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(false), "sess1", &methods.Request{})
	require.NoError(t, err)

	assert.Equal(t, StatusAuthenticated, result.Status)
	assert.Equal(t, "u1", result.UserID)
	assert.NotEqual(t, "sess1", result.SessionID, "session id must be regenerated")

	userID, _ := f.sessions.Get(context.Background(), result.SessionID, session.KeyUserID)
	assert.Equal(t, "u1", userID)
	remember, _ := f.sessions.Get(context.Background(), result.SessionID, session.KeyRemember)
	assert.Equal(t, "1", remember)

	// Ungated logins satisfy everything the gate asked for, so the
	// session marker is stamped here too.
	stamp, _ := f.sessions.Get(context.Background(), result.SessionID, session.KeyTwoFactorConfirmedAt)
	assert.NotEmpty(t, stamp)
}

func TestAttempt_GateRequiresPanelAndConfirmedProfile(t *testing.T) {
	tests := []struct {
		name          string
		panel2FA      bool
		profile       *models.UserAuthProfile
		wantChallenge bool
	}{
		{"panel on, profile confirmed", true, confirmedProfile("u1", "totp"), true},
		{"panel off, profile confirmed", false, confirmedProfile("u1", "totp"), false},
		{"panel on, no profile", true, nil, false},
		{"panel on, unconfirmed profile", true, &models.UserAuthProfile{
			UserID: "u1", TwoFactorEnabled: false, TwoFactorMethod: "totp",
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}}, tt.profile, nil)

			result, err := f.orch.Attempt(context.Background(), panelWith2FA(tt.panel2FA), "sess1", &methods.Request{})
			require.NoError(t, err)

			if tt.wantChallenge {
				assert.Equal(t, StatusChallenge, result.Status)
				assert.NotEmpty(t, result.ChallengeToken)
			} else {
				assert.Equal(t, StatusAuthenticated, result.Status)
			}
		})
	}
}

func TestAttempt_StrongFactorSkipsChallenge(t *testing.T) {
	f := newFixture(t,
		&stubMethod{name: "webauthn", identity: &methods.Identity{UserID: "u1", StrongFactor: true}},
		confirmedProfile("u1", "totp"), nil)

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)

	assert.Equal(t, StatusAuthenticated, result.Status)
	stamp, _ := f.sessions.Get(context.Background(), result.SessionID, session.KeyTwoFactorConfirmedAt)
	assert.NotEmpty(t, stamp)
}

func TestAttempt_Challenge_WritesPendingSlotAndSends(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1", Remember: true}},
		confirmedProfile("u1", "totp"), nil)
	f.driver.sends = true

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)

	assert.Equal(t, StatusChallenge, result.Status)
	assert.Equal(t, "sess1", result.SessionID, "challenge must not regenerate the session")
	assert.Equal(t, "totp", result.TwoFactorMethod)
	assert.Equal(t, 1, f.driver.sendCalls)

	pending, err := session.GetPending(context.Background(), f.sessions, "sess1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "u1", pending.UserID)
	assert.True(t, pending.Remember)

	// The session must not be authenticated yet.
	userID, _ := f.sessions.Get(context.Background(), "sess1", session.KeyUserID)
	assert.Empty(t, userID)

	claims, err := f.tokens.Validate(result.ChallengeToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "sess1", claims.SessionID)
}

func TestAttempt_AccountStateErrorPassesThrough(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", err: models.ErrAccountSuspended}, nil, nil)

	_, err := f.orch.Attempt(context.Background(), panelWith2FA(false), "sess1", &methods.Request{})
	assert.ErrorIs(t, err, models.ErrAccountSuspended)
}

func TestVerifySecondFactor_NoPendingChallenge(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password"}, confirmedProfile("u1", "totp"), nil)

	_, err := f.orch.VerifySecondFactor(context.Background(), panelWith2FA(true), "sess1", "", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestVerifySecondFactor_WrongCode(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}},
		confirmedProfile("u1", "totp"), nil)
	f.driver.verifyOK = false

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)
	require.Equal(t, StatusChallenge, result.Status)

	_, err = f.orch.VerifySecondFactor(context.Background(), panelWith2FA(true), "sess1", result.ChallengeToken, "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	// The pending slot survives a failed answer.
	pending, _ := session.GetPending(context.Background(), f.sessions, "sess1")
	assert.NotNil(t, pending)
}

func TestVerifySecondFactor_Success(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1", Remember: true}},
		confirmedProfile("u1", "totp"), nil)

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)

	verified, err := f.orch.VerifySecondFactor(context.Background(), panelWith2FA(true), "sess1", result.ChallengeToken, "123456")
	require.NoError(t, err)

	assert.Equal(t, StatusAuthenticated, verified.Status)
	assert.NotEqual(t, "sess1", verified.SessionID)

	userID, _ := f.sessions.Get(context.Background(), verified.SessionID, session.KeyUserID)
	assert.Equal(t, "u1", userID)
	remember, _ := f.sessions.Get(context.Background(), verified.SessionID, session.KeyRemember)
	assert.Equal(t, "1", remember)
	stamp, _ := f.sessions.Get(context.Background(), verified.SessionID, session.KeyTwoFactorConfirmedAt)
	assert.NotEmpty(t, stamp)

	pending, _ := session.GetPending(context.Background(), f.sessions, verified.SessionID)
	assert.Nil(t, pending)
}

func TestVerifySecondFactor_TokenBoundToOtherSession(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}},
		confirmedProfile("u1", "totp"), nil)

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)

	// Park another pending identity under a second session and replay the
	// first session's token against it.
	require.NoError(t, session.PutPending(context.Background(), f.sessions, "sess2", session.PendingAuth{UserID: "u1"}))

	_, err = f.orch.VerifySecondFactor(context.Background(), panelWith2FA(true), "sess2", result.ChallengeToken, "123456")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestVerifyRecoveryCode_SingleUse(t *testing.T) {
	used := make(map[string]bool)
	consume := func(ctx context.Context, userID, codeHash string) (bool, error) {
		if used[codeHash] {
			return false, nil
		}
		used[codeHash] = true
		return true, nil
	}

	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}},
		confirmedProfile("u1", "totp"), consume)

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)

	verified, err := f.orch.VerifyRecoveryCode(context.Background(), panelWith2FA(true), "sess1", result.ChallengeToken, "ABCD-EFGH-23")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, verified.Status)

	// Same code again, fresh challenge: the hash is spent.
	result2, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess9", &methods.Request{})
	require.NoError(t, err)

	_, err = f.orch.VerifyRecoveryCode(context.Background(), panelWith2FA(true), "sess9", result2.ChallengeToken, "abcd-efgh-23")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestVerifyRecoveryCode_NormalizesInput(t *testing.T) {
	var seen []string
	consume := func(ctx context.Context, userID, codeHash string) (bool, error) {
		seen = append(seen, codeHash)
		return true, nil
	}

	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}},
		confirmedProfile("u1", "totp"), consume)

	for i, code := range []string{"abcd-efgh-23", "ABCD EFGH 23", "ABCDEFGH23"} {
		sessionID := fmt.Sprintf("sess%d", i)
		result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), sessionID, &methods.Request{})
		require.NoError(t, err)
		_, err = f.orch.VerifyRecoveryCode(context.Background(), panelWith2FA(true), sessionID, result.ChallengeToken, code)
		require.NoError(t, err)
	}

	require.Len(t, seen, 3)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[0], seen[2])
}

func TestResendChallenge(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}},
		confirmedProfile("u1", "totp"), nil)
	f.driver.sends = true

	err := f.orch.ResendChallenge(context.Background(), "sess1")
	assert.ErrorIs(t, err, models.ErrNoPendingChallenge)

	_, err = f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)
	require.Equal(t, 1, f.driver.sendCalls)

	require.NoError(t, f.orch.ResendChallenge(context.Background(), "sess1"))
	assert.Equal(t, 2, f.driver.sendCalls)
}

func TestCancelChallenge(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}},
		confirmedProfile("u1", "totp"), nil)

	_, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)

	require.NoError(t, f.orch.CancelChallenge(context.Background(), "sess1"))

	pending, _ := session.GetPending(context.Background(), f.sessions, "sess1")
	assert.Nil(t, pending)

	_, err = f.orch.VerifySecondFactor(context.Background(), panelWith2FA(true), "sess1", "", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestAttempt_DriverVerifyError(t *testing.T) {
	f := newFixture(t, &stubMethod{name: "password", identity: &methods.Identity{UserID: "u1"}},
		confirmedProfile("u1", "totp"), nil)
	f.driver.verifyErr = errors.New("hsm unavailable")

	result, err := f.orch.Attempt(context.Background(), panelWith2FA(true), "sess1", &methods.Request{})
	require.NoError(t, err)

	_, err = f.orch.VerifySecondFactor(context.Background(), panelWith2FA(true), "sess1", result.ChallengeToken, "123456")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInvalidCode, "infrastructure failure must not look like a wrong code")
}
