package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/config"
	"github.com/marenbeck/gatehouse/internal/methods"
	"github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/orchestrator"
	"github.com/marenbeck/gatehouse/internal/services"
	"github.com/marenbeck/gatehouse/internal/session"
	"github.com/marenbeck/gatehouse/internal/twofactor"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSession puts a session id on the request context, as the session
// middleware would.
func WithSession(req *http.Request, sessionID string) *http.Request {
	return req.WithContext(middleware.WithSessionID(req.Context(), sessionID))
}

// WithUser marks the request as authenticated, as RequireUser would.
func WithUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MemSessionStore is an in-memory session.Store for handler tests.
type MemSessionStore struct {
	Data map[string]map[string]string
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{Data: make(map[string]map[string]string)}
}

func (s *MemSessionStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	return s.Data[sessionID][key], nil
}

func (s *MemSessionStore) Put(ctx context.Context, sessionID, key, value string) error {
	if s.Data[sessionID] == nil {
		s.Data[sessionID] = make(map[string]string)
	}
	s.Data[sessionID][key] = value
	return nil
}

func (s *MemSessionStore) Forget(ctx context.Context, sessionID string, keys ...string) error {
	for _, key := range keys {
		delete(s.Data[sessionID], key)
	}
	return nil
}

func (s *MemSessionStore) Regenerate(ctx context.Context, sessionID string) (string, error) {
	newID, err := session.NewSessionID()
	if err != nil {
		return "", err
	}
	s.Data[newID] = s.Data[sessionID]
	delete(s.Data, sessionID)
	return newID, nil
}

func (s *MemSessionStore) Destroy(ctx context.Context, sessionID string) error {
	delete(s.Data, sessionID)
	return nil
}

// MockRegistrationService is a scripted RegistrationService for handler
// tests.
type MockRegistrationService struct {
	RegisterFunc           func(ctx context.Context, panel models.Panel, input services.RegisterInput) (*services.RegisterResult, error)
	VerifyRegistrationFunc func(ctx context.Context, email, code string) (*models.User, error)
	ResendVerificationFunc func(ctx context.Context, email string) error
}

func (m *MockRegistrationService) Register(ctx context.Context, panel models.Panel, input services.RegisterInput) (*services.RegisterResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, panel, input)
	}
	return &services.RegisterResult{User: &models.User{ID: "user123", Email: input.Email, Status: "active"}}, nil
}

func (m *MockRegistrationService) VerifyRegistration(ctx context.Context, email, code string) (*models.User, error) {
	if m.VerifyRegistrationFunc != nil {
		return m.VerifyRegistrationFunc(ctx, email, code)
	}
	return nil, models.ErrInvalidCode
}

func (m *MockRegistrationService) ResendVerification(ctx context.Context, email string) error {
	if m.ResendVerificationFunc != nil {
		return m.ResendVerificationFunc(ctx, email)
	}
	return nil
}

// StubMethod is a scripted primary method for handler tests.
type StubMethod struct {
	MethodName string
	Identity   *methods.Identity
	Err        error
}

func (s *StubMethod) Name() string                        { return s.MethodName }
func (s *StubMethod) CanHandle(req *methods.Request) bool { return true }
func (s *StubMethod) Validate(req *methods.Request) error { return nil }
func (s *StubMethod) Authenticate(ctx context.Context, panel models.Panel, req *methods.Request) (*methods.Identity, error) {
	return s.Identity, s.Err
}

// StubDriver is a scripted second-factor driver for handler tests.
type StubDriver struct {
	DriverName string
	VerifyOK   bool
}

func (d *StubDriver) Name() string  { return d.DriverName }
func (d *StubDriver) Label() string { return d.DriverName }
func (d *StubDriver) Enable(ctx context.Context, user *models.User) (*twofactor.SetupData, error) {
	return &twofactor.SetupData{Method: d.DriverName}, nil
}
func (d *StubDriver) Verify(ctx context.Context, user *models.User, profile *models.UserAuthProfile, code string) (bool, error) {
	return d.VerifyOK, nil
}
func (d *StubDriver) Send(ctx context.Context, user *models.User) error { return nil }
func (d *StubDriver) RequiresSending() bool                             { return false }
func (d *StubDriver) RequiresConfirmation() bool                        { return true }

type stubUserStore struct{}

func (stubUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Email: "user@example.com", Status: "active"}, nil
}

type stubProfileStore struct {
	profile *models.UserAuthProfile
}

func (s stubProfileStore) GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error) {
	if s.profile == nil {
		return nil, models.ErrNotFound
	}
	return s.profile, nil
}

func (s stubProfileStore) ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	return false, nil
}

func (s stubProfileStore) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	return 8, nil
}

// TestAuthStack bundles everything a handler test needs around one
// orchestrator.
type TestAuthStack struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *MemSessionStore
	Config       *config.Config
}

// ConfirmedTOTPProfile returns a profile with a confirmed TOTP method.
func ConfirmedTOTPProfile(userID string) *models.UserAuthProfile {
	now := time.Now()
	return &models.UserAuthProfile{
		UserID:               userID,
		TwoFactorEnabled:     true,
		TwoFactorMethod:      "totp",
		TwoFactorConfirmedAt: &now,
	}
}

// NewTestAuthStack builds an orchestrator over scripted parts. The panel
// named "app" has 2FA enabled iff twoFactor is true.
func NewTestAuthStack(method methods.Method, driver twofactor.Driver, profile *models.UserAuthProfile, twoFactor bool) *TestAuthStack {
	sessions := NewMemSessionStore()
	log := slog.Default()

	drivers := twofactor.NewRegistry()
	if driver != nil {
		drivers = twofactor.NewRegistry(driver)
	}

	orch := orchestrator.New(
		methods.NewRegistry(method),
		drivers,
		stubUserStore{},
		stubProfileStore{profile: profile},
		sessions,
		auth.NewChallengeTokenManager("test-challenge-secret", 5*time.Minute),
		log,
		logger.NewAuditLogger(log),
	)

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		Panels: []models.Panel{{
			Name:             "app",
			TwoFactorEnabled: twoFactor,
			LoginField:       "email",
		}},
	}

	return &TestAuthStack{Orchestrator: orch, Sessions: sessions, Config: cfg}
}
