// Package methods implements the primary authentication method registry:
// a fixed menu of sign-in methods behind one contract. CanHandle is a
// cheap presence-of-fields check, Validate rejects malformed input, and
// Authenticate performs the credential check. A nil identity with a nil
// error is an expected failure; the orchestrator converts it into one
// generic message regardless of cause.
package methods

import (
	"context"
	"net/http"

	"github.com/marenbeck/gatehouse/internal/models"
)

// Method names.
const (
	NamePassword  = "password"
	NameOTP       = "otp"
	NameMagicLink = "magic-link"
	NameWebAuthn  = "webauthn"
	NameSocial    = "social"
	NameAPIToken  = "api-token"
)

// Request is the normalized inbound login request. Which fields are set
// determines which method handles it.
type Request struct {
	Method    string // explicit method selection, optional
	Login     string // email or phone, per panel login field
	Password  string
	Phone     string
	Code      string // OTP digits
	Token     string // magic-link token
	APIToken  string
	Provider  string // OAuth provider name
	OAuthCode string // OAuth authorization code
	State     string // OAuth CSRF state echoed by the provider
	Remember  bool

	// SessionID and HTTP are needed by ceremony-based methods (WebAuthn)
	// and by OAuth state validation.
	SessionID string
	HTTP      *http.Request
}

// Identity is a successfully authenticated identity. StrongFactor marks
// methods that satisfy the second-factor requirement on their own
// (passkeys, magic links, API tokens).
type Identity struct {
	UserID             string
	Remember           bool
	StrongFactor       bool
	NeedsPasswordSetup bool // social-originated account without a password
	Method             string
}

// Method is the uniform primary authentication contract.
type Method interface {
	Name() string
	CanHandle(req *Request) bool
	Validate(req *Request) error
	Authenticate(ctx context.Context, panel models.Panel, req *Request) (*Identity, error)
}

// UserStore is the user lookup surface the methods need.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByLoginField(ctx context.Context, field, value string) (*models.User, error)
}

// ProfileStore is the auth profile surface the methods need.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// CodeStore consumes single-use codes.
type CodeStore interface {
	Consume(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error)
}

// Registry holds the fixed method set. Resolve returns nil for unknown
// names so the orchestrator can fail generically or try another method.
type Registry struct {
	methods map[string]Method
	order   []string
}

func NewRegistry(ms ...Method) *Registry {
	r := &Registry{methods: make(map[string]Method, len(ms))}
	for _, m := range ms {
		r.methods[m.Name()] = m
		r.order = append(r.order, m.Name())
	}
	return r
}

func (r *Registry) Resolve(name string) Method {
	return r.methods[name]
}

// ForRequest picks the method for a request: the explicitly named one if
// it can handle the request, otherwise the first registered method whose
// CanHandle matches. Returns nil when nothing matches.
func (r *Registry) ForRequest(req *Request) Method {
	if req.Method != "" {
		m := r.methods[req.Method]
		if m != nil && m.CanHandle(req) {
			return m
		}
		return nil
	}

	for _, name := range r.order {
		if m := r.methods[name]; m.CanHandle(req) {
			return m
		}
	}
	return nil
}

// validateAccountState rejects users whose account cannot sign in
// regardless of credentials.
func validateAccountState(user *models.User) error {
	switch user.Status {
	case "disabled":
		return models.ErrAccountDisabled
	case "suspended":
		return models.ErrAccountSuspended
	default:
		return nil
	}
}
