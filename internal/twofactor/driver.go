// Package twofactor implements the second-factor driver registry: a fixed
// set of drivers (TOTP, email, SMS) behind one contract, plus the
// two-phase enrollment protocol that turns a pending method into a
// confirmed one.
package twofactor

import (
	"context"

	"github.com/marenbeck/gatehouse/internal/models"
)

// SetupData is returned by a driver's Enable step. For TOTP it carries the
// provisioning QR payload; for delivery-based drivers only a confirmation
// message. The secret never goes back to the client.
type SetupData struct {
	Method        string   `json:"method"`
	QRCode        string   `json:"qr_code,omitempty"` // PNG data URL
	Message       string   `json:"message,omitempty"`
	RecoveryCodes []string `json:"recovery_codes,omitempty"`
}

// Driver is the uniform second-factor contract.
type Driver interface {
	Name() string
	Label() string

	// Enable prepares the method for the user: generates and persists
	// whatever secret or code the method needs. It must leave
	// two_factor_enabled false; confirmation is the manager's job.
	Enable(ctx context.Context, user *models.User) (*SetupData, error)

	// Verify checks a submitted code. Expected failure is (false, nil);
	// an error means the check itself could not run.
	Verify(ctx context.Context, user *models.User, profile *models.UserAuthProfile, code string) (bool, error)

	// Send delivers a fresh code to the user, for drivers that deliver.
	Send(ctx context.Context, user *models.User) error

	// RequiresSending reports whether a challenge must deliver a code
	// before the user can answer it.
	RequiresSending() bool

	// RequiresConfirmation reports whether the user must prove possession
	// once before the method gates login.
	RequiresConfirmation() bool
}

// ProfileStore is the slice of profile persistence the drivers and the
// enrollment manager need.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserAuthProfile, error)
	SetPendingTwoFactor(ctx context.Context, userID, method string, secret, nonce []byte) error
	ConfirmTwoFactorAtomic(ctx context.Context, userID, method string, recoveryCodeHashes []string) error
	DisableTwoFactorAtomic(ctx context.Context, userID string) error
}

// CodeStore is the slice of ephemeral code persistence the delivery-based
// drivers need.
type CodeStore interface {
	Create(ctx context.Context, code *models.EphemeralCode) (*models.EphemeralCode, error)
	Consume(ctx context.Context, identifier, purpose, codeHash string) (*models.EphemeralCode, error)
}

// Registry maps driver names to implementations. The set is fixed at
// construction; resolving an unknown name returns nil so callers can fail
// generically.
type Registry struct {
	drivers map[string]Driver
	order   []string
}

func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}
	for _, d := range drivers {
		r.drivers[d.Name()] = d
		r.order = append(r.order, d.Name())
	}
	return r
}

// Resolve returns the named driver, or nil when unknown.
func (r *Registry) Resolve(name string) Driver {
	return r.drivers[name]
}

// All returns the registered drivers in registration order.
func (r *Registry) All() []Driver {
	out := make([]Driver, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.drivers[name])
	}
	return out
}
