package twofactor

import (
	"context"
	"fmt"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
)

// TOTPDriver implements the authenticator-app second factor. The secret is
// generated once during Enable, stored AES-256-GCM encrypted, and never
// returned to the client after the initial QR payload.
type TOTPDriver struct {
	totp     *auth.TOTPManager
	profiles ProfileStore
}

func NewTOTPDriver(totp *auth.TOTPManager, profiles ProfileStore) *TOTPDriver {
	return &TOTPDriver{totp: totp, profiles: profiles}
}

func (d *TOTPDriver) Name() string  { return models.TwoFactorMethodTOTP }
func (d *TOTPDriver) Label() string { return "Authenticator app" }

func (d *TOTPDriver) Enable(ctx context.Context, user *models.User) (*SetupData, error) {
	encrypted, nonce, qrDataURL, err := d.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	if err := d.profiles.SetPendingTwoFactor(ctx, user.ID, d.Name(), encrypted, nonce); err != nil {
		return nil, err
	}

	return &SetupData{
		Method:  d.Name(),
		QRCode:  qrDataURL,
		Message: "Scan the QR code with your authenticator app, then confirm with a code.",
	}, nil
}

func (d *TOTPDriver) Verify(ctx context.Context, user *models.User, profile *models.UserAuthProfile, code string) (bool, error) {
	if len(profile.TwoFactorSecret) == 0 {
		return false, nil
	}

	secret, err := d.totp.DecryptSecret(profile.TwoFactorSecret, profile.TwoFactorSecretNonce)
	if err != nil {
		return false, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	return d.totp.ValidateCode(secret, code)
}

func (d *TOTPDriver) Send(ctx context.Context, user *models.User) error {
	// Nothing to deliver; codes come from the authenticator app.
	return nil
}

func (d *TOTPDriver) RequiresSending() bool { return false }

func (d *TOTPDriver) RequiresConfirmation() bool { return true }
