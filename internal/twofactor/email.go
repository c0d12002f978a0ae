package twofactor

import (
	"context"
	"fmt"
	"time"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/mail"
	"github.com/marenbeck/gatehouse/internal/models"
)

const emailCodeDigits = 6

// EmailDriver implements the emailed-code second factor. Codes live in the
// ephemeral store keyed by user id and are consumed exactly once; a fresh
// send invalidates any earlier code.
type EmailDriver struct {
	codes    CodeStore
	profiles ProfileStore
	mailer   mail.Mailer
	expiry   time.Duration
}

func NewEmailDriver(codes CodeStore, profiles ProfileStore, mailer mail.Mailer, expiry time.Duration) *EmailDriver {
	return &EmailDriver{
		codes:    codes,
		profiles: profiles,
		mailer:   mailer,
		expiry:   expiry,
	}
}

func (d *EmailDriver) Name() string  { return models.TwoFactorMethodEmail }
func (d *EmailDriver) Label() string { return "Email code" }

// Enable sends a code immediately and records the method as pending. No
// secret exists for this driver, so nothing sensitive goes to the client.
func (d *EmailDriver) Enable(ctx context.Context, user *models.User) (*SetupData, error) {
	if err := d.profiles.SetPendingTwoFactor(ctx, user.ID, d.Name(), nil, nil); err != nil {
		return nil, err
	}

	if err := d.Send(ctx, user); err != nil {
		return nil, err
	}

	return &SetupData{
		Method:  d.Name(),
		Message: "A sign-in code was sent to your email address.",
	}, nil
}

func (d *EmailDriver) Verify(ctx context.Context, user *models.User, profile *models.UserAuthProfile, code string) (bool, error) {
	_, err := d.codes.Consume(ctx, user.ID, models.PurposeTwoFactor, auth.HashCode(code))
	if err != nil {
		if err == models.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *EmailDriver) Send(ctx context.Context, user *models.User) error {
	code, err := auth.GenerateNumericCode(emailCodeDigits)
	if err != nil {
		return err
	}

	_, err = d.codes.Create(ctx, &models.EphemeralCode{
		Identifier: user.ID,
		SentTo:     user.Email,
		UserID:     &user.ID,
		CodeHash:   auth.HashCode(code),
		Purpose:    models.PurposeTwoFactor,
		ExpiresAt:  time.Now().Add(d.expiry),
	})
	if err != nil {
		return err
	}

	err = d.mailer.Send(ctx, user.Email, mail.TemplateTwoFactorCode, map[string]string{
		"code":       code,
		"expires_in": d.expiry.String(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrExternalService, err)
	}
	return nil
}

func (d *EmailDriver) RequiresSending() bool { return true }

// RequiresConfirmation is false: possession of the mailbox is proven every
// time a code round-trips.
func (d *EmailDriver) RequiresConfirmation() bool { return false }
