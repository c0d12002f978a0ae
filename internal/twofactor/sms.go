package twofactor

import (
	"context"
	"fmt"
	"time"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/mail"
	"github.com/marenbeck/gatehouse/internal/models"
)

// SMSDriver is structurally identical to EmailDriver with SMS delivery.
type SMSDriver struct {
	codes    CodeStore
	profiles ProfileStore
	sender   mail.SMSSender
	expiry   time.Duration
}

func NewSMSDriver(codes CodeStore, profiles ProfileStore, sender mail.SMSSender, expiry time.Duration) *SMSDriver {
	return &SMSDriver{
		codes:    codes,
		profiles: profiles,
		sender:   sender,
		expiry:   expiry,
	}
}

func (d *SMSDriver) Name() string  { return models.TwoFactorMethodSMS }
func (d *SMSDriver) Label() string { return "Text message" }

func (d *SMSDriver) Enable(ctx context.Context, user *models.User) (*SetupData, error) {
	if user.Phone == "" {
		return nil, models.ErrBadRequest
	}

	if err := d.profiles.SetPendingTwoFactor(ctx, user.ID, d.Name(), nil, nil); err != nil {
		return nil, err
	}

	if err := d.Send(ctx, user); err != nil {
		return nil, err
	}

	return &SetupData{
		Method:  d.Name(),
		Message: "A sign-in code was sent to your phone.",
	}, nil
}

func (d *SMSDriver) Verify(ctx context.Context, user *models.User, profile *models.UserAuthProfile, code string) (bool, error) {
	_, err := d.codes.Consume(ctx, user.ID, models.PurposeTwoFactor, auth.HashCode(code))
	if err != nil {
		if err == models.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *SMSDriver) Send(ctx context.Context, user *models.User) error {
	code, err := auth.GenerateNumericCode(emailCodeDigits)
	if err != nil {
		return err
	}

	_, err = d.codes.Create(ctx, &models.EphemeralCode{
		Identifier: user.ID,
		SentTo:     user.Phone,
		UserID:     &user.ID,
		CodeHash:   auth.HashCode(code),
		Purpose:    models.PurposeTwoFactor,
		ExpiresAt:  time.Now().Add(d.expiry),
	})
	if err != nil {
		return err
	}

	if err := d.sender.Send(ctx, user.Phone, fmt.Sprintf("Your sign-in code is %s", code)); err != nil {
		return fmt.Errorf("%w: %v", models.ErrExternalService, err)
	}
	return nil
}

func (d *SMSDriver) RequiresSending() bool { return true }

func (d *SMSDriver) RequiresConfirmation() bool { return false }
