package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/mail"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/repositories"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

const loginOTPDigits = 6

// PasswordlessService issues the credentials for the passwordless entry
// points: emailed magic links and SMS login codes. Both report success for
// unknown destinations so neither endpoint leaks which accounts exist.
type PasswordlessService struct {
	users           *repositories.UserRepository
	codes           *repositories.EphemeralCodeRepository
	mailer          mail.Mailer
	sms             mail.SMSSender
	baseURL         string
	magicLinkExpiry time.Duration
	otpExpiry       time.Duration
	logger          *slog.Logger
}

func NewPasswordlessService(users *repositories.UserRepository, codes *repositories.EphemeralCodeRepository, mailer mail.Mailer, sms mail.SMSSender, baseURL string, magicLinkExpiry, otpExpiry time.Duration, log *slog.Logger) *PasswordlessService {
	return &PasswordlessService{
		users:           users,
		codes:           codes,
		mailer:          mailer,
		sms:             sms,
		baseURL:         baseURL,
		magicLinkExpiry: magicLinkExpiry,
		otpExpiry:       otpExpiry,
		logger:          log,
	}
}

// RequestMagicLink emails a single-use sign-in link to a known address.
func (s *PasswordlessService) RequestMagicLink(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("magic link requested for unknown address",
				slog.String("email", logger.SanitizedEmail(email)))
			return nil
		}
		return err
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return err
	}
	tokenHash := auth.HashCode(token)

	_, err = s.codes.Create(ctx, &models.EphemeralCode{
		Identifier: tokenHash,
		SentTo:     user.Email,
		UserID:     &user.ID,
		CodeHash:   tokenHash,
		Purpose:    models.PurposeMagicLink,
		ExpiresAt:  time.Now().Add(s.magicLinkExpiry),
	})
	if err != nil {
		return err
	}

	linkURL := fmt.Sprintf("%s/auth/magic-link/consume?token=%s", s.baseURL, url.QueryEscape(token))
	err = s.mailer.Send(ctx, user.Email, mail.TemplateMagicLink, map[string]string{
		"url":        linkURL,
		"expires_in": formatExpiry(s.magicLinkExpiry),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrExternalService, err)
	}

	return nil
}

// RequestLoginOTP texts a short-lived numeric code to a known phone
// number.
func (s *PasswordlessService) RequestLoginOTP(ctx context.Context, phone string) error {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login otp requested for unknown phone")
			return nil
		}
		return err
	}

	code, err := auth.GenerateNumericCode(loginOTPDigits)
	if err != nil {
		return err
	}

	_, err = s.codes.Create(ctx, &models.EphemeralCode{
		Identifier: phone,
		SentTo:     phone,
		UserID:     &user.ID,
		CodeHash:   auth.HashCode(code),
		Purpose:    models.PurposeLogin,
		ExpiresAt:  time.Now().Add(s.otpExpiry),
	})
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Your sign-in code is %s. It expires in %s.", code, formatExpiry(s.otpExpiry))
	if err := s.sms.Send(ctx, phone, message); err != nil {
		return fmt.Errorf("%w: %v", models.ErrExternalService, err)
	}

	return nil
}
