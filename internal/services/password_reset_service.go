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
	pkgauth "github.com/marenbeck/gatehouse/pkg/auth"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

// PasswordResetService runs the forgot-password flow. Every request for a
// reset link reports success whether or not the address exists, so the
// endpoint cannot be used to enumerate accounts.
type PasswordResetService struct {
	users    *repositories.UserRepository
	profiles *repositories.AuthProfileRepository
	codes    *repositories.EphemeralCodeRepository
	mailer   mail.Mailer
	hasher   pkgauth.Hasher
	baseURL  string
	tokenTTL time.Duration
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

func NewPasswordResetService(users *repositories.UserRepository, profiles *repositories.AuthProfileRepository, codes *repositories.EphemeralCodeRepository, mailer mail.Mailer, hasher pkgauth.Hasher, baseURL string, tokenTTL time.Duration, log *slog.Logger, audit *logger.AuditLogger) *PasswordResetService {
	return &PasswordResetService{
		users:    users,
		profiles: profiles,
		codes:    codes,
		mailer:   mailer,
		hasher:   hasher,
		baseURL:  baseURL,
		tokenTTL: tokenTTL,
		logger:   log,
		audit:    audit,
	}
}

// RequestReset emails a single-use reset link when the address belongs to
// an account. Unknown addresses return nil without sending anything.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown address",
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
		Purpose:    models.PurposePasswordReset,
		ExpiresAt:  time.Now().Add(s.tokenTTL),
	})
	if err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/auth/password/reset?token=%s", s.baseURL, url.QueryEscape(token))
	err = s.mailer.Send(ctx, user.Email, mail.TemplatePasswordReset, map[string]string{
		"url":        resetURL,
		"expires_in": formatExpiry(s.tokenTTL),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrExternalService, err)
	}

	return nil
}

// ResetPassword consumes the token and sets the new password. Password
// validation runs before consumption so a rejected password does not burn
// the link.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	tokenHash := auth.HashCode(token)
	consumed, err := s.codes.Consume(ctx, tokenHash, models.PurposePasswordReset, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidCode
		}
		return err
	}
	if consumed.UserID == nil {
		return models.ErrInvalidCode
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.profiles.UpdatePassword(ctx, *consumed.UserID, passwordHash); err != nil {
		return err
	}

	s.audit.Log(logger.AuditEvent{
		EventType: logger.EventPasswordReset,
		UserID:    *consumed.UserID,
		Success:   true,
	})

	return nil
}
