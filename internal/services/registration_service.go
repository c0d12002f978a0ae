// Package services holds the account lifecycle flows that sit around the
// sign-in core: registration, password reset, magic links, login OTP
// delivery, passkey management, and API tokens.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/database"
	"github.com/marenbeck/gatehouse/internal/mail"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/repositories"
	pkgauth "github.com/marenbeck/gatehouse/pkg/auth"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

const registrationOTPDigits = 6

// RegistrationService creates accounts and, on panels that require it,
// runs the OTP email verification step before the account can sign in
// normally.
type RegistrationService struct {
	db        *database.DB
	users     *repositories.UserRepository
	profiles  *repositories.AuthProfileRepository
	codes     *repositories.EphemeralCodeRepository
	mailer    mail.Mailer
	hasher    pkgauth.Hasher
	otpExpiry time.Duration
	logger    *slog.Logger
	audit     *logger.AuditLogger
}

func NewRegistrationService(db *database.DB, users *repositories.UserRepository, profiles *repositories.AuthProfileRepository, codes *repositories.EphemeralCodeRepository, mailer mail.Mailer, hasher pkgauth.Hasher, otpExpiry time.Duration, log *slog.Logger, audit *logger.AuditLogger) *RegistrationService {
	return &RegistrationService{
		db:        db,
		users:     users,
		profiles:  profiles,
		codes:     codes,
		mailer:    mailer,
		hasher:    hasher,
		otpExpiry: otpExpiry,
		logger:    log,
		audit:     audit,
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

// RegisterResult reports whether the new account still needs OTP
// verification before first sign-in.
type RegisterResult struct {
	User                 *models.User
	VerificationRequired bool
}

// Register creates the user and auth profile in one transaction, then
// kicks off OTP verification when the panel requires it.
func (s *RegistrationService) Register(ctx context.Context, panel models.Panel, input RegisterInput) (*RegisterResult, error) {
	if err := pkgauth.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		profiles := s.profiles.WithTx(tx)

		user, err = users.Create(ctx, &models.User{
			Email: input.Email,
			Phone: input.Phone,
			Name:  input.Name,
		})
		if err != nil {
			return err
		}

		_, err = profiles.Create(ctx, &models.UserAuthProfile{
			UserID:       user.ID,
			PasswordHash: passwordHash,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, err
	}

	s.audit.Log(logger.AuditEvent{
		EventType: logger.EventRegistered,
		UserID:    user.ID,
		Panel:     panel.Name,
		Success:   true,
	})

	if !panel.RegistrationOTP {
		return &RegisterResult{User: user}, nil
	}

	if err := s.sendRegistrationOTP(ctx, user); err != nil {
		// The account exists; the user can request a fresh code.
		s.logger.Warn("registration otp send failed",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return &RegisterResult{User: user, VerificationRequired: true}, nil
}

// ResendVerification sends a fresh registration OTP. To avoid account
// enumeration it succeeds silently for unknown or already-verified
// addresses.
func (s *RegistrationService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified() {
		return nil
	}

	return s.sendRegistrationOTP(ctx, user)
}

// VerifyRegistration consumes the OTP and marks the email verified.
func (s *RegistrationService) VerifyRegistration(ctx context.Context, email, code string) (*models.User, error) {
	if len(code) != registrationOTPDigits {
		return nil, models.ErrInvalidCode
	}

	consumed, err := s.codes.Consume(ctx, email, models.PurposeRegistration, auth.HashCode(code))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCode
		}
		return nil, err
	}

	var user *models.User
	if consumed.UserID != nil {
		user, err = s.users.GetByID(ctx, *consumed.UserID)
	} else {
		user, err = s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCode
		}
		return nil, err
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *RegistrationService) sendRegistrationOTP(ctx context.Context, user *models.User) error {
	code, err := auth.GenerateNumericCode(registrationOTPDigits)
	if err != nil {
		return err
	}

	_, err = s.codes.Create(ctx, &models.EphemeralCode{
		Identifier: user.Email,
		SentTo:     user.Email,
		UserID:     &user.ID,
		CodeHash:   auth.HashCode(code),
		Purpose:    models.PurposeRegistration,
		ExpiresAt:  time.Now().Add(s.otpExpiry),
	})
	if err != nil {
		return err
	}

	err = s.mailer.Send(ctx, user.Email, mail.TemplateOTP, map[string]string{
		"code":       code,
		"expires_in": formatExpiry(s.otpExpiry),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrExternalService, err)
	}
	return nil
}

func formatExpiry(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
