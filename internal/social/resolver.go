package social

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marenbeck/gatehouse/internal/database"
	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/repositories"
	"github.com/marenbeck/gatehouse/pkg/logger"
)

// Resolution is the outcome of mapping an external identity to a local
// user. NeedsPassword is set when the panel requires a password on
// social-originated accounts and the resolved user has none.
type Resolution struct {
	User          *models.User
	Created       bool
	NeedsPassword bool
}

// Resolver maps a verified external identity onto a local user:
// follow an existing link, heal orphaned links, consolidate on email,
// or provision a fresh account. The whole resolution runs in one
// transaction so two concurrent callbacks for the same identity cannot
// create duplicate users or duplicate links.
type Resolver struct {
	db       *database.DB
	users    *repositories.UserRepository
	social   *repositories.SocialAccountRepository
	profiles *repositories.AuthProfileRepository
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

func NewResolver(db *database.DB, users *repositories.UserRepository, social *repositories.SocialAccountRepository, profiles *repositories.AuthProfileRepository, log *slog.Logger, audit *logger.AuditLogger) *Resolver {
	return &Resolver{db: db, users: users, social: social, profiles: profiles, logger: log, audit: audit}
}

// Resolve returns the local user for the external identity. No session
// state is touched here; the caller decides what a resolved user means.
func (r *Resolver) Resolve(ctx context.Context, panel models.Panel, identity *models.ExternalIdentity) (*Resolution, error) {
	if !panel.SupportsProvider(identity.Provider) {
		return nil, models.ErrForbidden
	}

	var resolution *Resolution
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		resolution, err = r.resolveInTx(ctx, panel, identity,
			r.users.WithTx(tx), r.social.WithTx(tx), r.profiles.WithTx(tx))
		return err
	})
	if err != nil {
		return nil, err
	}

	return resolution, nil
}

func (r *Resolver) resolveInTx(ctx context.Context, panel models.Panel, identity *models.ExternalIdentity,
	users *repositories.UserRepository, social *repositories.SocialAccountRepository, profiles *repositories.AuthProfileRepository) (*Resolution, error) {

	// 1. Known provider identity: follow the link, but verify the user
	// behind it still exists before trusting it.
	link, err := social.GetByProviderID(ctx, identity.Provider, identity.ProviderID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if link != nil {
		user, err := users.GetByID(ctx, link.UserID)
		if err == nil {
			if _, err := social.UpdateProfile(ctx, link.ID, identity); err != nil {
				return nil, err
			}
			return r.finishWith(ctx, panel, user, false, profiles)
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}

		// Orphaned link: the user row is gone. Remove the link and fall
		// through to resolution from scratch.
		if err := social.Delete(ctx, link.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		r.logger.Warn("healed orphaned social link",
			slog.String("provider", identity.Provider),
			slog.String("orphaned_user_id", link.UserID))
		r.audit.Log(logger.AuditEvent{
			EventType: logger.EventSocialOrphanHealed,
			Panel:     panel.Name,
			Method:    identity.Provider,
			Success:   true,
		})
	}

	// 2. Consolidate on email: an existing account with the provider's
	// email gets the link instead of a duplicate account.
	var user *models.User
	created := false
	if identity.Email != "" {
		user, err = users.GetByEmail(ctx, identity.Email)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	// 3. Provision a fresh account. The provider vouched for the email,
	// so it starts verified; no password is set.
	if user == nil {
		now := time.Now()
		user, err = users.Create(ctx, &models.User{
			Email:           identity.Email,
			Name:            identity.Name,
			AvatarURL:       identity.AvatarURL,
			EmailVerifiedAt: &now,
		})
		if err != nil {
			return nil, err
		}
		if _, err := profiles.Create(ctx, &models.UserAuthProfile{UserID: user.ID}); err != nil {
			return nil, err
		}
		created = true
	}

	if _, err := social.Create(ctx, &models.SocialAccount{
		UserID:         user.ID,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderID,
		Email:          identity.Email,
		Name:           identity.Name,
		AvatarURL:      identity.AvatarURL,
		AccessToken:    identity.AccessToken,
		RefreshToken:   identity.RefreshToken,
		TokenExpiresAt: identity.ExpiresAt,
	}); err != nil {
		return nil, err
	}

	r.audit.Log(logger.AuditEvent{
		EventType: logger.EventSocialLinked,
		UserID:    user.ID,
		Panel:     panel.Name,
		Method:    identity.Provider,
		Success:   true,
	})

	return r.finishWith(ctx, panel, user, created, profiles)
}

func (r *Resolver) finishWith(ctx context.Context, panel models.Panel, user *models.User, created bool, profiles *repositories.AuthProfileRepository) (*Resolution, error) {
	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	needsPassword := false
	if panel.RequirePasswordAfterSocial {
		profile, err := profiles.GetByUserID(ctx, user.ID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		needsPassword = profile == nil || !profile.HasPassword()
	}

	return &Resolution{User: user, Created: created, NeedsPassword: needsPassword}, nil
}

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
