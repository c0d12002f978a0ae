package methods

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	pkgauth "github.com/marenbeck/gatehouse/pkg/auth"

	"github.com/marenbeck/gatehouse/internal/models"
)

// PasswordMethod authenticates a login field plus password against the
// stored bcrypt hash. All credential failures are reported identically:
// a nil identity with no error.
type PasswordMethod struct {
	users    UserStore
	profiles ProfileStore
	hasher   pkgauth.Hasher
	logger   *slog.Logger
}

func NewPasswordMethod(users UserStore, profiles ProfileStore, hasher pkgauth.Hasher, logger *slog.Logger) *PasswordMethod {
	return &PasswordMethod{users: users, profiles: profiles, hasher: hasher, logger: logger}
}

func (m *PasswordMethod) Name() string { return NamePassword }

func (m *PasswordMethod) CanHandle(req *Request) bool {
	return req.Login != "" && req.Password != ""
}

func (m *PasswordMethod) Validate(req *Request) error {
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		return models.ErrBadRequest
	}
	return nil
}

func (m *PasswordMethod) Authenticate(ctx context.Context, panel models.Panel, req *Request) (*Identity, error) {
	user, err := m.users.GetByLoginField(ctx, panel.LoginField, strings.TrimSpace(req.Login))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	profile, err := m.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !profile.HasPassword() {
		// Social-originated account that never set a password.
		return nil, nil
	}

	if !m.hasher.Check(req.Password, profile.PasswordHash) {
		return nil, nil
	}

	if m.hasher.NeedsRehash(profile.PasswordHash) {
		if rehashed, err := m.hasher.Hash(req.Password); err == nil {
			if err := m.profiles.UpdatePassword(ctx, user.ID, rehashed); err != nil {
				m.logger.Warn("password rehash failed", slog.String("user_id", user.ID), slog.Any("error", err))
			}
		}
	}

	return &Identity{UserID: user.ID, Remember: req.Remember, Method: NamePassword}, nil
}
