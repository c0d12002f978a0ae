package methods

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
)

const magicLinkTokenLength = 64

// MagicLinkMethod authenticates a single-use emailed token. Possession
// of the mailbox proves the identity, so a magic-link sign-in counts as
// a strong factor and skips the second-factor challenge.
type MagicLinkMethod struct {
	users UserStore
	codes CodeStore
}

func NewMagicLinkMethod(users UserStore, codes CodeStore) *MagicLinkMethod {
	return &MagicLinkMethod{users: users, codes: codes}
}

func (m *MagicLinkMethod) Name() string { return NameMagicLink }

func (m *MagicLinkMethod) CanHandle(req *Request) bool {
	return req.Token != ""
}

func (m *MagicLinkMethod) Validate(req *Request) error {
	if len(req.Token) != magicLinkTokenLength {
		return models.ErrBadRequest
	}
	if _, err := hex.DecodeString(req.Token); err != nil {
		return models.ErrBadRequest
	}
	return nil
}

func (m *MagicLinkMethod) Authenticate(ctx context.Context, panel models.Panel, req *Request) (*Identity, error) {
	// Tokens are stored by their hash, keyed on the hash as identifier so
	// the lookup and the consume are one conditional update.
	tokenHash := auth.HashCode(req.Token)
	code, err := m.codes.Consume(ctx, tokenHash, models.PurposeMagicLink, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if code.UserID == nil {
		return nil, nil
	}

	user, err := m.users.GetByID(ctx, *code.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	return &Identity{
		UserID:       user.ID,
		Remember:     req.Remember,
		StrongFactor: true,
		Method:       NameMagicLink,
	}, nil
}
