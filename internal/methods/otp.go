package methods

import (
	"context"
	"errors"

	"github.com/marenbeck/gatehouse/internal/auth"
	"github.com/marenbeck/gatehouse/internal/models"
)

const otpDigits = 6

// OTPMethod authenticates a phone number plus a previously delivered
// numeric code. The code is consumed atomically; a replay sees no active
// row and fails like a wrong code.
type OTPMethod struct {
	users UserStore
	codes CodeStore
}

func NewOTPMethod(users UserStore, codes CodeStore) *OTPMethod {
	return &OTPMethod{users: users, codes: codes}
}

func (m *OTPMethod) Name() string { return NameOTP }

func (m *OTPMethod) CanHandle(req *Request) bool {
	return req.Phone != "" && req.Code != ""
}

func (m *OTPMethod) Validate(req *Request) error {
	if req.Phone == "" || len(req.Code) != otpDigits {
		return models.ErrBadRequest
	}
	for _, r := range req.Code {
		if r < '0' || r > '9' {
			return models.ErrBadRequest
		}
	}
	return nil
}

func (m *OTPMethod) Authenticate(ctx context.Context, panel models.Panel, req *Request) (*Identity, error) {
	code, err := m.codes.Consume(ctx, req.Phone, models.PurposeLogin, auth.HashCode(req.Code))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var user *models.User
	if code.UserID != nil {
		user, err = m.users.GetByID(ctx, *code.UserID)
	} else {
		user, err = m.users.GetByPhone(ctx, req.Phone)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	return &Identity{UserID: user.ID, Remember: req.Remember, Method: NameOTP}, nil
}
