package session

import (
	"context"
)

// PendingAuth is the transient slot holding an identity between "primary
// factor passed" and "second factor passed". Its presence never means the
// caller is authenticated: only the orchestrator may promote it, and every
// consumer re-verifies through a driver first.
type PendingAuth struct {
	UserID   string
	Remember bool
}

// PutPending parks an identity in the session's pending slot.
func PutPending(ctx context.Context, store Store, sessionID string, pending PendingAuth) error {
	if err := store.Put(ctx, sessionID, KeyPendingUserID, pending.UserID); err != nil {
		return err
	}
	remember := "0"
	if pending.Remember {
		remember = "1"
	}
	return store.Put(ctx, sessionID, KeyPendingRemember, remember)
}

// GetPending reads the pending slot, returning nil when there is none.
func GetPending(ctx context.Context, store Store, sessionID string) (*PendingAuth, error) {
	userID, err := store.Get(ctx, sessionID, KeyPendingUserID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, nil
	}

	remember, err := store.Get(ctx, sessionID, KeyPendingRemember)
	if err != nil {
		return nil, err
	}

	return &PendingAuth{
		UserID:   userID,
		Remember: remember == "1",
	}, nil
}

// ClearPending removes the pending slot.
func ClearPending(ctx context.Context, store Store, sessionID string) error {
	return store.Forget(ctx, sessionID, KeyPendingUserID, KeyPendingRemember)
}
