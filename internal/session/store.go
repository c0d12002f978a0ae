package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session keys used by the authentication core.
const (
	KeyUserID               = "auth.user_id"
	KeyRemember             = "auth.remember"
	KeyTwoFactorConfirmedAt = "auth.two_factor_confirmed_at"
	KeyPendingUserID        = "auth.pending.user_id"
	KeyPendingRemember      = "auth.pending.remember"
	KeyWebAuthnCeremony     = "webauthn.ceremony"
	KeyOAuthState           = "oauth.state"
)

// Store is the session contract the core consumes: a key-value bag scoped
// to one browser session, with id regeneration to prevent fixation.
// Implementations serialize writes per session id.
type Store interface {
	// Get returns the value for key, or empty string when absent.
	Get(ctx context.Context, sessionID, key string) (string, error)
	Put(ctx context.Context, sessionID, key, value string) error
	Forget(ctx context.Context, sessionID string, keys ...string) error
	// Regenerate moves the session data under a fresh id and returns it.
	Regenerate(ctx context.Context, sessionID string) (string, error)
	Destroy(ctx context.Context, sessionID string) error
}

// NewSessionID returns a 64-character random hex session id.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RedisStore keeps each session as a Redis hash with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return "sess:" + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	value, err := s.client.HGet(ctx, s.key(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session get failed: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID, key, value string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(sessionID), key, value)
	pipe.Expire(ctx, s.key(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session put failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Forget(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("session forget failed: %w", err)
	}
	return nil
}

// Regenerate moves the session hash under a new random id. The RENAME is
// atomic, so no request can observe the data under both ids.
func (s *RedisStore) Regenerate(ctx context.Context, sessionID string) (string, error) {
	newID, err := NewSessionID()
	if err != nil {
		return "", err
	}

	err = s.client.Rename(ctx, s.key(sessionID), s.key(newID)).Err()
	if err != nil && !isNoSuchKey(err) {
		return "", fmt.Errorf("session regenerate failed: %w", err)
	}

	// An empty session has no hash to rename; the new id is still valid.
	if err := s.client.Expire(ctx, s.key(newID), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session regenerate failed: %w", err)
	}

	return newID, nil
}

func (s *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session destroy failed: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return err != nil && err.Error() == "ERR no such key"
}
