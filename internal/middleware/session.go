package middleware

import (
	"context"
	"net/http"

	"github.com/marenbeck/gatehouse/internal/session"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	userIDKey    contextKey = "user_id"
)

// SessionCookieName is the browser session cookie.
const SessionCookieName = "gatehouse_session"

// SessionConfig holds session middleware configuration.
type SessionConfig struct {
	Secure bool
}

// Session ensures every request carries a session id: an existing cookie
// is reused, otherwise a fresh anonymous id is minted. The id goes into
// the request context and back out as a cookie.
func Session(config SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			if sessionID == "" {
				id, err := session.NewSessionID()
				if err != nil {
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				sessionID = id
			}

			SetSessionCookie(w, sessionID, config.Secure)

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie writes the session cookie. Called again by handlers
// after the orchestrator regenerates the id.
func SetSessionCookie(w http.ResponseWriter, sessionID string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionIDFromContext returns the request's session id, or empty string.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// UserIDFromContext returns the authenticated user id, or empty string.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID returns a context carrying the authenticated user id.
// Exported for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithSessionID returns a context carrying a session id. Exported for
// handler tests.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
