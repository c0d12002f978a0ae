package middleware

import (
	"net/http"

	"github.com/marenbeck/gatehouse/internal/session"
	pkghttp "github.com/marenbeck/gatehouse/pkg/http"
)

// RequireUser rejects requests whose session has no authenticated user.
// A pending second-factor slot does not count: only KeyUserID, which is
// written exclusively when the orchestrator establishes a session.
func RequireUser(sessions session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionIDFromContext(r.Context())
			if sessionID == "" {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			userID, err := sessions.Get(r.Context(), sessionID, session.KeyUserID)
			if err != nil {
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}
			if userID == "" {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
