package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/forgecommerce/invoicing/internal/auth"
)

// RequireToken guards admin routes with a bearer token. token is the plain
// value or its bcrypt hash; an empty token disables the routes entirely.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "admin API disabled")
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			scheme, value, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}
			if err := auth.VerifyToken(token, value); err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrEmptyToken) {
					writeJSONError(w, http.StatusInternalServerError, "token verification failed")
					return
				}
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
