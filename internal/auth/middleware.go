package auth

import (
	"net/http"
	"strings"

	"github.com/preventa/preventa/internal/platform/httpx"
	"github.com/preventa/preventa/internal/shared"
)

// RequireAuth resolves the bearer token and injects the user id into the
// request context. Requests without a valid token are rejected.
func RequireAuth(tokens *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.RespondError(w, ErrTokenInvalid)
				return
			}
			userID, err := tokens.Resolve(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			ctx := shared.ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
