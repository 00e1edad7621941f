package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vinaeu/insights/backend/internal/handler/httperr"
	authmodel "github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/service/auth"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session_token"

type userKey struct{}

// Resolver resolves a request credential to a user.
type Resolver interface {
	Resolve(ctx context.Context, creds auth.CredentialSource) (authmodel.User, error)
}

// Credentials reads the session token from the cookie, falling back to an
// "Authorization: Bearer" header.
func Credentials(r *http.Request) auth.CredentialSource {
	return auth.TokenFunc(func() (string, bool) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
			return cookie.Value, true
		}
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	})
}

// RequireUser rejects requests without a valid session and stores the
// resolved user in the request context.
func RequireUser(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver.Resolve(r.Context(), Credentials(r))
			if err != nil {
				httperr.Respond(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), userKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (authmodel.User, bool) {
	user, ok := ctx.Value(userKey{}).(authmodel.User)
	return user, ok
}
