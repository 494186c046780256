package middleware

import (
	"context"
	"net/http"
	"strings"

	"webui-accounts/internal/model"
	"webui-accounts/internal/repository"
	"webui-accounts/internal/util"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const sessionUserKey = contextKey("sessionUser")

// AuthMiddleware authenticates a bearer credential, either a session JWT
// whose subject is the user id or an "sk-" API key, loads the account and
// stores it in the request context. Each authenticated request also bumps the
// account's last_active_at.
func AuthMiddleware(jwtSecret string, users repository.UserRepository, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header missing", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}
			credential := parts[1]

			var (
				user *model.User
				err  error
			)
			if strings.HasPrefix(credential, model.APIKeyPrefix) {
				user, err = users.GetUserByAPIKey(r.Context(), credential)
			} else {
				var claims *util.SessionClaims
				claims, err = util.ValidateSessionToken(credential, jwtSecret)
				if err == nil {
					user, err = users.GetUserByID(r.Context(), claims.Subject)
				}
			}
			if err != nil {
				logger.Warn().Err(err).Msg("Rejected bearer credential")
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				return
			}

			if refreshed, err := users.UpdateLastActiveByID(r.Context(), user.ID); err != nil {
				logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to update last_active_at")
			} else {
				user = refreshed
			}

			ctx := context.WithValue(r.Context(), sessionUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionUser returns the authenticated account stored by AuthMiddleware.
func SessionUser(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(sessionUserKey).(*model.User)
	return user, ok && user != nil
}

// WithSessionUser returns a context carrying the given account. Tests use it
// to call handlers without running the middleware.
func WithSessionUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, sessionUserKey, user)
}
