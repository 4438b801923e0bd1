package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Service      *Service
	AccessCookie string
}

// RequireAuth rejects requests without a valid access token. The user is
// loaded on every request so a deleted account or a revoked admin flag
// takes effect immediately.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Service == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
			return
		}
		token := m.extractToken(r)
		if token == "" {
			common.WriteError(w, r, common.Unauthorized("Not authorized, no token"))
			return
		}
		userID, err := m.Service.ParseAccessToken(token)
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("access token rejected")
			common.WriteError(w, r, common.Unauthorized("Not authorized, token failed"))
			return
		}
		u, err := m.Service.users.UserByID(r.Context(), userID)
		if errors.Is(err, ErrUserNotFound) {
			common.WriteError(w, r, common.Unauthorized("Not authorized, token failed"))
			return
		}
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		ctx := common.WithAdmin(common.WithUserID(r.Context(), u.ID), u.IsAdmin)
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", u.ID)
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin admits only administrators. It must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); !ok {
			common.WriteError(w, r, common.Unauthorized("Not authorized, no token"))
			return
		}
		if !common.IsAdmin(r.Context()) {
			common.WriteError(w, r, common.Forbidden("Not authorized as an admin"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}
