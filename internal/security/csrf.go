package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/techshop-api/internal/common"
)

// DefaultCSRFName is used for both the CSRF header and its cookie.
const DefaultCSRFName = "X-CSRF-Token"

// CSRF applies the double-submit check to state-changing requests that
// authenticate with the session cookie. Bearer and anonymous requests pass.
type CSRF struct {
	Name          string
	SessionCookie string
}

func (c CSRF) name() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return DefaultCSRFName
}

// Middleware enforces that the CSRF header matches the CSRF cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	name := c.name()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Authorization"))), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		if c.SessionCookie == "" {
			next.ServeHTTP(w, r)
			return
		}
		if session, err := r.Cookie(c.SessionCookie); err != nil || session.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(name))
		cookie, err := r.Cookie(name)
		if token == "" || err != nil || cookie.Value == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "Missing CSRF token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "Invalid CSRF token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueCSRFCookie sets a fresh token cookie readable by the browser
// application, which echoes it in the CSRF header.
func (c CSRF) IssueCSRFCookie(w http.ResponseWriter, secure bool, sameSite http.SameSite) string {
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		Secure:   secure,
		SameSite: sameSite,
	})
	return token
}
