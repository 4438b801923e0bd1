package auth

import (
	"net/http"
	"time"

	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/security"
)

// Handler exposes the user account endpoints.
type Handler struct {
	Service          *Service
	AccessCookieName string
	CookieSecure     bool
	CookieSameSite   http.SameSite
	// CSRF, when set, issues the double-submit token alongside the session cookie.
	CSRF *security.CSRF
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse is returned by register and login.
type SessionResponse struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	Token   string `json:"token"`
}

// Register handles POST /users.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	var req registerRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	result, err := h.Service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	h.setAccessCookie(w, result.AccessToken, result.AccessExpiry)
	common.JSON(w, http.StatusCreated, session(result))
}

// Login handles POST /users/auth.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	result, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	h.setAccessCookie(w, result.AccessToken, result.AccessExpiry)
	common.JSON(w, http.StatusOK, session(result))
}

// Profile handles GET /users/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.WriteError(w, r, common.Unauthorized("Not authorized, no token"))
		return
	}
	u, err := h.Service.Profile(r.Context(), userID)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, u)
}

func session(res LoginResult) SessionResponse {
	return SessionResponse{
		ID:      res.User.ID,
		Name:    res.User.Name,
		Email:   res.User.Email,
		IsAdmin: res.User.IsAdmin,
		Token:   res.AccessToken,
	}
}

func (h *Handler) setAccessCookie(w http.ResponseWriter, token string, expires time.Time) {
	if h.AccessCookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.AccessCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
	if h.CSRF != nil {
		h.CSRF.IssueCSRFCookie(w, h.CookieSecure, h.CookieSameSite)
	}
}
