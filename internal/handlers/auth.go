package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/logging"
	"github.com/diewo77/ejaar/internal/session"
)

// Sessions opens and closes portal sessions.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*session.Login, error)
	Logout(ctx context.Context, id string) error
}

type AuthHandler struct {
	sessions Sessions
}

func NewAuthHandler(s Sessions) *AuthHandler {
	return &AuthHandler{sessions: s}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      auth.Principal `json:"user"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Login checks the credentials against the backend and sets the session
// cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := httpx.DecodeJSON(w, r, maxJSONBody, &in); err != nil {
		writeCode(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" {
		writeCode(w, r, http.StatusUnprocessableEntity, "validation_failed", map[string]string{"email": "required", "password": "required"})
		return
	}

	res, err := h.sessions.Login(r.Context(), in.Email, in.Password)
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, backend.ErrValidation):
		logging.FromContext(r.Context()).WithField("email", in.Email).Info("login refused")
		writeCode(w, r, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	case errors.Is(err, session.ErrUnsupportedRole):
		logging.FromContext(r.Context()).WithFields(logrus.Fields{"email": in.Email, "error": err.Error()}).Warn("login with unsupported role")
		writeCode(w, r, http.StatusForbidden, "forbidden", nil)
		return
	default:
		WriteError(w, r, err)
		return
	}

	auth.CreateSession(w, res.Principal.SessionID, res.ExpiresAt)
	httpx.JSON(w, http.StatusOK, loginResponse{User: res.Principal, ExpiresAt: res.ExpiresAt})
}

// Logout revokes the session and clears the cookie. It succeeds without a
// session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.SessionID != "" {
		if err := h.sessions.Logout(r.Context(), p.SessionID); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("session not revoked")
		}
	}
	auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated principal.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeCode(w, r, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
