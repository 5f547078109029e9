package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/session"
)

type stubSessions struct {
	login     *session.Login
	err       error
	loggedOut []string
}

func (s *stubSessions) Login(context.Context, string, string) (*session.Login, error) {
	return s.login, s.err
}

func (s *stubSessions) Logout(_ context.Context, id string) error {
	s.loggedOut = append(s.loggedOut, id)
	return nil
}

func postLogin(h *AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Login(rr, req)
	return rr
}

func TestAuthHandler_Login(t *testing.T) {
	ok := &session.Login{
		Principal: auth.Principal{SessionID: "sid-1", UserID: "c1", Email: "client@atlas.ma", Role: lifecycle.RoleClient},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	tests := []struct {
		name   string
		stub   *stubSessions
		body   string
		status int
		code   string
	}{
		{"bad json", &stubSessions{}, `{`, http.StatusBadRequest, "invalid_json"},
		{"missing fields", &stubSessions{}, `{"email":" "}`, http.StatusUnprocessableEntity, "validation_failed"},
		{"wrong password", &stubSessions{err: &backend.APIError{Status: 401}}, `{"email":"a@b.ma","password":"x"}`, http.StatusUnauthorized, "invalid_credentials"},
		{"unsupported role", &stubSessions{err: fmt.Errorf("%w: %q", session.ErrUnsupportedRole, "auditor")}, `{"email":"a@b.ma","password":"x"}`, http.StatusForbidden, "forbidden"},
		{"backend down", &stubSessions{err: &backend.APIError{Status: 503}}, `{"email":"a@b.ma","password":"x"}`, http.StatusServiceUnavailable, "backend_unavailable"},
		{"success", &stubSessions{login: ok}, `{"email":"client@atlas.ma","password":"x"}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postLogin(NewAuthHandler(tt.stub), tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if tt.code != "" && !strings.Contains(rr.Body.String(), `"error":"`+tt.code+`"`) {
				t.Errorf("body = %s", rr.Body.String())
			}
		})
	}
}

func TestAuthHandler_LoginSetsCookie(t *testing.T) {
	stub := &stubSessions{login: &session.Login{
		Principal: auth.Principal{SessionID: "sid-1", UserID: "c1", Email: "client@atlas.ma", Role: lifecycle.RoleClient},
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	rr := postLogin(NewAuthHandler(stub), `{"email":"client@atlas.ma","password":"x"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "sid-1") {
		t.Error("session id leaked in body")
	}

	// The cookie round-trips through ParseSession
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	id, ok := auth.ParseSession(req)
	if !ok || id != "sid-1" {
		t.Errorf("ParseSession = %q, %v", id, ok)
	}
}

func TestAuthHandler_LogoutAndMe(t *testing.T) {
	stub := &stubSessions{}
	h := NewAuthHandler(stub)

	rr := httptest.NewRecorder()
	h.Me(rr, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous me: %d", rr.Code)
	}

	p := &auth.Principal{SessionID: "sid-9", UserID: "a1", Role: lifecycle.RoleAdmin}
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rr = httptest.NewRecorder()
	h.Logout(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("logout: %d", rr.Code)
	}
	if len(stub.loggedOut) != 1 || stub.loggedOut[0] != "sid-9" {
		t.Errorf("revoked = %v", stub.loggedOut)
	}

	// Without a session logout still clears the cookie
	rr = httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if rr.Code != http.StatusNoContent || len(stub.loggedOut) != 1 {
		t.Errorf("anonymous logout: %d %v", rr.Code, stub.loggedOut)
	}
}
