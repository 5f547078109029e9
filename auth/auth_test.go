package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diewo77/ejaar/internal/lifecycle"
)

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestSessionCookieRoundTrip(t *testing.T) {
	Configure("test-secret", false)
	rec := httptest.NewRecorder()
	CreateSession(rec, "abc-123", time.Now().Add(time.Hour))
	c := cookieFrom(t, rec)
	if !c.HttpOnly {
		t.Fatal("cookie must be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	id, ok := ParseSession(req)
	if !ok || id != "abc-123" {
		t.Fatalf("ParseSession = %q, %v", id, ok)
	}
}

func TestParseSessionRejectsTampering(t *testing.T) {
	Configure("test-secret", false)
	rec := httptest.NewRecorder()
	CreateSession(rec, "abc-123", time.Now().Add(time.Hour))
	c := cookieFrom(t, rec)

	cases := map[string]string{
		"other id":  "abc-124" + c.Value[len("abc-123"):],
		"no sig":    "abc-123",
		"empty id":  "." + c.Value[len("abc-123."):],
		"bad sig":   "abc-123.AAAA",
		"empty val": "",
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: v})
			if _, ok := ParseSession(req); ok {
				t.Fatalf("value %q accepted", v)
			}
		})
	}

	Configure("rotated-secret", false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	if _, ok := ParseSession(req); ok {
		t.Fatal("cookie signed with old secret accepted")
	}
}

func TestMiddlewareResolvesPrincipal(t *testing.T) {
	Configure("test-secret", false)
	type marker struct{}
	resolve := func(ctx context.Context, sid string) (context.Context, *Principal, error) {
		switch sid {
		case "good":
			return context.WithValue(ctx, marker{}, "token"), &Principal{SessionID: sid, UserID: "u1", Role: lifecycle.RoleClient}, nil
		case "down":
			return nil, nil, errors.New("backend down")
		}
		return nil, nil, ErrNoSession
	}

	var got *Principal
	var extra any
	h := Middleware(resolve)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		extra = r.Context().Value(marker{})
	}))

	serve := func(sid string) *httptest.ResponseRecorder {
		set := httptest.NewRecorder()
		CreateSession(set, sid, time.Now().Add(time.Hour))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookieFrom(t, set))
		rec := httptest.NewRecorder()
		got, extra = nil, nil
		h.ServeHTTP(rec, req)
		return rec
	}

	serve("good")
	if got == nil || got.UserID != "u1" || extra != "token" {
		t.Fatalf("principal not attached: %+v %v", got, extra)
	}

	rec := serve("gone")
	if got != nil {
		t.Fatal("unknown session must be anonymous")
	}
	if c := cookieFrom(t, rec); c.MaxAge >= 0 {
		t.Fatal("unknown session cookie must be cleared")
	}

	rec = serve("down")
	if got != nil {
		t.Fatal("failed resolve must be anonymous")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("transient failure must keep the cookie")
	}
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{UserID: "u1", Role: lifecycle.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIsAdmin(t *testing.T) {
	var nilP *Principal
	if nilP.IsAdmin() {
		t.Fatal("nil principal is not admin")
	}
	if !(&Principal{Role: lifecycle.RoleAdmin}).IsAdmin() {
		t.Fatal("admin role not detected")
	}
}
