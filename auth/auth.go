// Package auth carries the authenticated principal through requests. The
// browser holds a signed cookie with an opaque session id; a Resolver turns
// that id into a Principal.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/internal/lifecycle"
)

const sessionCookieName = "ejaar_session"

// ErrNoSession is returned by resolvers when the session id does not name a
// usable session. The cookie is cleared.
var ErrNoSession = errors.New("auth: no session")

// Principal is the user behind a request.
type Principal struct {
	SessionID string         `json:"-"`
	UserID    string         `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name,omitempty"`
	Role      lifecycle.Role `json:"role"`
}

// IsAdmin reports whether the principal has the admin role.
func (p *Principal) IsAdmin() bool { return p != nil && p.Role == lifecycle.RoleAdmin }

// Resolver loads the principal of a session. The returned context may carry
// extra request scoped values such as the backend token.
type Resolver func(ctx context.Context, sessionID string) (context.Context, *Principal, error)

var (
	mu     sync.RWMutex
	secret = []byte("devsessionsecret")
	secure bool
)

// Configure sets the cookie signing secret and the Secure flag.
func Configure(sessionSecret string, secureCookie bool) {
	mu.Lock()
	defer mu.Unlock()
	if sessionSecret != "" {
		secret = []byte(sessionSecret)
	}
	secure = secureCookie
}

func sign(value string) string {
	mu.RLock()
	mac := hmac.New(sha256.New, secret)
	mu.RUnlock()
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// CreateSession sets the signed session cookie.
func CreateSession(w http.ResponseWriter, sessionID string, expires time.Time) {
	mu.RLock()
	sec := secure
	mu.RUnlock()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID + "." + sign(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   sec,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

// ClearSession deletes the session cookie.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", Expires: time.Unix(0, 0), MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

// ParseSession validates the cookie and returns the session id.
func ParseSession(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	id, sig, ok := strings.Cut(c.Value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(sign(id))) {
		return "", false
	}
	return id, true
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Middleware attaches the principal to the request context when the session
// cookie resolves. Requests without a usable session continue anonymously.
func Middleware(resolve Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid, ok := ParseSession(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx, p, err := resolve(r.Context(), sid)
			if err != nil {
				if errors.Is(err, ErrNoSession) {
					ClearSession(w)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

// RequireAuth answers 401 when no principal is attached.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
