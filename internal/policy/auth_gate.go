// Package policy wires the gate to the portal: role profiles stored in the
// database and the resource policies of quotations, documents and
// contracts.
package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/internal/lifecycle"
)

// Resource types known to the gate.
const (
	ResourceQuotation = "quotation"
	ResourceDocument  = "document"
	ResourceContract  = "contract"
	ResourceDashboard = "dashboard"
	ResourceClient    = "client"
	ResourceProfile   = "profile"
)

// RoleKey caches profiles per role: every user of a role shares it.
func RoleKey(p *auth.Principal) lifecycle.Role { return p.Role }

// AuthGate authorizes the principal found in the request context.
type AuthGate struct {
	Gate          *gate.Gate[*auth.Principal]
	CacheResolver *gate.CachedResolver[*auth.Principal, lifecycle.Role]
}

// NewAuthGate builds a gate whose profiles come from db, cached for ttl.
func NewAuthGate(db *gorm.DB, ttl time.Duration) *AuthGate {
	cached := gate.NewCachedResolver[*auth.Principal](NewDBProfileResolver(db), ttl, RoleKey)
	return &AuthGate{Gate: gate.New[*auth.Principal](cached), CacheResolver: cached}
}

// RegisterPolicy sets the resource policy of resourceType.
func (a *AuthGate) RegisterPolicy(resourceType string, p gate.Policy[*auth.Principal]) {
	a.Gate.Register(resourceType, p)
}

func principal(ctx context.Context) *auth.Principal {
	p, _ := auth.PrincipalFromContext(ctx)
	return p
}

// Authorize checks the context principal.
func (a *AuthGate) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	return a.Gate.Authorize(ctx, principal(ctx), action, resourceType, resource)
}

func (a *AuthGate) Can(ctx context.Context, action gate.Action, resourceType string, resource any) bool {
	return a.Authorize(ctx, action, resourceType, resource) == nil
}

// CanProfile checks the profile permission only.
func (a *AuthGate) CanProfile(ctx context.Context, action gate.Action, resourceType string) bool {
	return a.Gate.CanProfile(ctx, principal(ctx), action, resourceType)
}

// InvalidateAll drops cached profiles after permissions changed.
func (a *AuthGate) InvalidateAll() { a.CacheResolver.InvalidateAll() }

// RequirePermission rejects requests whose profile lacks
// "resourceType:action". Resource policies are checked by the services
// once the resource is loaded.
func (a *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.Authorize(r.Context(), action, resourceType, nil); err != nil {
				writeDenied(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin only lets through profiles holding the "*:*" permission.
func (a *AuthGate) RequireAdmin() func(http.Handler) http.Handler {
	return a.RequirePermission(gate.Wildcard, gate.Wildcard)
}

func writeDenied(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gate.ErrUnauthenticated):
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
	case errors.Is(err, gate.ErrDenied):
		httpx.JSONError(w, http.StatusForbidden, "forbidden", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
