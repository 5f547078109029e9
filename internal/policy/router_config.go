package policy

import (
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/lifecycle"
)

// DefaultProfileTTL is how long role profiles stay cached.
const DefaultProfileTTL = 5 * time.Minute

// RouterConfig holds the authorization pieces the router needs.
//
// Example usage in the server setup:
//
//	cfg := policy.NewRouterConfig(db, policy.DefaultProfileTTL, catalog, machine)
//
//	mux.Handle("GET /api/quotations",
//		cfg.AuthGate.RequirePermission(policy.ResourceQuotation, gate.ActionList)(listHandler))
//	mux.Handle("GET /api/admin/profiles", cfg.AuthGate.RequireAdmin()(profilesHandler))
//
// Handlers that load a resource then call cfg.AuthGate.Authorize with it so
// the registered policy runs.
type RouterConfig struct {
	AuthGate  *AuthGate
	Quotation *QuotationPolicy
	Document  *DocumentPolicy
	Contract  ContractPolicy
}

// NewRouterConfig creates the gate and registers the resource policies.
func NewRouterConfig(db *gorm.DB, ttl time.Duration, catalog *checklist.Catalog, machine *lifecycle.Machine) *RouterConfig {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	cfg := &RouterConfig{
		AuthGate:  NewAuthGate(db, ttl),
		Quotation: NewQuotationPolicy(machine),
		Document:  NewDocumentPolicy(catalog),
	}
	cfg.AuthGate.RegisterPolicy(ResourceQuotation, cfg.Quotation)
	cfg.AuthGate.RegisterPolicy(ResourceDocument, cfg.Document)
	cfg.AuthGate.RegisterPolicy(ResourceContract, cfg.Contract)
	return cfg
}
