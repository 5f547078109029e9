package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/config"
	"github.com/diewo77/ejaar/internal/handlers"
	"github.com/diewo77/ejaar/internal/logging"
	"github.com/diewo77/ejaar/internal/metrics"
	"github.com/diewo77/ejaar/internal/middleware"
	"github.com/diewo77/ejaar/internal/policy"
	"github.com/diewo77/ejaar/internal/services"
	"github.com/diewo77/ejaar/internal/session"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	handler   http.Handler
	db        *gorm.DB
	log       *logrus.Logger
	routerCfg *policy.RouterConfig
	sessions  *session.Manager
	limiter   *middleware.RateLimiter

	authHandler      *handlers.AuthHandler
	quotationHandler *handlers.QuotationHandler
	dashboardHandler *handlers.DashboardHandler
	catalogHandler   *handlers.CatalogHandler
	profileHandler   *handlers.AdminProfileHandler
}

// NewApp wires the services and handlers and configures all routes.
func NewApp(cfg *config.Config, db *gorm.DB, be *backend.Client, log *logrus.Logger) (*App, error) {
	catalog := checklist.DefaultCatalog()
	limits := checklist.Limits{MaxSize: cfg.Upload.MaxBytes, MIMETypes: checklist.DefaultMIMETypes}

	sessions, err := session.NewManager(db, be, cfg.Session.Secret, session.Options{
		TTL:           cfg.Session.TTL,
		RefreshWindow: cfg.Session.RefreshWindow,
		JWTSecret:     []byte(cfg.Backend.JWTSecret),
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	auth.Configure(cfg.Session.Secret, cfg.Session.SecureCookie)

	// Create router config with authorization
	routerCfg := policy.NewRouterConfig(db, policy.DefaultProfileTTL, catalog, nil)
	store := checklist.NewStore(db, catalog,
		checklist.WithLimits(limits),
		checklist.WithStaleAfter(cfg.Upload.StaleAfter),
	)
	quotations := services.NewQuotationService(db, be, store, routerCfg.AuthGate,
		services.WithContractMaxSize(cfg.Upload.MaxBytes),
		services.WithLogger(log),
	)

	app := &App{
		mux:              http.NewServeMux(),
		db:               db,
		log:              log,
		routerCfg:        routerCfg,
		sessions:         sessions,
		limiter:          middleware.NewRateLimiter(cfg.Server.LoginRate, cfg.Server.LoginBurst, log),
		authHandler:      handlers.NewAuthHandler(sessions),
		quotationHandler: handlers.NewQuotationHandler(quotations, cfg.Upload.MaxBytes),
		dashboardHandler: handlers.NewDashboardHandler(services.NewDashboardService(quotations)),
		catalogHandler:   handlers.NewCatalogHandler(catalog, limits),
		profileHandler:   handlers.NewAdminProfileHandler(db, routerCfg.AuthGate),
	}
	app.setupRoutes()

	// Applied outermost first
	app.handler = chain(app.mux,
		logging.Recover(log),
		middleware.RequestID,
		logging.Middleware(log),
		metrics.InstrumentHandler,
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.Prefs,
		auth.Middleware(sessions.Resolve),
	)
	return app, nil
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Public routes (no auth required)
	// ─────────────────────────────────────────────────────────────────────────
	ah := a.authHandler

	a.mux.HandleFunc("GET /health", a.health)
	a.mux.HandleFunc("GET /healthz", a.ready)
	a.mux.Handle("GET /metrics", metrics.Handler())
	a.mux.HandleFunc("GET /catalog", a.catalogHandler.Show)
	a.mux.Handle("POST /auth/login", a.limiter.Handler(http.HandlerFunc(ah.Login)))
	a.mux.HandleFunc("POST /auth/logout", ah.Logout)

	// ─────────────────────────────────────────────────────────────────────────
	// Authenticated routes (require logged-in user)
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("GET /auth/me", auth.RequireAuth(http.HandlerFunc(ah.Me)))

	// ─────────────────────────────────────────────────────────────────────────
	// Protected resource routes (require auth + specific permissions)
	// ─────────────────────────────────────────────────────────────────────────
	qh := a.quotationHandler

	a.mux.Handle("GET /dashboard",
		a.protect(policy.ResourceDashboard, gate.ActionView, a.dashboardHandler.Show))

	// Quotations
	a.mux.Handle("GET /quotations",
		a.protect(policy.ResourceQuotation, gate.ActionList, qh.List))
	a.mux.Handle("POST /quotations",
		a.protect(policy.ResourceQuotation, gate.ActionCreate, qh.Create))
	a.mux.Handle("GET /quotations/{id}",
		a.protect(policy.ResourceQuotation, gate.ActionView, qh.Get))
	a.mux.Handle("PUT /quotations/{id}",
		a.protect(policy.ResourceQuotation, gate.ActionUpdate, qh.Update))
	a.mux.Handle("GET /quotations/{id}/history",
		a.protect(policy.ResourceQuotation, gate.ActionView, qh.History))
	// The action decides the permission; the service checks it.
	a.mux.Handle("POST /quotations/{id}/transitions",
		a.protect(policy.ResourceQuotation, gate.ActionView, qh.Transition))
	a.mux.Handle("POST /quotations/{id}/validate",
		a.protect(policy.ResourceQuotation, "validate", qh.Validate))

	// Documents
	a.mux.Handle("GET /quotations/{id}/checklist",
		a.protect(policy.ResourceDocument, gate.ActionView, qh.Checklist))
	a.mux.Handle("POST /quotations/{id}/documents/{type}",
		a.protect(policy.ResourceDocument, gate.ActionUpload, qh.UploadDocument))
	a.mux.Handle("DELETE /quotations/{id}/documents/{type}",
		a.protect(policy.ResourceDocument, gate.ActionDelete, qh.RemoveDocument))
	a.mux.Handle("POST /quotations/{id}/documents/{type}/rectification",
		a.protect(policy.ResourceDocument, gate.ActionRectify, qh.RequestRectification))

	// Contract
	a.mux.Handle("GET /quotations/{id}/contract",
		a.protect(policy.ResourceContract, gate.ActionDownload, qh.Contract))

	// Clients
	a.mux.Handle("GET /clients",
		a.protect(policy.ResourceClient, gate.ActionList, qh.Clients))

	// ─────────────────────────────────────────────────────────────────────────
	// Admin routes (require admin profile with *:* permission)
	// ─────────────────────────────────────────────────────────────────────────
	aph := a.profileHandler

	a.mux.Handle("GET /admin/profiles", a.requireAdmin(http.HandlerFunc(aph.List)))
	a.mux.Handle("GET /admin/permissions", a.requireAdmin(http.HandlerFunc(aph.ListPermissions)))
	a.mux.Handle("PUT /admin/profiles/{id}/permissions", a.requireAdmin(http.HandlerFunc(aph.SavePermissions)))
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

// protect requires a session and the "resourceType:action" profile permission.
func (a *App) protect(resourceType string, action gate.Action, h http.HandlerFunc) http.Handler {
	return auth.RequireAuth(a.routerCfg.AuthGate.RequirePermission(resourceType, action)(h))
}

// requireAdmin wraps a handler to require admin permissions.
func (a *App) requireAdmin(next http.Handler) http.Handler {
	return auth.RequireAuth(a.routerCfg.AuthGate.RequireAdmin()(next))
}

// ─────────────────────────────────────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready also checks the database.
func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("database not ready")
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}
