package handlers

import (
	"net/http"

	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/i18n"
	"github.com/diewo77/ejaar/internal/checklist"
	"github.com/diewo77/ejaar/internal/lifecycle"
	"github.com/diewo77/ejaar/internal/services"
)

type DashboardHandler struct {
	svc *services.DashboardService
}

func NewDashboardHandler(svc *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// Show handles GET /dashboard.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// CatalogHandler publishes the document catalog and the status labels so
// front ends do not hardcode them.
type CatalogHandler struct {
	catalog *checklist.Catalog
	limits  checklist.Limits
}

func NewCatalogHandler(c *checklist.Catalog, limits checklist.Limits) *CatalogHandler {
	if limits.MaxSize <= 0 {
		limits.MaxSize = checklist.DefaultMaxSize
	}
	if len(limits.MIMETypes) == 0 {
		limits.MIMETypes = checklist.DefaultMIMETypes
	}
	return &CatalogHandler{catalog: c, limits: limits}
}

type catalogDocument struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

type catalogSection struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Uploaders []lifecycle.Role  `json:"uploaders"`
	Documents []catalogDocument `json:"documents"`
}

type catalogStatus struct {
	Status lifecycle.Status `json:"status"`
	Slug   string           `json:"slug"`
	Label  string           `json:"label"`
}

type catalogResponse struct {
	Language  string           `json:"language"`
	Sections  []catalogSection `json:"sections"`
	Statuses  []catalogStatus  `json:"statuses"`
	MaxSize   int64            `json:"max_size"`
	MIMETypes []string         `json:"mime_types"`
}

// Show handles GET /catalog.
func (h *CatalogHandler) Show(w http.ResponseWriter, r *http.Request) {
	lang := i18n.LangFromContext(r.Context())
	out := catalogResponse{Language: lang, MaxSize: h.limits.MaxSize, MIMETypes: h.limits.MIMETypes}
	for _, sec := range h.catalog.Sections {
		cs := catalogSection{ID: sec.ID, Label: sec.Label.In(lang), Uploaders: sec.Uploaders}
		for _, d := range sec.Documents {
			cs.Documents = append(cs.Documents, catalogDocument{ID: d.ID, Label: d.Label.In(lang), Required: d.Required})
		}
		out.Sections = append(out.Sections, cs)
	}
	for _, st := range lifecycle.Statuses() {
		out.Statuses = append(out.Statuses, catalogStatus{Status: st, Slug: st.Slug(), Label: i18n.T(lang, "status."+st.Slug())})
	}
	httpx.JSON(w, http.StatusOK, out)
}
