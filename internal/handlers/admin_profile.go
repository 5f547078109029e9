package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"gorm.io/gorm"

	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/httpx"
	"github.com/diewo77/ejaar/internal/logging"
	"github.com/diewo77/ejaar/internal/models"
)

// CacheInvalidator drops cached profiles.
type CacheInvalidator interface {
	InvalidateAll()
}

// AdminProfileHandler lets admins review role profiles and change their
// permissions.
type AdminProfileHandler struct {
	DB    *gorm.DB
	Cache CacheInvalidator // To invalidate cache on changes
}

func NewAdminProfileHandler(db *gorm.DB, cache CacheInvalidator) *AdminProfileHandler {
	return &AdminProfileHandler{DB: db, Cache: cache}
}

type profileView struct {
	ID          uint     `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	IsSystem    bool     `json:"is_system"`
	Permissions []string `json:"permissions"`
}

func toProfileView(p models.Profile) profileView {
	codes := p.Codes()
	slices.Sort(codes)
	return profileView{ID: p.ID, Name: p.Name, Description: p.Description, IsSystem: p.IsSystem, Permissions: codes}
}

// List handles GET /admin/profiles.
func (h *AdminProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	var profiles []models.Profile
	if err := h.DB.WithContext(r.Context()).Preload("Permissions").Order("name").Find(&profiles).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	out := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profiles": out})
}

// ListPermissions handles GET /admin/permissions.
func (h *AdminProfileHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	var permissions []models.Permission
	if err := h.DB.WithContext(r.Context()).Order("resource_type, action").Find(&permissions).Error; err != nil {
		WriteError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// SavePermissions handles PUT /admin/profiles/{id}/permissions. The body
// lists "resource:action" codes that replace the current permissions.
func (h *AdminProfileHandler) SavePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeCode(w, r, http.StatusBadRequest, "bad_request", map[string]string{"id": "invalid"})
		return
	}
	var in permissionsRequest
	if err := httpx.DecodeJSON(w, r, maxJSONBody, &in); err != nil {
		writeCode(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}

	db := h.DB.WithContext(r.Context())
	var profile models.Profile
	if err := db.First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeCode(w, r, http.StatusNotFound, "not_found", nil)
			return
		}
		WriteError(w, r, err)
		return
	}

	// Resolve codes against the seeded permission rows
	permissions := make([]models.Permission, 0, len(in.Permissions))
	invalid := map[string]string{}
	for _, code := range in.Permissions {
		resource, action := gate.Permission(code).Parse()
		if resource == "" {
			invalid[code] = "invalid"
			continue
		}
		var row models.Permission
		if err := db.Where("resource_type = ? AND action = ?", resource, string(action)).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				invalid[code] = "invalid"
				continue
			}
			WriteError(w, r, err)
			return
		}
		if !slices.ContainsFunc(permissions, func(p models.Permission) bool { return p.ID == row.ID }) {
			permissions = append(permissions, row)
		}
	}
	if len(invalid) > 0 {
		writeCode(w, r, http.StatusUnprocessableEntity, "validation_failed", invalid)
		return
	}

	// Replace the profile's permissions (GORM handles the many2many table)
	if err := db.Model(&profile).Association("Permissions").Replace(permissions); err != nil {
		WriteError(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.InvalidateAll()
	}
	logging.FromContext(r.Context()).WithField("profile", profile.Name).WithField("permissions", len(permissions)).Info("profile permissions replaced")

	profile.Permissions = permissions
	httpx.JSON(w, http.StatusOK, toProfileView(profile))
}
