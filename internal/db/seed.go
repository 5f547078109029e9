package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/diewo77/ejaar/internal/models"
)

// SeedPermissions creates the core permissions for the application.
func SeedPermissions(db *gorm.DB) error {
	permissions := []struct {
		ResourceType string
		Action       string
		Description  string
	}{
		// Superadmin wildcard
		{"*", "*", "Full system access"},
		// Quotations
		{"quotation", "*", "All quotation actions"},
		{"quotation", "list", "List quotations"},
		{"quotation", "view", "View quotation details"},
		{"quotation", "create", "Create quotations"},
		{"quotation", "update", "Edit draft quotations"},
		{"quotation", "submit", "Submit the folder after document collection"},
		{"quotation", "review", "Start verification of a submitted folder"},
		{"quotation", "forward", "Send a verified folder to the bank"},
		{"quotation", "validate", "Validate a folder and attach the signed contract"},
		// Documents
		{"document", "*", "All document actions"},
		{"document", "view", "View checklist and documents"},
		{"document", "upload", "Upload documents"},
		{"document", "delete", "Remove uploaded documents"},
		{"document", "rectify", "Request document rectification"},
		// Contracts
		{"contract", "download", "Download the signed contract"},
		// Dashboard
		{"dashboard", "view", "View the dashboard"},
		// Clients directory
		{"client", "list", "List clients"},
		// Profile management (admin only)
		{"profile", "*", "All profile management"},
		{"profile", "list", "List profiles"},
		{"profile", "update", "Edit profile permissions"},
	}

	for _, p := range permissions {
		perm := models.Permission{
			ResourceType: p.ResourceType,
			Action:       p.Action,
			Description:  p.Description,
		}
		// Use FirstOrCreate to avoid duplicates
		result := db.Where("resource_type = ? AND action = ?", p.ResourceType, p.Action).
			FirstOrCreate(&perm)
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

// defaultProfiles maps each portal role to its baseline permissions.
var defaultProfiles = []struct {
	Name        string
	Description string
	Permissions []string // "resource:action" format
}{
	{
		Name:        "admin",
		Description: "EJAAR operator with all permissions",
		Permissions: []string{"*:*"},
	},
	{
		Name:        "client",
		Description: "Lessee providing the folder documents",
		Permissions: []string{
			"quotation:list", "quotation:view", "quotation:submit",
			"document:view", "document:upload", "document:delete",
			"contract:download", "dashboard:view",
		},
	},
	{
		Name:        "supplier",
		Description: "Equipment supplier issuing quotations",
		Permissions: []string{
			"quotation:list", "quotation:view", "quotation:create", "quotation:update",
			"document:view", "document:upload", "document:delete",
			"contract:download", "dashboard:view", "client:list",
		},
	},
	{
		Name:        "bank",
		Description: "Partner bank validating folders",
		Permissions: []string{
			"quotation:list", "quotation:view", "quotation:validate",
			"document:view", "contract:download", "dashboard:view",
		},
	},
}

// SeedProfiles creates the role profiles. Existing profiles keep the
// permissions an administrator may have changed.
func SeedProfiles(db *gorm.DB) error {
	if err := SeedPermissions(db); err != nil {
		return err
	}

	for _, p := range defaultProfiles {
		var profile models.Profile
		result := db.Where("name = ?", p.Name).First(&profile)
		if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result.Error == nil {
			continue
		}

		profile = models.Profile{
			Name:        p.Name,
			Description: p.Description,
			IsSystem:    true,
		}
		if err := db.Create(&profile).Error; err != nil {
			return err
		}

		var perms []models.Permission
		for _, code := range p.Permissions {
			resource, action, ok := strings.Cut(code, ":")
			if !ok {
				continue
			}
			var perm models.Permission
			if err := db.Where("resource_type = ? AND action = ?", resource, action).First(&perm).Error; err == nil {
				perms = append(perms, perm)
			}
		}
		if err := db.Model(&profile).Association("Permissions").Replace(perms); err != nil {
			return err
		}
	}
	return nil
}

// Seed inserts the default data.
func Seed(db *gorm.DB) error {
	return SeedProfiles(db)
}
