package db

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/ejaar/internal/config"
	"github.com/diewo77/ejaar/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	d, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}, log)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestMigrateCreatesTables(t *testing.T) {
	d := openTestDB(t)
	if err := Migrate(d); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, table := range requiredTables {
		if !d.Migrator().HasTable(table) {
			t.Errorf("missing table %s", table)
		}
	}
}

func TestSeedIdempotent(t *testing.T) {
	d := openTestDB(t)
	if err := Migrate(d); err != nil {
		t.Fatal(err)
	}
	if err := Seed(d); err != nil {
		t.Fatal(err)
	}
	if err := Seed(d); err != nil {
		t.Fatal(err)
	}

	var profiles, perms int64
	d.Model(&models.Profile{}).Count(&profiles)
	d.Model(&models.Permission{}).Where("resource_type = ? AND action = ?", "quotation", "submit").Count(&perms)
	if profiles != 4 {
		t.Fatalf("expected 4 profiles, got %d", profiles)
	}
	if perms != 1 {
		t.Fatalf("quotation:submit duplicated or missing: %d", perms)
	}

	var client models.Profile
	if err := d.Preload("Permissions").Where("name = ?", "client").First(&client).Error; err != nil {
		t.Fatal(err)
	}
	codes := map[string]bool{}
	for _, c := range client.Codes() {
		codes[c] = true
	}
	if !codes["quotation:submit"] || !codes["document:upload"] {
		t.Fatalf("client profile missing permissions: %v", client.Codes())
	}
	if codes["quotation:validate"] {
		t.Fatalf("client must not validate")
	}
}

func TestSeedKeepsEditedProfiles(t *testing.T) {
	d := openTestDB(t)
	if err := Migrate(d); err != nil {
		t.Fatal(err)
	}
	if err := Seed(d); err != nil {
		t.Fatal(err)
	}
	var bank models.Profile
	d.Where("name = ?", "bank").First(&bank)
	if err := d.Model(&bank).Association("Permissions").Clear(); err != nil {
		t.Fatal(err)
	}
	if err := Seed(d); err != nil {
		t.Fatal(err)
	}
	if n := d.Model(&bank).Association("Permissions").Count(); n != 0 {
		t.Fatalf("seed overwrote edited profile: %d permissions", n)
	}
}
