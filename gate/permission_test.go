package gate_test

import (
	"testing"

	"github.com/diewo77/ejaar/gate"
)

func TestPermissionParse(t *testing.T) {
	res, act := gate.NewPermission("quotation", "submit").Parse()
	if res != "quotation" || act != "submit" {
		t.Errorf("got %q %q", res, act)
	}
	for _, bad := range []gate.Permission{"", "quotation", ":view", "quotation:"} {
		if bad.Valid() {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestPermissionMatches(t *testing.T) {
	tests := []struct {
		granted   gate.Permission
		requested gate.Permission
		want      bool
	}{
		{"*:*", "quotation:submit", true},
		{"quotation:submit", "quotation:submit", true},
		{"quotation:*", "quotation:forward", true},
		{"*:view", "document:view", true},
		{"*:view", "document:upload", false},
		{"quotation:*", "document:upload", false},
		{"quotation:view", "quotation:list", false},
		{"document:upload", "document", false},
		{"broken", "quotation:view", false},
	}
	for _, tt := range tests {
		if got := tt.granted.Matches(tt.requested); got != tt.want {
			t.Errorf("%q.Matches(%q) = %v, want %v", tt.granted, tt.requested, got, tt.want)
		}
	}
}

func TestStaticProfile(t *testing.T) {
	p := gate.NewStaticProfile("client",
		"quotation:view", "document:upload", "quotation:view", "invalid",
	)
	if got := p.Permissions(); len(got) != 2 || got[0] != "document:upload" {
		t.Fatalf("permissions = %v", got)
	}
	if !p.HasPermission("quotation:view") {
		t.Error("expected quotation:view")
	}
	if p.HasPermission("quotation:forward") {
		t.Error("unexpected quotation:forward")
	}
	perms := p.Permissions()
	perms[0] = "*:*"
	if p.HasPermission("quotation:forward") {
		t.Error("Permissions must return a copy")
	}
}
