package models

import (
	"testing"
	"time"
)

func TestPermission_Code(t *testing.T) {
	p := Permission{ResourceType: "quotation", Action: "submit"}
	if got := p.Code(); got != "quotation:submit" {
		t.Errorf("Code() = %q, want quotation:submit", got)
	}
}

func TestProfile_Codes(t *testing.T) {
	p := Profile{Permissions: []Permission{
		{ResourceType: "quotation", Action: "view"},
		{ResourceType: "document", Action: "upload"},
	}}
	got := p.Codes()
	if len(got) != 2 || got[0] != "quotation:view" || got[1] != "document:upload" {
		t.Errorf("Codes() = %v", got)
	}
}

func TestSession_Active(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"valid", Session{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", Session{ExpiresAt: now.Add(-time.Second)}, false},
		{"revoked", Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Active(now); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}
