package models

import "time"

// Session is a portal login. Backend tokens are stored sealed.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID string `gorm:"size:64;index;not null" json:"user_id"`
	Email  string `gorm:"size:255" json:"email"`
	Name   string `gorm:"size:255" json:"name,omitempty"`
	Role   string `gorm:"size:32;not null" json:"role"`

	AccessToken     []byte    `gorm:"not null" json:"-"`
	RefreshToken    []byte    `json:"-"`
	AccessExpiresAt time.Time `json:"access_expires_at"`

	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	LastSeenAt time.Time  `json:"last_seen_at"`
}

// Active reports whether the session may still be used at t.
func (s *Session) Active(t time.Time) bool {
	return s.RevokedAt == nil && t.Before(s.ExpiresAt)
}
