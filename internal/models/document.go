package models

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentSlot persists the upload state of one checklist entry.
// Version is bumped on every write and used as an optimistic lock.
type DocumentSlot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	QuotationID string `gorm:"size:64;not null;uniqueIndex:idx_slot_quotation_type" json:"quotation_id"`
	DocType     string `gorm:"size:64;not null;uniqueIndex:idx_slot_quotation_type" json:"doc_type"`
	Section     string `gorm:"size:32;not null" json:"section"`
	Status      string `gorm:"size:20;not null;default:'empty'" json:"status"`

	FileName  string     `gorm:"size:255" json:"file_name,omitempty"`
	MimeType  string     `gorm:"size:100" json:"mime_type,omitempty"`
	Size      int64      `json:"size,omitempty"`
	RemoteID  string     `gorm:"size:64" json:"remote_id,omitempty"`
	URL       string     `gorm:"size:1024" json:"url,omitempty"`
	Comment   string     `gorm:"type:text" json:"comment,omitempty"`
	Error     string     `gorm:"size:500" json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	UpdatedBy string     `gorm:"size:64" json:"updated_by,omitempty"`

	Version int `gorm:"not null;default:1" json:"version"`
}

// TransitionLog records one lifecycle step applied through the portal.
type TransitionLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	QuotationID string `gorm:"size:64;not null;index" json:"quotation_id"`
	Number      string `gorm:"size:64" json:"number,omitempty"`
	Action      string `gorm:"size:20;not null" json:"action"`
	FromStatus  string `gorm:"size:40;not null" json:"from_status"`
	ToStatus    string `gorm:"size:40;not null" json:"to_status"`
	ActorID     string `gorm:"size:64;not null" json:"actor_id"`
	ActorRole   string `gorm:"size:32;not null" json:"actor_role"`
	Comment     string `gorm:"type:text" json:"comment,omitempty"`
	// Payload keeps the checklist snapshot and contract reference at the
	// time of the transition.
	Payload datatypes.JSON `json:"payload,omitempty"`
}

// All lists the models managed by AutoMigrate.
func All() []any {
	return []any{&Profile{}, &Permission{}, &Session{}, &DocumentSlot{}, &TransitionLog{}}
}
