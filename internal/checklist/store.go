package checklist

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/diewo77/ejaar/internal/models"
)

// ErrConcurrentUpdate is returned when a slot changed between load and save.
var ErrConcurrentUpdate = errors.New("document slot was modified concurrently")

// Store persists checklists in the document_slots table.
type Store struct {
	db      *gorm.DB
	catalog *Catalog
	opts    []Option
}

// NewStore returns a store building checklists from catalog with opts.
func NewStore(db *gorm.DB, catalog *Catalog, opts ...Option) *Store {
	return &Store{db: db, catalog: catalog, opts: opts}
}

// Catalog returns the catalog checklists are built from.
func (s *Store) Catalog() *Catalog { return s.catalog }

// Load returns the checklist of a quotation. Slots never written are empty.
func (s *Store) Load(ctx context.Context, quotationID string) (*Checklist, error) {
	return s.load(s.db.WithContext(ctx), quotationID)
}

func (s *Store) load(tx *gorm.DB, quotationID string) (*Checklist, error) {
	var rows []models.DocumentSlot
	if err := tx.Where("quotation_id = ?", quotationID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("checklist: load %s: %w", quotationID, err)
	}
	cl := New(s.catalog, quotationID, s.opts...)
	for _, row := range rows {
		slot, ok := cl.slots[row.DocType]
		if !ok {
			// document type dropped from the catalog
			continue
		}
		st := SlotStatus(row.Status)
		if !st.Valid() {
			st = SlotEmpty
		}
		slot.Status = st
		slot.FileName = row.FileName
		slot.MIMEType = row.MimeType
		slot.Size = row.Size
		slot.RemoteID = row.RemoteID
		slot.URL = row.URL
		slot.Comment = row.Comment
		slot.Error = row.Error
		slot.StartedAt = row.StartedAt
		slot.UpdatedAt = row.UpdatedAt
		slot.rowID = row.ID
		slot.version = row.Version
	}
	return cl, nil
}

// Update loads the checklist, applies fn and saves the modified slots in a
// single transaction. It returns ErrConcurrentUpdate when another writer
// changed a modified slot in the meantime.
func (s *Store) Update(ctx context.Context, quotationID, actor string, fn func(*Checklist) error) (*Checklist, error) {
	var out *Checklist
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cl, err := s.load(tx, quotationID)
		if err != nil {
			return err
		}
		if err := fn(cl); err != nil {
			return err
		}
		if err := s.save(tx, cl, actor); err != nil {
			return err
		}
		out = cl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) save(tx *gorm.DB, cl *Checklist, actor string) error {
	for _, slot := range cl.slots {
		if !slot.dirty {
			continue
		}
		if slot.rowID == 0 {
			row := models.DocumentSlot{
				QuotationID: cl.QuotationID,
				DocType:     slot.DocType,
				Section:     slot.Section,
				Status:      string(slot.Status),
				FileName:    slot.FileName,
				MimeType:    slot.MIMEType,
				Size:        slot.Size,
				RemoteID:    slot.RemoteID,
				URL:         slot.URL,
				Comment:     slot.Comment,
				Error:       slot.Error,
				StartedAt:   slot.StartedAt,
				UpdatedBy:   actor,
				Version:     1,
			}
			if err := tx.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrConcurrentUpdate
				}
				return fmt.Errorf("checklist: insert %s/%s: %w", cl.QuotationID, slot.DocType, err)
			}
			slot.rowID, slot.version = row.ID, row.Version
		} else {
			res := tx.Model(&models.DocumentSlot{}).
				Where("id = ? AND version = ?", slot.rowID, slot.version).
				Updates(map[string]any{
					"status":     string(slot.Status),
					"file_name":  slot.FileName,
					"mime_type":  slot.MIMEType,
					"size":       slot.Size,
					"remote_id":  slot.RemoteID,
					"url":        slot.URL,
					"comment":    slot.Comment,
					"error":      slot.Error,
					"started_at": slot.StartedAt,
					"updated_by": actor,
					"version":    slot.version + 1,
				})
			if res.Error != nil {
				return fmt.Errorf("checklist: update %s/%s: %w", cl.QuotationID, slot.DocType, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrConcurrentUpdate
			}
			slot.version++
		}
		slot.dirty = false
	}
	return nil
}

// Sync reconciles the stored checklist with the backend documents and
// persists any change.
func (s *Store) Sync(ctx context.Context, quotationID string, remote []RemoteDocument) (*Checklist, error) {
	return s.Update(ctx, quotationID, "sync", func(cl *Checklist) error {
		cl.Reconcile(remote)
		return nil
	})
}

// Delete removes every slot of a quotation.
func (s *Store) Delete(ctx context.Context, quotationID string) error {
	return s.db.WithContext(ctx).Where("quotation_id = ?", quotationID).Delete(&models.DocumentSlot{}).Error
}
