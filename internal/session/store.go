package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/ejaar/internal/models"
)

// ErrNotFound is returned when no session row has the id.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions with gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Create(ctx context.Context, row *models.Session) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	var row models.Session
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateTokens stores a refreshed token pair.
func (s *Store) UpdateTokens(ctx context.Context, id string, access, refresh []byte, accessExpiresAt time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Updates(map[string]any{
		"access_token":      access,
		"refresh_token":     refresh,
		"access_expires_at": accessExpiresAt,
	}).Error
}

// Touch records activity on the session.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Update("last_seen_at", at).Error
}

// Revoke marks the session unusable. Revoking twice keeps the first time.
func (s *Store) Revoke(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
}

// RevokeUser revokes every session of a user.
func (s *Store) RevokeUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at)
	return res.RowsAffected, res.Error
}

// Purge deletes expired and revoked sessions.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at IS NOT NULL", now).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
