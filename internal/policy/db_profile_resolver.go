package policy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/diewo77/ejaar/auth"
	"github.com/diewo77/ejaar/gate"
	"github.com/diewo77/ejaar/internal/models"
)

// DBProfileResolver loads the profile named after the principal's role.
type DBProfileResolver struct {
	db *gorm.DB
}

func NewDBProfileResolver(db *gorm.DB) *DBProfileResolver {
	return &DBProfileResolver{db: db}
}

// Resolve returns nil without error when the role has no profile row.
func (r *DBProfileResolver) Resolve(ctx context.Context, p *auth.Principal) (gate.Profile, error) {
	var row models.Profile
	err := r.db.WithContext(ctx).Preload("Permissions").Where("name = ?", string(p.Role)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	perms := make([]gate.Permission, 0, len(row.Permissions))
	for _, code := range row.Codes() {
		perms = append(perms, gate.Permission(code))
	}
	return gate.NewStaticProfile(row.Name, perms...), nil
}
