package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/teamboard/internal/catalog"
	permissionDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/permission"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) catalog.RepositoryAPI {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) List(ctx context.Context) ([]*permissionDatamodel.Permission, error) {
	var perms []*permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Order("id ASC").Find(&perms).Error
	return perms, err
}

func (r *PermissionRepository) GetBySlug(ctx context.Context, slug string) (*permissionDatamodel.Permission, error) {
	var p permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error) {
	var p permissionDatamodel.Permission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Upsert keys on slug and refreshes the display fields. The id of the stored row is
// written back into p.
func (r *PermissionRepository) Upsert(ctx context.Context, p *permissionDatamodel.Permission) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "description", "is_system_permission"}),
	}).Create(p).Error
	if err != nil {
		return err
	}

	// ON CONFLICT DO UPDATE does not return the existing id on every driver
	stored, err := r.GetBySlug(ctx, p.Slug)
	if err != nil {
		return err
	}
	if stored != nil {
		*p = *stored
	}
	return nil
}
