package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/teamboard/internal/audit"
	auditPostgres "github.com/frahmantamala/teamboard/internal/audit/postgres"
	permissionDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/role"
	"github.com/frahmantamala/teamboard/internal/role"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db, now: time.Now}
}

func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	var row roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) GetBySlug(ctx context.Context, slug string) (*roleDatamodel.Role, error) {
	var row roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) Create(ctx context.Context, row *roleDatamodel.Role) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// Upsert keys on slug. is_active is left alone on conflict so a deactivation survives
// a re-seed.
func (r *RoleRepository) Upsert(ctx context.Context, row *roleDatamodel.Role) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "role_type", "is_system_role", "hierarchy_level", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return err
	}

	stored, err := r.GetBySlug(ctx, row.Slug)
	if err != nil {
		return err
	}
	if stored != nil {
		*row = *stored
	}
	return nil
}

func (r *RoleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).Model(&roleDatamodel.Role{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *RoleRepository) SetHierarchyLevel(ctx context.Context, id int64, level int) error {
	return r.db.WithContext(ctx).Model(&roleDatamodel.Role{}).Where("id = ?", id).Update("hierarchy_level", level).Error
}

func (r *RoleRepository) GetBindings(ctx context.Context, roleID int64) ([]*permissionDatamodel.Permission, error) {
	var perms []*permissionDatamodel.Permission
	err := r.db.WithContext(ctx).
		Model(&permissionDatamodel.Permission{}).
		Select("permissions.*").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.id ASC").
		Find(&perms).Error
	return perms, err
}

func (r *RoleRepository) BindPermission(ctx context.Context, roleID, permissionID int64, grantedBy string, entry *audit.Entry) (bool, error) {
	bound := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&roleDatamodel.RolePermission{
			RoleID:       roleID,
			PermissionID: permissionID,
			GrantedBy:    grantedBy,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		bound = true
		return auditPostgres.Insert(tx, entry, r.now())
	})
	if err != nil {
		return false, err
	}
	return bound, nil
}

func (r *RoleRepository) UnbindPermission(ctx context.Context, roleID, permissionID int64, entry *audit.Entry) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("role_id = ? AND permission_id = ?", roleID, permissionID).
			Delete(&roleDatamodel.RolePermission{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		removed = true
		return auditPostgres.Insert(tx, entry, r.now())
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}
