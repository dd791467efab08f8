package datamodel

import (
	auditDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/audit"
	permissionDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/role"
	teamDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/team"
	"gorm.io/gorm"
)

// AutoMigrate creates the schema for the sqlite driver and for tests.
// Postgres deployments use the goose migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&permissionDatamodel.Permission{},
		&roleDatamodel.Role{},
		&roleDatamodel.RolePermission{},
		&teamDatamodel.Membership{},
		&auditDatamodel.Entry{},
	)
}
