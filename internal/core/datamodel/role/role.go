package role

import "time"

type Role struct {
	ID             int64     `gorm:"primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	Slug           string    `gorm:"column:slug;uniqueIndex;not null"`
	Description    string    `gorm:"column:description"`
	RoleType       string    `gorm:"column:role_type;not null"`
	IsSystemRole   bool      `gorm:"column:is_system_role;not null"`
	IsActive       bool      `gorm:"column:is_active;not null"`
	HierarchyLevel int       `gorm:"column:hierarchy_level;not null"`
	CreatedBy      string    `gorm:"column:created_by"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Role) TableName() string {
	return "roles"
}

// RolePermission is the binding row; the composite key forbids duplicate pairs.
type RolePermission struct {
	RoleID       int64     `gorm:"column:role_id;primaryKey"`
	PermissionID int64     `gorm:"column:permission_id;primaryKey;index"`
	GrantedBy    string    `gorm:"column:granted_by"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}
