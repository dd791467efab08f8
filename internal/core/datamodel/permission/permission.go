package permission

import "time"

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Slug        string    `gorm:"column:slug;uniqueIndex;not null"`
	Module      string    `gorm:"column:module;index;not null"`
	Action      string    `gorm:"column:action;not null"`
	Resource    string    `gorm:"column:resource"`
	Label       string    `gorm:"column:label"`
	Description string    `gorm:"column:description"`
	IsSystem    bool      `gorm:"column:is_system_permission;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string {
	return "permissions"
}
