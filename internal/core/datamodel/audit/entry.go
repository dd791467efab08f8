package audit

import "time"

// Entry rows are insert-only. The db tags serve the sqlx read path.
type Entry struct {
	ID             string    `gorm:"column:id;primaryKey" db:"id"`
	UserID         string    `gorm:"column:user_id;index;not null" db:"user_id"`
	Action         string    `gorm:"column:action;not null" db:"action"`
	PermissionSlug string    `gorm:"column:permission_slug;not null" db:"permission_slug"`
	ResourceType   string    `gorm:"column:resource_type" db:"resource_type"`
	ResourceID     string    `gorm:"column:resource_id" db:"resource_id"`
	TeamID         string    `gorm:"column:team_id;index" db:"team_id"`
	Metadata       string    `gorm:"column:metadata" db:"metadata"`
	CreatedAt      time.Time `gorm:"column:created_at;index;not null" db:"created_at"`
}

func (Entry) TableName() string {
	return "permission_audit_logs"
}
