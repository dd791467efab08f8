package team

import "time"

type Membership struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    string    `gorm:"column:user_id;uniqueIndex:idx_team_members_user_team;not null"`
	TeamID    string    `gorm:"column:team_id;uniqueIndex:idx_team_members_user_team;not null"`
	RoleID    int64     `gorm:"column:role_id;index;not null"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Membership) TableName() string {
	return "team_members"
}
