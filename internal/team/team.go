package team

import (
	"time"

	teamDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/team"
)

// Membership is the (user, team) -> role assignment. Team and member CRUD live
// elsewhere; this service only reads and reassigns roles.
type Membership struct {
	UserID    string
	TeamID    string
	RoleID    int64
	IsActive  bool
	UpdatedAt time.Time
}

// Member identifies one permission cache key.
type Member struct {
	UserID string
	TeamID string
}

func FromDataModel(row *teamDatamodel.Membership) *Membership {
	return &Membership{
		UserID:    row.UserID,
		TeamID:    row.TeamID,
		RoleID:    row.RoleID,
		IsActive:  row.IsActive,
		UpdatedAt: row.UpdatedAt,
	}
}
