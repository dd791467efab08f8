package role

import (
	"time"

	"github.com/frahmantamala/teamboard/internal/catalog"
)

type CreateRoleDTO struct {
	Name           string `json:"name" validate:"required,max=100"`
	Slug           string `json:"slug" validate:"required,max=64,slug"`
	Description    string `json:"description" validate:"max=500"`
	Type           Type   `json:"role_type" validate:"omitempty,oneof=organizational project custom"`
	HierarchyLevel int    `json:"hierarchy_level" validate:"min=0,max=1000"`
}

type RoleResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Description    string    `json:"description,omitempty"`
	Type           Type      `json:"role_type"`
	IsSystem       bool      `json:"is_system_role"`
	IsActive       bool      `json:"is_active"`
	HierarchyLevel int       `json:"hierarchy_level"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type RoleBindingsResponse struct {
	Role        RoleResponse                 `json:"role"`
	Permissions []catalog.PermissionResponse `json:"permissions"`
}

func (r *Role) ToResponse() RoleResponse {
	return RoleResponse{
		ID:             r.ID,
		Name:           r.Name,
		Slug:           r.Slug,
		Description:    r.Description,
		Type:           r.Type,
		IsSystem:       r.IsSystem,
		IsActive:       r.IsActive,
		HierarchyLevel: r.HierarchyLevel,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
