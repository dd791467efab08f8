package role

import (
	"time"

	roleDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/role"
)

type Type string

const (
	TypeSystem         Type = "system"
	TypeOrganizational Type = "organizational"
	TypeProject        Type = "project"
	TypeCustom         Type = "custom"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSystem, TypeOrganizational, TypeProject, TypeCustom:
		return true
	}
	return false
}

// Well-known system role slugs. Their levels and bindings come from the seed table.
const (
	SlugOwner   = "owner"
	SlugAdmin   = "admin"
	SlugManager = "manager"
	SlugEditor  = "editor"
	SlugViewer  = "viewer"
)

// SystemOrder lists the system roles from most to least authority.
var SystemOrder = []string{SlugOwner, SlugAdmin, SlugManager, SlugEditor, SlugViewer}

type Role struct {
	ID             int64
	Name           string
	Slug           string
	Description    string
	Type           Type
	IsSystem       bool
	IsActive       bool
	HierarchyLevel int
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func FromDataModel(row *roleDatamodel.Role) *Role {
	return &Role{
		ID:             row.ID,
		Name:           row.Name,
		Slug:           row.Slug,
		Description:    row.Description,
		Type:           Type(row.RoleType),
		IsSystem:       row.IsSystemRole,
		IsActive:       row.IsActive,
		HierarchyLevel: row.HierarchyLevel,
		CreatedBy:      row.CreatedBy,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func (r *Role) ToDataModel() *roleDatamodel.Role {
	return &roleDatamodel.Role{
		ID:             r.ID,
		Name:           r.Name,
		Slug:           r.Slug,
		Description:    r.Description,
		RoleType:       string(r.Type),
		IsSystemRole:   r.IsSystem,
		IsActive:       r.IsActive,
		HierarchyLevel: r.HierarchyLevel,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
