package authz

import (
	"time"

	"github.com/frahmantamala/teamboard/internal/audit"
	"github.com/frahmantamala/teamboard/internal/role"
)

type CheckPermissionDTO struct {
	Permission   string `json:"permission" validate:"required,max=128"`
	TeamID       string `json:"team_id" validate:"max=64"`
	ResourceType string `json:"resource_type" validate:"max=64"`
	ResourceID   string `json:"resource_id" validate:"max=128"`
	LogGranted   bool   `json:"log_granted"`
}

type BindPermissionDTO struct {
	Permission string `json:"permission" validate:"required,max=128"`
}

type AssignRoleDTO struct {
	Role string `json:"role" validate:"required,max=64"`
}

type SetHierarchyDTO struct {
	HierarchyLevel *int `json:"hierarchy_level" validate:"required,min=0,max=1000"`
}

type SwitchTeamDTO struct {
	FromTeamID string `json:"from_team_id" validate:"max=64"`
}

// Assignment is the outcome of AssignRole.
type Assignment struct {
	UserID         string
	TeamID         string
	Role           *role.Role
	PreviousRoleID int64
}

type AssignmentResponse struct {
	UserID         string            `json:"user_id"`
	TeamID         string            `json:"team_id"`
	Role           role.RoleResponse `json:"role"`
	PreviousRoleID int64             `json:"previous_role_id,omitempty"`
}

func (a *Assignment) ToResponse() AssignmentResponse {
	return AssignmentResponse{
		UserID:         a.UserID,
		TeamID:         a.TeamID,
		Role:           a.Role.ToResponse(),
		PreviousRoleID: a.PreviousRoleID,
	}
}

type BindingChangeResponse struct {
	Role       string `json:"role"`
	Permission string `json:"permission"`
	Changed    bool   `json:"changed"`
}

// AuditEntryResponse is one NDJSON line of the audit stream.
type AuditEntryResponse struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Action         audit.Action   `json:"action"`
	PermissionSlug string         `json:"permission_slug"`
	ResourceType   string         `json:"resource_type,omitempty"`
	ResourceID     string         `json:"resource_id,omitempty"`
	TeamID         string         `json:"team_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func ToAuditEntryResponse(e audit.Entry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:             e.ID,
		UserID:         e.UserID,
		Action:         e.Action,
		PermissionSlug: e.PermissionSlug,
		ResourceType:   e.ResourceType,
		ResourceID:     e.ResourceID,
		TeamID:         e.TeamID,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt,
	}
}
