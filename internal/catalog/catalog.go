package catalog

import (
	"strings"
	"time"

	permissionDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/permission"
)

type Module string

const (
	ModuleProjects    Module = "projects"
	ModuleContent     Module = "content"
	ModuleCompetitive Module = "competitive"
	ModuleAnalytics   Module = "analytics"
	ModuleTeam        Module = "team"
	ModuleSettings    Module = "settings"
	ModuleBilling     Module = "billing"
)

// modules is also the display order used by GroupByModule consumers.
var modules = []Module{
	ModuleProjects,
	ModuleContent,
	ModuleCompetitive,
	ModuleAnalytics,
	ModuleTeam,
	ModuleSettings,
	ModuleBilling,
}

func Modules() []Module {
	out := make([]Module, len(modules))
	copy(out, modules)
	return out
}

func (m Module) Valid() bool {
	for _, known := range modules {
		if m == known {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
	ActionInvite  Action = "invite"
)

var actions = []Action{
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionManage,
	ActionApprove,
	ActionExport,
	ActionInvite,
}

func (a Action) Valid() bool {
	for _, known := range actions {
		if a == known {
			return true
		}
	}
	return false
}

// Slug is the parsed form of `module.action[.resource]`.
type Slug struct {
	Module   Module `json:"module"`
	Action   Action `json:"action"`
	Resource string `json:"resource,omitempty"`
}

func (s Slug) String() string {
	return Format(s)
}

// Parse accepts exactly two or three lowercase dot-separated segments whose module and
// action belong to the closed sets. Any other input returns ok=false; callers deny.
func Parse(slug string) (Slug, bool) {
	parts := strings.Split(slug, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return Slug{}, false
	}
	for _, part := range parts {
		if !validSegment(part) {
			return Slug{}, false
		}
	}

	s := Slug{Module: Module(parts[0]), Action: Action(parts[1])}
	if !s.Module.Valid() || !s.Action.Valid() {
		return Slug{}, false
	}
	if len(parts) == 3 {
		s.Resource = parts[2]
	}
	return s, true
}

func Format(s Slug) string {
	if s.Resource == "" {
		return string(s.Module) + "." + string(s.Action)
	}
	return string(s.Module) + "." + string(s.Action) + "." + s.Resource
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

type Permission struct {
	ID          int64     `json:"id"`
	Slug        Slug      `json:"-"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system_permission"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p Permission) String() string {
	return Format(p.Slug)
}

// GroupByModule partitions permissions by module for display, keeping input order
// within each group. It plays no part in authorization decisions.
func GroupByModule(perms []Permission) map[Module][]Permission {
	groups := make(map[Module][]Permission)
	for _, p := range perms {
		groups[p.Slug.Module] = append(groups[p.Slug.Module], p)
	}
	return groups
}

// FromDataModel converts a stored row. Rows whose slug no longer parses are reported
// with ok=false so they never reach a permission set.
func FromDataModel(row *permissionDatamodel.Permission) (Permission, bool) {
	slug, ok := Parse(row.Slug)
	if !ok {
		return Permission{}, false
	}
	return Permission{
		ID:          row.ID,
		Slug:        slug,
		Label:       row.Label,
		Description: row.Description,
		IsSystem:    row.IsSystem,
		CreatedAt:   row.CreatedAt,
	}, true
}

func (p Permission) ToDataModel() *permissionDatamodel.Permission {
	return &permissionDatamodel.Permission{
		ID:          p.ID,
		Slug:        Format(p.Slug),
		Module:      string(p.Slug.Module),
		Action:      string(p.Slug.Action),
		Resource:    p.Slug.Resource,
		Label:       p.Label,
		Description: p.Description,
		IsSystem:    p.IsSystem,
		CreatedAt:   p.CreatedAt,
	}
}
