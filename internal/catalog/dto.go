package catalog

type PermissionResponse struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Resource    string `json:"resource,omitempty"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system_permission"`
}

type ModuleGroupResponse struct {
	Module      string               `json:"module"`
	Permissions []PermissionResponse `json:"permissions"`
}

func (p Permission) ToResponse() PermissionResponse {
	return PermissionResponse{
		ID:          p.ID,
		Slug:        Format(p.Slug),
		Module:      string(p.Slug.Module),
		Action:      string(p.Slug.Action),
		Resource:    p.Slug.Resource,
		Label:       p.Label,
		Description: p.Description,
		IsSystem:    p.IsSystem,
	}
}

func ToResponses(perms []Permission) []PermissionResponse {
	out := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.ToResponse())
	}
	return out
}

// ToGroupedResponse renders GroupByModule in the fixed module display order.
func ToGroupedResponse(perms []Permission) []ModuleGroupResponse {
	groups := GroupByModule(perms)
	out := make([]ModuleGroupResponse, 0, len(groups))
	for _, m := range Modules() {
		group, ok := groups[m]
		if !ok {
			continue
		}
		out = append(out, ModuleGroupResponse{Module: string(m), Permissions: ToResponses(group)})
	}
	return out
}
