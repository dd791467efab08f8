package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/audit"
	"github.com/frahmantamala/teamboard/internal/catalog"
	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/frahmantamala/teamboard/internal/role"
	"github.com/frahmantamala/teamboard/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Check(ctx context.Context, req resolver.CheckRequest) (resolver.PermissionCheck, error)
	Resolve(ctx context.Context, userID, teamID string) (*resolver.Resolution, error)
	ListPermissions(ctx context.Context) ([]catalog.Permission, error)
	GetRole(ctx context.Context, roleRef string) (*role.Role, error)
	GetRoleBindings(ctx context.Context, roleRef string) (*role.Role, []catalog.Permission, error)
	CreateRole(ctx context.Context, dto role.CreateRoleDTO, actor Actor) (*role.Role, error)
	BindPermission(ctx context.Context, roleRef, permissionSlug string, actor Actor) (bool, error)
	UnbindPermission(ctx context.Context, roleRef, permissionSlug string, actor Actor) (bool, error)
	AssignRole(ctx context.Context, actorID, teamID, userID, roleRef string) (*Assignment, error)
	DeactivateRole(ctx context.Context, roleRef string, actor Actor) (*role.Role, error)
	SetHierarchyLevel(ctx context.Context, roleRef string, level int, actor Actor) (*role.Role, error)
	SwitchTeam(ctx context.Context, userID, fromTeam, toTeam string) (*resolver.Resolution, error)
	QueryAudit(ctx context.Context, f audit.Filter) (audit.Cursor, error)
}

type Handler struct {
	*transport.BaseHandler
	Service          ServiceAPI
	defaultAuditRows int
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI, defaultAuditRows int) *Handler {
	if defaultAuditRows <= 0 {
		defaultAuditRows = 100
	}
	return &Handler{
		BaseHandler:      base,
		Service:          service,
		defaultAuditRows: defaultAuditRows,
	}
}

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.ListPermissions(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if r.URL.Query().Get("group") == "module" {
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{"modules": catalog.ToGroupedResponse(perms)})
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": catalog.ToResponses(perms)})
}

func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	teamID := internal.TeamIDFromContext(r.Context())

	res, err := h.Service.Resolve(r.Context(), userID, teamID)
	if err != nil {
		h.Logger.Error("MyPermissions: resolve failed", "error", err, "user_id", userID, "team_id", teamID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, res)
}

// CheckPermission always answers 200 for a decision; a denial is a body, not a status.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var dto CheckPermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	teamID := dto.TeamID
	if teamID == "" {
		teamID = internal.TeamIDFromContext(r.Context())
	}
	if teamID == "" {
		h.HandleServiceError(w, internal.ErrMissingTeam)
		return
	}

	result, err := h.Service.Check(r.Context(), resolver.CheckRequest{
		UserID:       internal.UserIDFromContext(r.Context()),
		TeamID:       teamID,
		Permission:   dto.Permission,
		ResourceType: dto.ResourceType,
		ResourceID:   dto.ResourceID,
		LogGranted:   dto.LogGranted,
	})
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) SwitchTeam(w http.ResponseWriter, r *http.Request) {
	var dto SwitchTeamDTO
	if r.ContentLength > 0 {
		if err := h.DecodeJSON(r, &dto); err != nil {
			h.HandleServiceError(w, err)
			return
		}
	}
	if dto.FromTeamID == "" {
		dto.FromTeamID = internal.TeamIDFromContext(r.Context())
	}

	userID := internal.UserIDFromContext(r.Context())
	res, err := h.Service.SwitchTeam(r.Context(), userID, dto.FromTeamID, chi.URLParam(r, "teamID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	rl, err := h.Service.GetRole(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rl.ToResponse())
}

func (h *Handler) GetRoleBindings(w http.ResponseWriter, r *http.Request) {
	rl, perms, err := h.Service.GetRoleBindings(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role.RoleBindingsResponse{
		Role:        rl.ToResponse(),
		Permissions: catalog.ToResponses(perms),
	})
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto role.CreateRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	rl, err := h.Service.CreateRole(r.Context(), dto, ActorFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, rl.ToResponse())
}

func (h *Handler) BindPermission(w http.ResponseWriter, r *http.Request) {
	var dto BindPermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	roleRef := chi.URLParam(r, "role")
	changed, err := h.Service.BindPermission(r.Context(), roleRef, dto.Permission, ActorFromContext(r.Context()))
	if err != nil {
		h.Logger.Error("BindPermission: service error", "error", err, "role", roleRef, "permission", dto.Permission)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if changed {
		status = http.StatusCreated
	}
	h.WriteJSON(w, status, BindingChangeResponse{Role: roleRef, Permission: dto.Permission, Changed: changed})
}

func (h *Handler) UnbindPermission(w http.ResponseWriter, r *http.Request) {
	roleRef := chi.URLParam(r, "role")
	permission := chi.URLParam(r, "permission")

	changed, err := h.Service.UnbindPermission(r.Context(), roleRef, permission, ActorFromContext(r.Context()))
	if err != nil {
		h.Logger.Error("UnbindPermission: service error", "error", err, "role", roleRef, "permission", permission)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, BindingChangeResponse{Role: roleRef, Permission: permission, Changed: changed})
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var dto AssignRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	assignment, err := h.Service.AssignRole(r.Context(),
		internal.UserIDFromContext(r.Context()),
		chi.URLParam(r, "teamID"),
		chi.URLParam(r, "userID"),
		dto.Role)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, assignment.ToResponse())
}

func (h *Handler) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	rl, err := h.Service.DeactivateRole(r.Context(), chi.URLParam(r, "role"), ActorFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rl.ToResponse())
}

func (h *Handler) SetHierarchyLevel(w http.ResponseWriter, r *http.Request) {
	var dto SetHierarchyDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	rl, err := h.Service.SetHierarchyLevel(r.Context(), chi.URLParam(r, "role"), *dto.HierarchyLevel, ActorFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rl.ToResponse())
}

// StreamAudit writes matching entries as NDJSON while iterating the cursor, newest first.
func (h *Handler) StreamAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := h.auditFilter(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	cursor, err := h.Service.QueryAudit(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	defer cursor.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	rows := 0
	for cursor.Next() {
		if err := enc.Encode(ToAuditEntryResponse(cursor.Entry())); err != nil {
			h.Logger.Warn("StreamAudit: client went away", "rows", rows, "error", err)
			return
		}
		rows++
		if flusher != nil && rows%50 == 0 {
			flusher.Flush()
		}
	}
	if err := cursor.Err(); err != nil {
		h.Logger.Error("StreamAudit: cursor failed mid-stream", "rows", rows, "error", err)
	}
	if flusher != nil {
		flusher.Flush()
	}
}

// auditFilter scopes the query to the team the caller is acting in. Asking for another
// team's entries is refused rather than silently narrowed.
func (h *Handler) auditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	teamID := internal.TeamIDFromContext(r.Context())
	if teamID == "" {
		return audit.Filter{}, internal.ErrMissingTeam
	}
	if requested := q.Get("team_id"); requested != "" && requested != teamID {
		return audit.Filter{}, internal.ErrPermissionDenied.WithDetails(map[string]string{
			"team_id": requested,
			"reason":  "audit entries of other teams are not visible",
		})
	}

	f := audit.Filter{
		UserID:         q.Get("user_id"),
		TeamID:         teamID,
		Action:         audit.Action(q.Get("action")),
		PermissionSlug: q.Get("permission"),
		Limit:          h.defaultAuditRows,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 10000 {
			return audit.Filter{}, internal.NewValidationFieldError("limit", "limit must be between 1 and 10000", internal.ErrCodeValidationFailed)
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return audit.Filter{}, internal.NewValidationFieldError("since", "since must be an RFC3339 timestamp", internal.ErrCodeValidationFailed)
		}
		f.Since = since
	}
	return f, nil
}
