package authz

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/audit"
	"github.com/frahmantamala/teamboard/internal/catalog"
	"github.com/frahmantamala/teamboard/internal/core/events"
	"github.com/frahmantamala/teamboard/internal/permcache"
	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/frahmantamala/teamboard/internal/role"
	"github.com/frahmantamala/teamboard/internal/team"
)

type CatalogAPI interface {
	ListPermissions(ctx context.Context) ([]catalog.Permission, error)
	Lookup(ctx context.Context, slug string) (*catalog.Permission, error)
}

type RoleAPI interface {
	GetRole(ctx context.Context, slugOrID string) (*role.Role, error)
	GetBindings(ctx context.Context, roleID int64) ([]catalog.Permission, error)
	BindPermission(ctx context.Context, roleID, permissionID int64, grantedBy string) (bool, error)
	UnbindPermission(ctx context.Context, roleID, permissionID int64, revokedBy string) (bool, error)
	CreateRole(ctx context.Context, dto role.CreateRoleDTO, createdBy string) (*role.Role, error)
	Deactivate(ctx context.Context, roleID int64) (*role.Role, error)
	SetHierarchyLevel(ctx context.Context, roleID int64, level int) (*role.Role, error)
}

type TeamAPI interface {
	AssignRole(ctx context.Context, userID, teamID string, roleID int64) (int64, error)
	MembersWithRole(ctx context.Context, roleID int64) ([]team.Member, error)
}

type Checker interface {
	Check(ctx context.Context, req resolver.CheckRequest) (resolver.PermissionCheck, error)
}

type Deps struct {
	Catalog CatalogAPI
	Roles   RoleAPI
	Teams   TeamAPI
	// Source is the cached resolver; Checker must read through the same one.
	Source  resolver.Source
	Checker Checker
	Cache   permcache.Invalidator
	Audit   audit.Sink
	Bus     *events.EventBus
	Logger  *slog.Logger
}

// Actor is the caller of a role mutation. Roles are shared by every team, so the
// actor's rank is the level of the role they hold in TeamID, the team they act in.
type Actor struct {
	UserID string
	TeamID string
}

func ActorFromContext(ctx context.Context) Actor {
	return Actor{UserID: internal.UserIDFromContext(ctx), TeamID: internal.TeamIDFromContext(ctx)}
}

// Service is the entry point for handlers and commands. Every mutation that can change
// a resolved permission set invalidates the affected cache entries before it returns.
type Service struct {
	catalog CatalogAPI
	roles   RoleAPI
	teams   TeamAPI
	source  resolver.Source
	checker Checker
	cache   permcache.Invalidator
	audit   audit.Sink
	bus     *events.EventBus
	logger  *slog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		catalog: d.Catalog,
		roles:   d.Roles,
		teams:   d.Teams,
		source:  d.Source,
		checker: d.Checker,
		cache:   d.Cache,
		audit:   d.Audit,
		bus:     d.Bus,
		logger:  d.Logger,
	}
}

func (s *Service) Check(ctx context.Context, req resolver.CheckRequest) (resolver.PermissionCheck, error) {
	return s.checker.Check(ctx, req)
}

func (s *Service) Resolve(ctx context.Context, userID, teamID string) (*resolver.Resolution, error) {
	if teamID == "" {
		return nil, internal.ErrMissingTeam
	}
	return s.source.Resolve(ctx, userID, teamID)
}

func (s *Service) ListPermissions(ctx context.Context) ([]catalog.Permission, error) {
	return s.catalog.ListPermissions(ctx)
}

func (s *Service) GetRole(ctx context.Context, roleRef string) (*role.Role, error) {
	return s.roles.GetRole(ctx, roleRef)
}

func (s *Service) GetRoleBindings(ctx context.Context, roleRef string) (*role.Role, []catalog.Permission, error) {
	r, err := s.roles.GetRole(ctx, roleRef)
	if err != nil {
		return nil, nil, err
	}
	perms, err := s.roles.GetBindings(ctx, r.ID)
	if err != nil {
		return nil, nil, err
	}
	return r, perms, nil
}

// CreateRole adds a custom role. Its level may not exceed the actor's own.
func (s *Service) CreateRole(ctx context.Context, dto role.CreateRoleDTO, actor Actor) (*role.Role, error) {
	rank, err := s.actorRank(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !resolver.HasHigherHierarchy(rank.HierarchyLevel, dto.HierarchyLevel) {
		s.refused("create_role", actor, rank, dto.Slug, dto.HierarchyLevel)
		return nil, internal.ErrInsufficientHierarchy
	}
	return s.roles.CreateRole(ctx, dto, actor.UserID)
}

// BindPermission grants permissionSlug to the role. Members holding the role are
// invalidated even when the binding already existed, so a retry after a failed
// invalidation still clears stale entries.
func (s *Service) BindPermission(ctx context.Context, roleRef, permissionSlug string, actor Actor) (bool, error) {
	return s.changeBinding(ctx, roleRef, permissionSlug, actor, true)
}

func (s *Service) UnbindPermission(ctx context.Context, roleRef, permissionSlug string, actor Actor) (bool, error) {
	return s.changeBinding(ctx, roleRef, permissionSlug, actor, false)
}

func (s *Service) changeBinding(ctx context.Context, roleRef, permissionSlug string, actor Actor, grant bool) (bool, error) {
	r, err := s.mutationRole(ctx, roleRef)
	if err != nil {
		return false, err
	}
	if err := s.requireRank(ctx, actor, r, "change_binding"); err != nil {
		return false, err
	}
	perm, err := s.catalog.Lookup(ctx, permissionSlug)
	if err != nil {
		return false, err
	}

	var changed bool
	if grant {
		changed, err = s.roles.BindPermission(ctx, r.ID, perm.ID, actor.UserID)
	} else {
		changed, err = s.roles.UnbindPermission(ctx, r.ID, perm.ID, actor.UserID)
	}
	if err != nil {
		return false, err
	}

	inv, err := s.invalidateRole(ctx, events.EventTypeRoleBindingChanged, r.ID)
	if err != nil {
		return changed, err
	}

	event := events.NewRoleBindingChangedEvent(r.ID, r.Slug, perm.String(), grant, actor.UserID, inv.subjects)
	event.Changed = changed
	event.FlushAll = inv.flushed
	s.publish(ctx, event)
	return changed, nil
}

// AssignRole sets userID's role in teamID. The actor must be an active member of the
// team whose level is at least that of both the new role and the user's current role.
func (s *Service) AssignRole(ctx context.Context, actorID, teamID, userID, roleRef string) (*Assignment, error) {
	if teamID == "" {
		return nil, internal.ErrMissingTeam
	}

	target, err := s.mutationRole(ctx, roleRef)
	if err != nil {
		return nil, err
	}

	actor, err := s.source.Resolve(ctx, actorID, teamID)
	if err != nil {
		return nil, err
	}
	if !actor.Active {
		return nil, internal.ErrNotTeamMember
	}
	if !resolver.HasHigherHierarchy(actor.HierarchyLevel, target.HierarchyLevel) {
		s.logger.Warn("role assignment refused by rank gate",
			"actor_id", actorID,
			"actor_level", actor.HierarchyLevel,
			"target_role", target.Slug,
			"target_level", target.HierarchyLevel)
		return nil, internal.ErrInsufficientHierarchy
	}

	current, err := s.source.Resolve(ctx, userID, teamID)
	if err != nil {
		return nil, err
	}
	if current.Active && !resolver.HasHigherHierarchy(actor.HierarchyLevel, current.HierarchyLevel) {
		return nil, internal.ErrInsufficientHierarchy
	}

	previous, err := s.teams.AssignRole(ctx, userID, teamID, target.ID)
	if err != nil {
		return nil, err
	}

	key := permcache.Key{UserID: userID, TeamID: teamID}
	if err := s.cache.Invalidate(ctx, events.EventTypeMemberRoleAssigned, key); err != nil {
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	s.logger.Info("role assigned",
		"actor_id", actorID,
		"user_id", userID,
		"team_id", teamID,
		"role", target.Slug,
		"previous_role_id", previous)
	s.publish(ctx, events.NewMemberRoleAssignedEvent(userID, teamID, target.ID, previous, actorID))

	return &Assignment{UserID: userID, TeamID: teamID, Role: target, PreviousRoleID: previous}, nil
}

func (s *Service) DeactivateRole(ctx context.Context, roleRef string, actor Actor) (*role.Role, error) {
	r, err := s.roles.GetRole(ctx, roleRef)
	if err != nil {
		return nil, err
	}
	if err := s.requireRank(ctx, actor, r, "deactivate_role"); err != nil {
		return nil, err
	}

	r, err = s.roles.Deactivate(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	inv, err := s.invalidateRole(ctx, events.EventTypeRoleDeactivated, r.ID)
	if err != nil {
		return nil, err
	}
	event := events.NewRoleDeactivatedEvent(r.ID, r.Slug, actor.UserID, inv.subjects)
	event.FlushAll = inv.flushed
	s.publish(ctx, event)
	return r, nil
}

// SetHierarchyLevel moves a custom role. The actor must outrank the role both before
// and after the move.
func (s *Service) SetHierarchyLevel(ctx context.Context, roleRef string, level int, actor Actor) (*role.Role, error) {
	r, err := s.roles.GetRole(ctx, roleRef)
	if err != nil {
		return nil, err
	}
	if err := s.requireRank(ctx, actor, r, "set_hierarchy_level"); err != nil {
		return nil, err
	}
	if err := s.requireRank(ctx, actor, &role.Role{Slug: r.Slug, IsActive: true, HierarchyLevel: level}, "set_hierarchy_level"); err != nil {
		return nil, err
	}
	from := r.HierarchyLevel

	r, err = s.roles.SetHierarchyLevel(ctx, r.ID, level)
	if err != nil {
		return nil, err
	}

	inv, err := s.invalidateRole(ctx, events.EventTypeRoleHierarchyChanged, r.ID)
	if err != nil {
		return nil, err
	}
	event := events.NewRoleHierarchyChangedEvent(r.ID, r.Slug, from, level, actor.UserID, inv.subjects)
	event.FlushAll = inv.flushed
	s.publish(ctx, event)
	return r, nil
}

// FlushAll drops every cached permission set here and, through the event bus, on
// every other instance. Used after bulk changes such as a re-seed.
func (s *Service) FlushAll(ctx context.Context, trigger string) error {
	if err := s.cache.InvalidateAll(ctx, trigger); err != nil {
		s.logger.Error("failed to flush permission cache", "trigger", trigger, "error", err)
		return internal.ErrStoreUnavailable.WithCause(err)
	}
	s.publish(ctx, events.NewPermissionsFlushedEvent(trigger))
	return nil
}

// SwitchTeam drops the cached sets of both team contexts and returns the resolution
// for toTeam. Switching into a team without an active membership is refused.
func (s *Service) SwitchTeam(ctx context.Context, userID, fromTeam, toTeam string) (*resolver.Resolution, error) {
	if toTeam == "" {
		return nil, internal.ErrMissingTeam
	}

	keys := []permcache.Key{{UserID: userID, TeamID: toTeam}}
	if fromTeam != "" && fromTeam != toTeam {
		keys = append(keys, permcache.Key{UserID: userID, TeamID: fromTeam})
	}
	if err := s.cache.Invalidate(ctx, events.EventTypeTeamSwitched, keys...); err != nil {
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	res, err := s.source.Resolve(ctx, userID, toTeam)
	if err != nil {
		return nil, err
	}
	if !res.Active {
		return nil, internal.ErrNotTeamMember
	}

	s.publish(ctx, events.NewTeamSwitchedEvent(userID, fromTeam, toTeam))
	return res, nil
}

func (s *Service) QueryAudit(ctx context.Context, f audit.Filter) (audit.Cursor, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, internal.NewValidationFieldError("action", "action must be granted, revoked, checked or denied", internal.ErrCodeValidationFailed)
	}
	cursor, err := s.audit.Query(ctx, f)
	if err != nil {
		s.logger.Error("failed to query audit log", "error", err)
		return nil, internal.ErrAuditUnavailable.WithCause(err)
	}
	return cursor, nil
}

// mutationRole resolves a role reference for a write; a missing role is a validation
// failure rather than a not-found.
func (s *Service) mutationRole(ctx context.Context, roleRef string) (*role.Role, error) {
	r, err := s.roles.GetRole(ctx, roleRef)
	if errors.Is(err, internal.ErrRoleNotFound) {
		return nil, internal.ErrUnknownRole
	}
	return r, err
}

// actorRank resolves the actor's role in the team they are acting in.
func (s *Service) actorRank(ctx context.Context, actor Actor) (*resolver.Resolution, error) {
	if actor.TeamID == "" {
		return nil, internal.ErrMissingTeam
	}
	res, err := s.source.Resolve(ctx, actor.UserID, actor.TeamID)
	if err != nil {
		return nil, err
	}
	if !res.Active {
		return nil, internal.ErrNotTeamMember
	}
	return res, nil
}

// requireRank refuses a mutation of target unless the actor's level is at least target's.
func (s *Service) requireRank(ctx context.Context, actor Actor, target *role.Role, op string) error {
	rank, err := s.actorRank(ctx, actor)
	if err != nil {
		return err
	}
	held := &role.Role{ID: rank.RoleID, Slug: rank.RoleSlug, IsActive: rank.Active, HierarchyLevel: rank.HierarchyLevel}
	if !resolver.CanManageRole(held, target) {
		s.refused(op, actor, rank, target.Slug, target.HierarchyLevel)
		return internal.ErrInsufficientHierarchy
	}
	return nil
}

func (s *Service) refused(op string, actor Actor, rank *resolver.Resolution, target string, targetLevel int) {
	s.logger.Warn("role mutation refused by rank gate",
		"op", op,
		"actor_id", actor.UserID,
		"team_id", actor.TeamID,
		"actor_level", rank.HierarchyLevel,
		"target_role", target,
		"target_level", targetLevel)
}

type invalidation struct {
	subjects []events.Subject
	flushed  bool
}

// invalidateRole drops every member holding roleID. When the member list cannot be
// read, or the keyed invalidation fails, the whole cache is flushed instead.
func (s *Service) invalidateRole(ctx context.Context, trigger string, roleID int64) (invalidation, error) {
	members, err := s.teams.MembersWithRole(ctx, roleID)
	if err != nil {
		s.logger.Warn("member lookup failed, flushing permission cache", "role_id", roleID, "error", err)
		if flushErr := s.cache.InvalidateAll(ctx, trigger); flushErr != nil {
			return invalidation{}, internal.ErrStoreUnavailable.WithCause(flushErr)
		}
		return invalidation{flushed: true}, nil
	}

	inv := invalidation{subjects: make([]events.Subject, 0, len(members))}
	keys := make([]permcache.Key, 0, len(members))
	for _, m := range members {
		keys = append(keys, permcache.Key{UserID: m.UserID, TeamID: m.TeamID})
		inv.subjects = append(inv.subjects, events.Subject{UserID: m.UserID, TeamID: m.TeamID})
	}

	if err := s.cache.Invalidate(ctx, trigger, keys...); err != nil {
		s.logger.Warn("keyed invalidation failed, flushing permission cache", "role_id", roleID, "error", err)
		if flushErr := s.cache.InvalidateAll(ctx, trigger); flushErr != nil {
			return invalidation{}, internal.ErrStoreUnavailable.WithCause(flushErr)
		}
		inv.flushed = true
	}
	return inv, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
