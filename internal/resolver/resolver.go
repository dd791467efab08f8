package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/catalog"
	"github.com/frahmantamala/teamboard/internal/role"
	"github.com/frahmantamala/teamboard/internal/team"
	"github.com/frahmantamala/teamboard/pkg/metrics"
)

const (
	ReasonNoActiveRole     = "no active role"
	ReasonInvalidFormat    = "invalid permission format"
	ReasonNotGranted       = "permission not granted"
	ReasonTimeout          = "permission check timed out"
	ReasonStoreUnavailable = "permission store unavailable"
)

// Resolution is the effective permission set of one (user, team) pair.
type Resolution struct {
	UserID         string   `json:"user_id"`
	TeamID         string   `json:"team_id,omitempty"`
	Active         bool     `json:"active"`
	RoleID         int64    `json:"role_id,omitempty"`
	RoleSlug       string   `json:"role,omitempty"`
	HierarchyLevel int      `json:"hierarchy_level"`
	Permissions    []string `json:"permissions"`
	Reason         string   `json:"reason,omitempty"`
}

// Has reports set membership of a canonical slug.
func (r *Resolution) Has(slug string) bool {
	if r == nil || !r.Active {
		return false
	}
	i := sort.SearchStrings(r.Permissions, slug)
	return i < len(r.Permissions) && r.Permissions[i] == slug
}

// Source computes a Resolution. The Resolver and the permission cache both satisfy it.
type Source interface {
	Resolve(ctx context.Context, userID, teamID string) (*Resolution, error)
}

type MembershipReader interface {
	GetActiveMembership(ctx context.Context, userID, teamID string) (*team.Membership, error)
}

type RoleReader interface {
	GetRoleByID(ctx context.Context, id int64) (*role.Role, error)
	GetBindings(ctx context.Context, roleID int64) ([]catalog.Permission, error)
}

type Resolver struct {
	memberships MembershipReader
	roles       RoleReader
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewResolver(memberships MembershipReader, roles RoleReader, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		memberships: memberships,
		roles:       roles,
		logger:      logger,
		metrics:     m,
	}
}

// Resolve returns the bound permissions of the user's active role in teamID. Roles
// above it in the hierarchy contribute nothing. A missing membership, inactive role or
// deleted role yields an empty set with ReasonNoActiveRole rather than an error.
func (r *Resolver) Resolve(ctx context.Context, userID, teamID string) (*Resolution, error) {
	defer r.metrics.ObserveResolve(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	empty := &Resolution{UserID: userID, TeamID: teamID, Permissions: []string{}, Reason: ReasonNoActiveRole}

	membership, err := r.memberships.GetActiveMembership(ctx, userID, teamID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return empty, nil
	}

	rl, err := r.roles.GetRoleByID(ctx, membership.RoleID)
	if err != nil {
		if errors.Is(err, internal.ErrRoleNotFound) {
			r.logger.Warn("membership points at missing role", "user_id", userID, "team_id", teamID, "role_id", membership.RoleID)
			return empty, nil
		}
		return nil, err
	}

	empty.RoleID = rl.ID
	empty.RoleSlug = rl.Slug
	empty.HierarchyLevel = rl.HierarchyLevel
	if !rl.IsActive {
		return empty, nil
	}

	bound, err := r.roles.GetBindings(ctx, rl.ID)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		UserID:         userID,
		TeamID:         teamID,
		Active:         true,
		RoleID:         rl.ID,
		RoleSlug:       rl.Slug,
		HierarchyLevel: rl.HierarchyLevel,
		Permissions:    slugSet(bound),
	}, nil
}

func slugSet(perms []catalog.Permission) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		s := catalog.Format(p.Slug)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// HasHigherHierarchy gates rank-based operations. Equal levels pass: peers hold full
// rank authority over each other.
func HasHigherHierarchy(userLevel, requiredLevel int) bool {
	return userLevel >= requiredLevel
}

// CanManageRole reports whether an actor holding actor may act on members or
// assignments of target.
func CanManageRole(actor, target *role.Role) bool {
	if actor == nil || target == nil || !actor.IsActive {
		return false
	}
	return HasHigherHierarchy(actor.HierarchyLevel, target.HierarchyLevel)
}
