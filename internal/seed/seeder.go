package seed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/frahmantamala/teamboard/internal/catalog"
	"github.com/frahmantamala/teamboard/internal/role"
	"golang.org/x/sync/errgroup"
)

// GrantedBy is recorded on every binding and audit entry the seeder writes.
const GrantedBy = "system"

type CatalogRegistrar interface {
	Register(ctx context.Context, p catalog.Permission) (*catalog.Permission, error)
}

type RoleSeeder interface {
	EnsureSystemRole(ctx context.Context, r *role.Role) (*role.Role, error)
	BindPermission(ctx context.Context, roleID, permissionID int64, grantedBy string) (bool, error)
}

// Flusher drops every cached permission set, on this instance and its peers.
type Flusher interface {
	FlushAll(ctx context.Context, trigger string) error
}

// FlushTrigger labels the cache flush that follows a seed adding bindings.
const FlushTrigger = "seed"

type Result struct {
	Permissions int
	Roles       int
	NewBindings int
}

type Seeder struct {
	catalog     CatalogRegistrar
	roles       RoleSeeder
	flusher     Flusher
	logger      *slog.Logger
	concurrency int
}

func NewSeeder(catalog CatalogRegistrar, roles RoleSeeder, logger *slog.Logger) *Seeder {
	return &Seeder{
		catalog:     catalog,
		roles:       roles,
		logger:      logger,
		concurrency: 4,
	}
}

// WithFlusher makes Apply flush cached permission sets whenever it adds a binding.
func (s *Seeder) WithFlusher(f Flusher) *Seeder {
	s.flusher = f
	return s
}

// Apply upserts the table's permissions and roles, then binds each role's grants
// through the role service so every new binding is audited. Existing bindings are
// left alone, which makes Apply safe to repeat.
func (s *Seeder) Apply(ctx context.Context, t *Table) (Result, error) {
	var res Result

	permIDs := make(map[string]int64, len(t.Permissions))
	for _, def := range t.Permissions {
		slug, _ := catalog.Parse(def.Slug)
		p, err := s.catalog.Register(ctx, catalog.Permission{
			Slug:        slug,
			Label:       def.Label,
			Description: def.Description,
			IsSystem:    true,
		})
		if err != nil {
			return res, fmt.Errorf("register permission %s: %w", def.Slug, err)
		}
		permIDs[def.Slug] = p.ID
		res.Permissions++
	}

	roleIDs := make(map[string]int64, len(t.Roles))
	for _, def := range t.Roles {
		r, err := s.roles.EnsureSystemRole(ctx, &role.Role{
			Name:           def.Name,
			Slug:           def.Slug,
			Description:    def.Description,
			Type:           role.TypeSystem,
			IsSystem:       true,
			IsActive:       true,
			HierarchyLevel: def.HierarchyLevel,
			CreatedBy:      GrantedBy,
		})
		if err != nil {
			return res, fmt.Errorf("ensure role %s: %w", def.Slug, err)
		}
		roleIDs[def.Slug] = r.ID
		res.Roles++
	}

	var bound atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, def := range t.Roles {
		roleSlug := def.Slug
		roleID := roleIDs[roleSlug]
		grants := t.Grants(roleSlug)

		g.Go(func() error {
			for _, slug := range grants {
				changed, err := s.roles.BindPermission(gctx, roleID, permIDs[slug], GrantedBy)
				if err != nil {
					return fmt.Errorf("bind %s to %s: %w", slug, roleSlug, err)
				}
				if changed {
					bound.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.NewBindings = int(bound.Load())

	if res.NewBindings > 0 && s.flusher != nil {
		if err := s.flusher.FlushAll(ctx, FlushTrigger); err != nil {
			return res, fmt.Errorf("flush permission cache: %w", err)
		}
	}

	s.logger.Info("seed applied",
		"permissions", res.Permissions,
		"roles", res.Roles,
		"new_bindings", res.NewBindings)
	return res, nil
}
