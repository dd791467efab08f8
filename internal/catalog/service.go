package catalog

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/teamboard/internal"
	permissionDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/permission"
)

type RepositoryAPI interface {
	List(ctx context.Context) ([]*permissionDatamodel.Permission, error)
	GetBySlug(ctx context.Context, slug string) (*permissionDatamodel.Permission, error)
	GetByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error)
	Upsert(ctx context.Context, p *permissionDatamodel.Permission) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list permissions", "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	perms := make([]Permission, 0, len(rows))
	for _, row := range rows {
		p, ok := FromDataModel(row)
		if !ok {
			s.logger.Warn("skipping stored permission with malformed slug", "slug", row.Slug, "id", row.ID)
			continue
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// Lookup resolves a slug to its catalog entry. A malformed slug and an unknown slug
// are both validation errors, distinct from an authorization denial.
func (s *Service) Lookup(ctx context.Context, slug string) (*Permission, error) {
	parsed, ok := Parse(slug)
	if !ok {
		return nil, internal.ErrInvalidPermission
	}

	row, err := s.repo.GetBySlug(ctx, Format(parsed))
	if err != nil {
		s.logger.Error("failed to look up permission", "slug", slug, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	if row == nil {
		return nil, internal.ErrUnknownPermission
	}

	p, _ := FromDataModel(row)
	return &p, nil
}

// Register upserts a permission by slug. Used by the seeder.
func (s *Service) Register(ctx context.Context, p Permission) (*Permission, error) {
	// the stored slug must parse back to the same value or it could never be resolved
	if parsed, ok := Parse(Format(p.Slug)); !ok || parsed != p.Slug {
		return nil, internal.ErrInvalidPermission
	}

	row := p.ToDataModel()
	if err := s.repo.Upsert(ctx, row); err != nil {
		s.logger.Error("failed to register permission", "slug", row.Slug, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	stored, _ := FromDataModel(row)
	return &stored, nil
}
