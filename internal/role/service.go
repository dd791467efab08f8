package role

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/audit"
	"github.com/frahmantamala/teamboard/internal/catalog"
	"github.com/frahmantamala/teamboard/internal/core/common/validation"
	permissionDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/role"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error)
	GetBySlug(ctx context.Context, slug string) (*roleDatamodel.Role, error)
	Create(ctx context.Context, r *roleDatamodel.Role) error
	Upsert(ctx context.Context, r *roleDatamodel.Role) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetHierarchyLevel(ctx context.Context, id int64, level int) error
	GetBindings(ctx context.Context, roleID int64) ([]*permissionDatamodel.Permission, error)
	// BindPermission and UnbindPermission write entry in the same transaction as the
	// binding change and report whether the binding set actually changed.
	BindPermission(ctx context.Context, roleID, permissionID int64, grantedBy string, entry *audit.Entry) (bool, error)
	UnbindPermission(ctx context.Context, roleID, permissionID int64, entry *audit.Entry) (bool, error)
}

type PermissionReader interface {
	GetByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error)
}

type Service struct {
	repo        RepositoryAPI
	permissions PermissionReader
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, permissions PermissionReader, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		permissions: permissions,
		logger:      logger,
	}
}

// GetRole accepts a numeric id or a slug.
func (s *Service) GetRole(ctx context.Context, slugOrID string) (*Role, error) {
	var (
		row *roleDatamodel.Role
		err error
	)
	if id, convErr := strconv.ParseInt(slugOrID, 10, 64); convErr == nil {
		row, err = s.repo.GetByID(ctx, id)
	} else {
		row, err = s.repo.GetBySlug(ctx, slugOrID)
	}
	if err != nil {
		s.logger.Error("failed to get role", "role", slugOrID, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	if row == nil {
		return nil, internal.ErrRoleNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) GetRoleByID(ctx context.Context, id int64) (*Role, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get role", "role_id", id, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	if row == nil {
		return nil, internal.ErrRoleNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) GetBindings(ctx context.Context, roleID int64) ([]catalog.Permission, error) {
	rows, err := s.repo.GetBindings(ctx, roleID)
	if err != nil {
		s.logger.Error("failed to get role bindings", "role_id", roleID, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	perms := make([]catalog.Permission, 0, len(rows))
	for _, row := range rows {
		if p, ok := catalog.FromDataModel(row); ok {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// BindPermission grants permissionID to roleID. Binding an existing pair is a
// successful no-op. The audit entry commits with the binding or not at all.
func (s *Service) BindPermission(ctx context.Context, roleID, permissionID int64, grantedBy string) (bool, error) {
	r, perm, err := s.loadPair(ctx, roleID, permissionID)
	if err != nil {
		return false, err
	}

	entry := bindingEntry(audit.ActionGranted, grantedBy, r, perm)
	changed, err := s.repo.BindPermission(ctx, r.ID, perm.ID, grantedBy, entry)
	if err != nil {
		return false, s.mutationError("bind", r, perm, err)
	}

	if changed {
		s.logger.Info("permission bound to role", "role", r.Slug, "permission", perm.Slug, "granted_by", grantedBy, "audit_id", entry.ID)
	}
	return changed, nil
}

// UnbindPermission revokes permissionID from roleID. A missing binding is a no-op.
func (s *Service) UnbindPermission(ctx context.Context, roleID, permissionID int64, revokedBy string) (bool, error) {
	r, perm, err := s.loadPair(ctx, roleID, permissionID)
	if err != nil {
		return false, err
	}

	entry := bindingEntry(audit.ActionRevoked, revokedBy, r, perm)
	changed, err := s.repo.UnbindPermission(ctx, r.ID, perm.ID, entry)
	if err != nil {
		return false, s.mutationError("unbind", r, perm, err)
	}

	if changed {
		s.logger.Info("permission unbound from role", "role", r.Slug, "permission", perm.Slug, "revoked_by", revokedBy, "audit_id", entry.ID)
	}
	return changed, nil
}

func (s *Service) CreateRole(ctx context.Context, dto CreateRoleDTO, createdBy string) (*Role, error) {
	if dto.Type == "" {
		dto.Type = TypeCustom
	}
	if dto.Type == TypeSystem || !dto.Type.Valid() {
		return nil, internal.NewValidationFieldError("role_type", "role_type must be organizational, project or custom", internal.ErrCodeValidationFailed)
	}
	if !validation.IsSlug(dto.Slug) {
		return nil, internal.NewValidationFieldError("slug", "slug may only contain lowercase letters, digits, '_' and '-'", internal.ErrCodeValidationFailed)
	}
	if dto.HierarchyLevel < 0 {
		return nil, internal.NewValidationFieldError("hierarchy_level", "hierarchy_level must not be negative", internal.ErrCodeInvalidHierarchy)
	}

	existing, err := s.repo.GetBySlug(ctx, dto.Slug)
	if err != nil {
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	if existing != nil {
		return nil, internal.ErrRoleExists
	}

	r := &Role{
		Name:           dto.Name,
		Slug:           dto.Slug,
		Description:    dto.Description,
		Type:           dto.Type,
		IsActive:       true,
		HierarchyLevel: dto.HierarchyLevel,
		CreatedBy:      createdBy,
	}
	row := r.ToDataModel()
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create role", "slug", dto.Slug, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	s.logger.Info("role created", "slug", row.Slug, "hierarchy_level", row.HierarchyLevel, "created_by", createdBy)
	return FromDataModel(row), nil
}

// EnsureSystemRole upserts a seeded role by slug.
func (s *Service) EnsureSystemRole(ctx context.Context, r *Role) (*Role, error) {
	row := r.ToDataModel()
	if err := s.repo.Upsert(ctx, row); err != nil {
		s.logger.Error("failed to upsert role", "slug", r.Slug, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	return FromDataModel(row), nil
}

// Deactivate marks the role inactive; every binding through it then resolves empty.
func (s *Service) Deactivate(ctx context.Context, roleID int64) (*Role, error) {
	r, err := s.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return r, nil
	}

	if err := s.repo.SetActive(ctx, roleID, false); err != nil {
		s.logger.Error("failed to deactivate role", "role", r.Slug, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	r.IsActive = false

	s.logger.Info("role deactivated", "role", r.Slug)
	return r, nil
}

func (s *Service) SetHierarchyLevel(ctx context.Context, roleID int64, level int) (*Role, error) {
	if level < 0 {
		return nil, internal.NewValidationFieldError("hierarchy_level", "hierarchy_level must not be negative", internal.ErrCodeInvalidHierarchy)
	}

	r, err := s.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if r.IsSystem {
		return nil, internal.ErrSystemRoleImmutable
	}
	if r.HierarchyLevel == level {
		return r, nil
	}

	if err := s.repo.SetHierarchyLevel(ctx, roleID, level); err != nil {
		s.logger.Error("failed to update role hierarchy", "role", r.Slug, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	s.logger.Info("role hierarchy level changed", "role", r.Slug, "from", r.HierarchyLevel, "to", level)
	r.HierarchyLevel = level
	return r, nil
}

func (s *Service) loadPair(ctx context.Context, roleID, permissionID int64) (*Role, *permissionDatamodel.Permission, error) {
	roleRow, err := s.repo.GetByID(ctx, roleID)
	if err != nil {
		return nil, nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	if roleRow == nil {
		return nil, nil, internal.ErrUnknownRole
	}

	perm, err := s.permissions.GetByID(ctx, permissionID)
	if err != nil {
		return nil, nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	if perm == nil {
		return nil, nil, internal.ErrUnknownPermission
	}

	return FromDataModel(roleRow), perm, nil
}

func (s *Service) mutationError(op string, r *Role, perm *permissionDatamodel.Permission, err error) error {
	s.logger.Error("role binding mutation failed",
		"op", op,
		"role", r.Slug,
		"permission", perm.Slug,
		"error", err)

	if errors.Is(err, audit.ErrSinkUnavailable) {
		return internal.ErrAuditUnavailable.WithCause(err)
	}
	return internal.ErrStoreUnavailable.WithCause(err)
}

func bindingEntry(action audit.Action, actor string, r *Role, perm *permissionDatamodel.Permission) *audit.Entry {
	return &audit.Entry{
		UserID:         actor,
		Action:         action,
		PermissionSlug: perm.Slug,
		ResourceType:   "role",
		ResourceID:     r.Slug,
		Metadata: map[string]any{
			"role_id":       r.ID,
			"permission_id": perm.ID,
		},
	}
}
