package team

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/teamboard/internal"
	teamDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/team"
)

type RepositoryAPI interface {
	GetMembership(ctx context.Context, userID, teamID string) (*teamDatamodel.Membership, error)
	Upsert(ctx context.Context, m *teamDatamodel.Membership) error
	ListByRole(ctx context.Context, roleID int64) ([]*teamDatamodel.Membership, error)
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

// GetActiveMembership returns nil, nil when the user has no active membership in teamID.
func (s *Service) GetActiveMembership(ctx context.Context, userID, teamID string) (*Membership, error) {
	row, err := s.repo.GetMembership(ctx, userID, teamID)
	if err != nil {
		s.logger.Error("failed to get team membership", "user_id", userID, "team_id", teamID, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}
	if row == nil || !row.IsActive {
		return nil, nil
	}
	return FromDataModel(row), nil
}

// AssignRole sets the single active role of userID within teamID and returns the
// previous role id, zero when the user had none.
func (s *Service) AssignRole(ctx context.Context, userID, teamID string, roleID int64) (int64, error) {
	row, err := s.repo.GetMembership(ctx, userID, teamID)
	if err != nil {
		return 0, internal.ErrStoreUnavailable.WithCause(err)
	}

	var previous int64
	if row == nil {
		row = &teamDatamodel.Membership{UserID: userID, TeamID: teamID}
	} else if row.IsActive {
		previous = row.RoleID
	}
	row.RoleID = roleID
	row.IsActive = true

	if err := s.repo.Upsert(ctx, row); err != nil {
		s.logger.Error("failed to assign role", "user_id", userID, "team_id", teamID, "role_id", roleID, "error", err)
		return 0, internal.ErrStoreUnavailable.WithCause(err)
	}
	return previous, nil
}

// MembersWithRole lists every (user, team) pair whose active role is roleID.
func (s *Service) MembersWithRole(ctx context.Context, roleID int64) ([]Member, error) {
	rows, err := s.repo.ListByRole(ctx, roleID)
	if err != nil {
		s.logger.Error("failed to list role members", "role_id", roleID, "error", err)
		return nil, internal.ErrStoreUnavailable.WithCause(err)
	}

	members := make([]Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, Member{UserID: row.UserID, TeamID: row.TeamID})
	}
	return members, nil
}
