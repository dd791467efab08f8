package postgres

import (
	"context"
	"errors"

	teamDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/team"
	"github.com/frahmantamala/teamboard/internal/team"
	"gorm.io/gorm"
)

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) team.RepositoryAPI {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) GetMembership(ctx context.Context, userID, teamID string) (*teamDatamodel.Membership, error) {
	var m teamDatamodel.Membership
	err := r.db.WithContext(ctx).Where("user_id = ? AND team_id = ?", userID, teamID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepository) Upsert(ctx context.Context, m *teamDatamodel.Membership) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *MembershipRepository) ListByRole(ctx context.Context, roleID int64) ([]*teamDatamodel.Membership, error) {
	var rows []*teamDatamodel.Membership
	err := r.db.WithContext(ctx).
		Where("role_id = ? AND is_active = ?", roleID, true).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
