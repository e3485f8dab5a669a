package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

type MembershipRepo interface {
	Create(dbc dbctx.Context, m *types.Membership) (*types.Membership, error)
	Get(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.Membership, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Membership, error)
	ListProjectIDsByUser(dbc dbctx.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type membershipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMembershipRepo(db *gorm.DB, baseLog *logger.Logger) MembershipRepo {
	return &membershipRepo{db: db, log: baseLog.With("repo", "MembershipRepo")}
}

func (r *membershipRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *membershipRepo) Create(dbc dbctx.Context, m *types.Membership) (*types.Membership, error) {
	if err := r.conn(dbc).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *membershipRepo) Get(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.Membership, error) {
	var m types.Membership
	err := r.conn(dbc).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Membership, error) {
	var out []*types.Membership
	err := r.conn(dbc).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *membershipRepo) ListProjectIDsByUser(dbc dbctx.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.conn(dbc).
		Model(&types.Membership{}).
		Where("user_id = ?", userID).
		Pluck("project_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
