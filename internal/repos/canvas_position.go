package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

type CanvasPositionRepo interface {
	Upsert(dbc dbctx.Context, pos *types.CanvasNodePosition) (*types.CanvasNodePosition, error)
	ListByProjectFramework(dbc dbctx.Context, pfID uuid.UUID) ([]*types.CanvasNodePosition, error)
	// ClearByProjectFramework drops every override for the framework,
	// forcing layout recompute from zone affinities. Returns the number
	// of rows removed.
	ClearByProjectFramework(dbc dbctx.Context, pfID uuid.UUID) (int64, error)
}

type canvasPositionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanvasPositionRepo(db *gorm.DB, baseLog *logger.Logger) CanvasPositionRepo {
	return &canvasPositionRepo{db: db, log: baseLog.With("repo", "CanvasPositionRepo")}
}

func (r *canvasPositionRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *canvasPositionRepo) Upsert(dbc dbctx.Context, pos *types.CanvasNodePosition) (*types.CanvasNodePosition, error) {
	pos.UpdatedAt = time.Now().UTC()
	err := r.conn(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_id"}, {Name: "project_framework_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"x", "y", "updated_at"}),
	}).Create(pos).Error
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (r *canvasPositionRepo) ListByProjectFramework(dbc dbctx.Context, pfID uuid.UUID) ([]*types.CanvasNodePosition, error) {
	var out []*types.CanvasNodePosition
	err := r.conn(dbc).
		Where("project_framework_id = ?", pfID).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canvasPositionRepo) ClearByProjectFramework(dbc dbctx.Context, pfID uuid.UUID) (int64, error) {
	res := r.conn(dbc).
		Where("project_framework_id = ?", pfID).
		Delete(&types.CanvasNodePosition{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
