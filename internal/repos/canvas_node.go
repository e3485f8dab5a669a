package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

type CanvasNodeRepo interface {
	Create(dbc dbctx.Context, node *types.CanvasNode) (*types.CanvasNode, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasNode, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error)
	ListRootsByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error)
	ListByParent(dbc dbctx.Context, parentID uuid.UUID) ([]*types.CanvasNode, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, fields map[string]any) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type canvasNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanvasNodeRepo(db *gorm.DB, baseLog *logger.Logger) CanvasNodeRepo {
	return &canvasNodeRepo{db: db, log: baseLog.With("repo", "CanvasNodeRepo")}
}

func (r *canvasNodeRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *canvasNodeRepo) Create(dbc dbctx.Context, node *types.CanvasNode) (*types.CanvasNode, error) {
	if err := r.conn(dbc).Create(node).Error; err != nil {
		return nil, err
	}
	return node, nil
}

func (r *canvasNodeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasNode, error) {
	var node types.CanvasNode
	err := r.conn(dbc).Where("id = ?", id).First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *canvasNodeRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error) {
	var out []*types.CanvasNode
	err := r.conn(dbc).
		Where("project_id = ?", projectID).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canvasNodeRepo) ListRootsByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error) {
	var out []*types.CanvasNode
	err := r.conn(dbc).
		Where("project_id = ? AND parent_id IS NULL", projectID).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canvasNodeRepo) ListByParent(dbc dbctx.Context, parentID uuid.UUID) ([]*types.CanvasNode, error) {
	var out []*types.CanvasNode
	err := r.conn(dbc).
		Where("parent_id = ?", parentID).
		Order("display_order ASC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canvasNodeRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UTC()
	}
	res := r.conn(dbc).Model(&types.CanvasNode{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *canvasNodeRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	res := r.conn(dbc).Where("id = ?", id).Delete(&types.CanvasNode{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
