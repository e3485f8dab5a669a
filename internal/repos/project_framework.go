package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

type ProjectFrameworkRepo interface {
	Create(dbc dbctx.Context, pf *types.ProjectFramework) (*types.ProjectFramework, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProjectFramework, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectFramework, error)
	GetActiveByProject(dbc dbctx.Context, projectID uuid.UUID) (*types.ProjectFramework, error)
	// SetActive activates one snapshot and deactivates every other
	// snapshot of the same project in a single statement pair; callers
	// run it inside a transaction.
	SetActive(dbc dbctx.Context, projectID, pfID uuid.UUID) error
	UpdateHealth(dbc dbctx.Context, pfID uuid.UUID, score float64, insights datatypes.JSON) error
}

type projectFrameworkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectFrameworkRepo(db *gorm.DB, baseLog *logger.Logger) ProjectFrameworkRepo {
	return &projectFrameworkRepo{db: db, log: baseLog.With("repo", "ProjectFrameworkRepo")}
}

func (r *projectFrameworkRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *projectFrameworkRepo) Create(dbc dbctx.Context, pf *types.ProjectFramework) (*types.ProjectFramework, error) {
	if err := r.conn(dbc).Create(pf).Error; err != nil {
		return nil, err
	}
	return pf, nil
}

func (r *projectFrameworkRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProjectFramework, error) {
	var pf types.ProjectFramework
	err := r.conn(dbc).
		Preload("Zones", func(db *gorm.DB) *gorm.DB { return db.Order("display_order ASC") }).
		Where("id = ?", id).
		First(&pf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

func (r *projectFrameworkRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectFramework, error) {
	var out []*types.ProjectFramework
	err := r.conn(dbc).
		Preload("Zones", func(db *gorm.DB) *gorm.DB { return db.Order("display_order ASC") }).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectFrameworkRepo) GetActiveByProject(dbc dbctx.Context, projectID uuid.UUID) (*types.ProjectFramework, error) {
	var pf types.ProjectFramework
	err := r.conn(dbc).
		Preload("Zones", func(db *gorm.DB) *gorm.DB { return db.Order("display_order ASC") }).
		Where("project_id = ? AND is_active = ?", projectID, true).
		First(&pf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

func (r *projectFrameworkRepo) SetActive(dbc dbctx.Context, projectID, pfID uuid.UUID) error {
	conn := r.conn(dbc)
	if err := conn.Model(&types.ProjectFramework{}).
		Where("project_id = ? AND id <> ? AND is_active = ?", projectID, pfID, true).
		Update("is_active", false).Error; err != nil {
		return err
	}
	res := conn.Model(&types.ProjectFramework{}).
		Where("id = ? AND project_id = ?", pfID, projectID).
		Update("is_active", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *projectFrameworkRepo) UpdateHealth(dbc dbctx.Context, pfID uuid.UUID, score float64, insights datatypes.JSON) error {
	updates := map[string]any{
		"health_score": score,
		"updated_at":   time.Now().UTC(),
	}
	if len(insights) > 0 {
		updates["insights"] = insights
	}
	res := r.conn(dbc).Model(&types.ProjectFramework{}).
		Where("id = ?", pfID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
