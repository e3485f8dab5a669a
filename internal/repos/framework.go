package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

// ErrNotFound is returned by Get-style repo methods when no row matches.
var ErrNotFound = errors.New("not found")

type FrameworkRepo interface {
	Create(dbc dbctx.Context, fw *types.Framework) (*types.Framework, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Framework, error)
	GetByKey(dbc dbctx.Context, key string) (*types.Framework, error)
	ListPlatform(dbc dbctx.Context) ([]*types.Framework, error)
}

type frameworkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFrameworkRepo(db *gorm.DB, baseLog *logger.Logger) FrameworkRepo {
	return &frameworkRepo{db: db, log: baseLog.With("repo", "FrameworkRepo")}
}

func (r *frameworkRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *frameworkRepo) Create(dbc dbctx.Context, fw *types.Framework) (*types.Framework, error) {
	if err := r.conn(dbc).Create(fw).Error; err != nil {
		return nil, err
	}
	return fw, nil
}

func (r *frameworkRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Framework, error) {
	var fw types.Framework
	err := r.conn(dbc).
		Preload("Zones", func(db *gorm.DB) *gorm.DB { return db.Order("display_order ASC") }).
		Where("id = ?", id).
		First(&fw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fw, nil
}

func (r *frameworkRepo) GetByKey(dbc dbctx.Context, key string) (*types.Framework, error) {
	var fw types.Framework
	err := r.conn(dbc).
		Preload("Zones", func(db *gorm.DB) *gorm.DB { return db.Order("display_order ASC") }).
		Where("key = ?", key).
		First(&fw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fw, nil
}

func (r *frameworkRepo) ListPlatform(dbc dbctx.Context) ([]*types.Framework, error) {
	var out []*types.Framework
	err := r.conn(dbc).
		Preload("Zones", func(db *gorm.DB) *gorm.DB { return db.Order("display_order ASC") }).
		Where("owner_scope = ?", types.FrameworkScopePlatform).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
