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

// SuggestionFilter narrows List. Zero-value fields are not applied.
type SuggestionFilter struct {
	ProjectID          uuid.UUID
	ProjectFrameworkID *uuid.UUID
	NodeID             *uuid.UUID
	Status             string
}

type SuggestionRepo interface {
	Create(dbc dbctx.Context, s *types.CanvasSuggestion) (*types.CanvasSuggestion, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasSuggestion, error)
	List(dbc dbctx.Context, f SuggestionFilter) ([]*types.CanvasSuggestion, error)
	// TransitionFromPending moves a suggestion out of pending with a
	// compare-and-set on status. It reports false when the row was not
	// pending, which callers treat as a conflict. This is the only write
	// path for terminal transitions, so a suggestion can never leave
	// pending twice even under concurrent applies.
	TransitionFromPending(dbc dbctx.Context, id uuid.UUID, toStatus string, actorID uuid.UUID, at time.Time) (bool, error)
}

type suggestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSuggestionRepo(db *gorm.DB, baseLog *logger.Logger) SuggestionRepo {
	return &suggestionRepo{db: db, log: baseLog.With("repo", "SuggestionRepo")}
}

func (r *suggestionRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *suggestionRepo) Create(dbc dbctx.Context, s *types.CanvasSuggestion) (*types.CanvasSuggestion, error) {
	if err := r.conn(dbc).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *suggestionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasSuggestion, error) {
	var s types.CanvasSuggestion
	err := r.conn(dbc).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *suggestionRepo) List(dbc dbctx.Context, f SuggestionFilter) ([]*types.CanvasSuggestion, error) {
	q := r.conn(dbc).Model(&types.CanvasSuggestion{})
	if f.ProjectID != uuid.Nil {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.ProjectFrameworkID != nil && *f.ProjectFrameworkID != uuid.Nil {
		q = q.Where("project_framework_id = ?", *f.ProjectFrameworkID)
	}
	if f.NodeID != nil && *f.NodeID != uuid.Nil {
		q = q.Where("node_id = ?", *f.NodeID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []*types.CanvasSuggestion
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *suggestionRepo) TransitionFromPending(dbc dbctx.Context, id uuid.UUID, toStatus string, actorID uuid.UUID, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     toStatus,
		"updated_at": at,
	}
	switch toStatus {
	case types.SuggestionStatusAccepted:
		updates["applied_at"] = at
		updates["applied_by"] = actorID
	case types.SuggestionStatusDismissed:
		updates["dismissed_at"] = at
		updates["dismissed_by"] = actorID
	}
	res := r.conn(dbc).Model(&types.CanvasSuggestion{}).
		Where("id = ? AND status = ?", id, types.SuggestionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
