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

type ChatRepo interface {
	Create(dbc dbctx.Context, chat *types.Chat) (*types.Chat, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chat, error)
	GetActiveHealthChat(dbc dbctx.Context, projectID, pfID uuid.UUID) (*types.Chat, error)
	// ArchiveActiveHealthChats archives every active health-analysis
	// chat for the (project, projectFramework) pair and returns how many
	// rows changed. Run inside the same transaction that creates the
	// replacement chat.
	ArchiveActiveHealthChats(dbc dbctx.Context, projectID, pfID uuid.UUID) (int64, error)

	AppendMessage(dbc dbctx.Context, msg *types.ChatMessage) (*types.ChatMessage, error)
	ListMessages(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*types.ChatMessage, error)
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: baseLog.With("repo", "ChatRepo")}
}

func (r *chatRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *chatRepo) Create(dbc dbctx.Context, chat *types.Chat) (*types.Chat, error) {
	if err := r.conn(dbc).Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

func (r *chatRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chat, error) {
	var chat types.Chat
	err := r.conn(dbc).Where("id = ?", id).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepo) GetActiveHealthChat(dbc dbctx.Context, projectID, pfID uuid.UUID) (*types.Chat, error) {
	var chat types.Chat
	err := r.conn(dbc).
		Where("project_id = ? AND project_framework_id = ? AND chat_type = ? AND status = ?",
			projectID, pfID, types.ChatTypeHealthAnalysis, types.ChatStatusActive).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepo) ArchiveActiveHealthChats(dbc dbctx.Context, projectID, pfID uuid.UUID) (int64, error) {
	res := r.conn(dbc).Model(&types.Chat{}).
		Where("project_id = ? AND project_framework_id = ? AND chat_type = ? AND status = ?",
			projectID, pfID, types.ChatTypeHealthAnalysis, types.ChatStatusActive).
		Updates(map[string]any{
			"status":     types.ChatStatusArchived,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *chatRepo) AppendMessage(dbc dbctx.Context, msg *types.ChatMessage) (*types.ChatMessage, error) {
	conn := r.conn(dbc)
	var maxSeq int64
	if err := conn.Model(&types.ChatMessage{}).
		Where("chat_id = ?", msg.ChatID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error; err != nil {
		return nil, err
	}
	msg.Seq = maxSeq + 1
	if err := conn.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *chatRepo) ListMessages(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.ChatMessage
	err := r.conn(dbc).
		Where("chat_id = ?", chatID).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
