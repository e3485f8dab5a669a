package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ChatTypeGeneral        = "general"
	ChatTypeHealthAnalysis = "health-analysis"
)

const (
	ChatStatusActive   = "active"
	ChatStatusArchived = "archived"
)

// Chat is a conversation session. Health-analysis chats are scoped to
// one ProjectFramework; at most one may be active per
// (project, projectFramework) pair, enforced transactionally when a new
// session starts.
type Chat struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	ProjectFrameworkID *uuid.UUID     `gorm:"type:uuid;index" json:"project_framework_id,omitempty"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ChatType           string         `gorm:"column:chat_type;not null;default:'general'" json:"chat_type"`
	Status             string         `gorm:"column:status;not null;default:'active';index" json:"status"`
	Title              string         `gorm:"column:title" json:"title"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Chat) TableName() string { return "chat" }

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleTool      = "tool"
)

type ChatMessage struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChatID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"chat_id"`
	Chat      *Chat          `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChatID;references:ID" json:"chat,omitempty"`
	Role      string         `gorm:"column:role;not null" json:"role"`
	Content   string         `gorm:"column:content" json:"content"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	Seq       int64          `gorm:"column:seq;not null;default:0;index" json:"seq"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_message" }
