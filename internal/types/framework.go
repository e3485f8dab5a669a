package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FrameworkScopePlatform = "platform"
	FrameworkScopeUser     = "user"
)

// Framework is an immutable template of ordered zones. Projects never
// reference it directly at analysis time; they adopt a snapshot
// (ProjectFramework) instead.
type Framework struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Key         string          `gorm:"column:key;not null;uniqueIndex" json:"key"`
	Name        string          `gorm:"column:name;not null" json:"name"`
	Description string          `gorm:"column:description" json:"description"`
	Icon        string          `gorm:"column:icon" json:"icon"`
	OwnerScope  string          `gorm:"column:owner_scope;not null;default:'platform'" json:"owner_scope"`
	OwnerUserID *uuid.UUID      `gorm:"type:uuid" json:"owner_user_id,omitempty"`
	Zones       []FrameworkZone `gorm:"foreignKey:FrameworkID;references:ID" json:"zones,omitempty"`
	CreatedAt   time.Time       `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}

func (Framework) TableName() string { return "framework" }

type FrameworkZone struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FrameworkID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_framework_zone_key" json:"framework_id"`
	ZoneKey      string    `gorm:"column:zone_key;not null;uniqueIndex:uq_framework_zone_key" json:"zone_key"`
	Name         string    `gorm:"column:name;not null" json:"name"`
	Description  string    `gorm:"column:description" json:"description"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:0" json:"display_order"`
	ColorKey     string    `gorm:"column:color_key" json:"color_key"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (FrameworkZone) TableName() string { return "framework_zone" }
