package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectFramework is a project-scoped snapshot of a Framework, copied
// zone-by-zone at adoption time. Source back-references are retained for
// provenance but are not live foreign keys; the platform framework may
// change or disappear without affecting adopted snapshots.
type ProjectFramework struct {
	ID                uuid.UUID              `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID         uuid.UUID              `gorm:"type:uuid;not null;index" json:"project_id"`
	Project           *Project               `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	SourceFrameworkID *uuid.UUID             `gorm:"type:uuid" json:"source_framework_id,omitempty"`
	FrameworkKey      string                 `gorm:"column:framework_key;not null" json:"framework_key"`
	Name              string                 `gorm:"column:name;not null" json:"name"`
	Description       string                 `gorm:"column:description" json:"description"`
	Icon              string                 `gorm:"column:icon" json:"icon"`
	IsActive          bool                   `gorm:"column:is_active;not null;default:false;index" json:"is_active"`
	HealthScore       *float64               `gorm:"column:health_score" json:"health_score,omitempty"`
	Insights          datatypes.JSON         `gorm:"column:insights;type:jsonb" json:"insights,omitempty"`
	Zones             []ProjectFrameworkZone `gorm:"foreignKey:ProjectFrameworkID;references:ID" json:"zones,omitempty"`
	CreatedAt         time.Time              `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time              `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt         gorm.DeletedAt         `gorm:"index" json:"deleted_at,omitempty"`
}

func (ProjectFramework) TableName() string { return "project_framework" }

type ProjectFrameworkZone struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectFrameworkID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_pf_zone_key" json:"project_framework_id"`
	SourceZoneID       *uuid.UUID `gorm:"type:uuid" json:"source_zone_id,omitempty"`
	ZoneKey            string     `gorm:"column:zone_key;not null;uniqueIndex:uq_pf_zone_key" json:"zone_key"`
	Name               string     `gorm:"column:name;not null" json:"name"`
	Description        string     `gorm:"column:description" json:"description"`
	DisplayOrder       int        `gorm:"column:display_order;not null;default:0" json:"display_order"`
	ColorKey           string     `gorm:"column:color_key" json:"color_key"`
	CreatedAt          time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (ProjectFrameworkZone) TableName() string { return "project_framework_zone" }

// DimensionInsight is one entry of ProjectFramework.Insights.
type DimensionInsight struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
	Summary   string  `json:"summary,omitempty"`
}
