package types

import (
	"time"

	"github.com/google/uuid"
)

// CanvasNodePosition is an explicit layout override for one
// (node, projectFramework) pair. When absent, layout is computed from
// the node's zone affinities; clearing these rows forces recompute.
type CanvasNodePosition struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	NodeID             uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_position_node_pf" json:"node_id"`
	ProjectFrameworkID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_position_node_pf" json:"project_framework_id"`
	X                  float64   `gorm:"column:x;not null" json:"x"`
	Y                  float64   `gorm:"column:y;not null" json:"y"`
	CreatedAt          time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CanvasNodePosition) TableName() string { return "canvas_node_position" }
