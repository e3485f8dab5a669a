package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NodeTypeDocument    = "document"
	NodeTypeIdea        = "idea"
	NodeTypeTask        = "task"
	NodeTypeInspiration = "inspiration"
)

const (
	HealthLevelCritical  = "critical"
	HealthLevelWarning   = "warning"
	HealthLevelGood      = "good"
	HealthLevelExcellent = "excellent"
)

func ValidNodeType(t string) bool {
	switch t {
	case NodeTypeDocument, NodeTypeIdea, NodeTypeTask, NodeTypeInspiration:
		return true
	default:
		return false
	}
}

// CanvasNode is the core content unit. ZoneAffinities holds the fuzzy
// zone membership per adopted framework, keyed projectFrameworkID ->
// zoneKey -> weight in [0,1]. Weights are advisory and are not required
// to sum to 1; layout treats raw magnitude as relative pull.
type CanvasNode struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Project        *Project       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	ParentID       *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Title          string         `gorm:"column:title;not null" json:"title"`
	Content        string         `gorm:"column:content" json:"content"`
	NodeType       string         `gorm:"column:node_type;not null;default:'idea'" json:"node_type"`
	Tags           datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	TaskStatus     string         `gorm:"column:task_status" json:"task_status,omitempty"`
	AssigneeID     *uuid.UUID     `gorm:"type:uuid" json:"assignee_id,omitempty"`
	DueDate        *time.Time     `gorm:"column:due_date" json:"due_date,omitempty"`
	DisplayOrder   int            `gorm:"column:display_order;not null;default:0" json:"display_order"`
	HealthScore    *float64       `gorm:"column:health_score" json:"health_score,omitempty"`
	HealthLevel    string         `gorm:"column:health_level" json:"health_level,omitempty"`
	HealthData     datatypes.JSON `gorm:"column:health_data;type:jsonb" json:"health_data,omitempty"`
	ZoneAffinities datatypes.JSON `gorm:"column:zone_affinities;type:jsonb" json:"zone_affinities,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CanvasNode) TableName() string { return "canvas_node" }

// AffinityMap is the decoded form of CanvasNode.ZoneAffinities.
type AffinityMap map[string]map[string]float64

func (n *CanvasNode) Affinities() AffinityMap {
	out := AffinityMap{}
	if n == nil || len(n.ZoneAffinities) == 0 {
		return out
	}
	if err := json.Unmarshal(n.ZoneAffinities, &out); err != nil {
		return AffinityMap{}
	}
	return out
}

// AffinitiesFor returns the weight map for one adopted framework, or an
// empty map when none is set.
func (n *CanvasNode) AffinitiesFor(projectFrameworkID uuid.UUID) map[string]float64 {
	m := n.Affinities()[projectFrameworkID.String()]
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func (n *CanvasNode) TagList() []string {
	out := []string{}
	if n == nil || len(n.Tags) == 0 {
		return out
	}
	if err := json.Unmarshal(n.Tags, &out); err != nil {
		return []string{}
	}
	return out
}

func (n *CanvasNode) HasTag(tag string) bool {
	for _, t := range n.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

func MarshalAffinities(m AffinityMap) datatypes.JSON {
	raw, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

func MarshalTags(tags []string) datatypes.JSON {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
