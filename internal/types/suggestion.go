package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SuggestionTypeAddNode           = "add-node"
	SuggestionTypeAddTag            = "add-tag"
	SuggestionTypeRefineContent     = "refine-content"
	SuggestionTypeContentSuggestion = "content-suggestion"
	SuggestionTypeHealthIssue       = "health-issue"
)

const (
	SuggestionStatusPending   = "pending"
	SuggestionStatusAccepted  = "accepted"
	SuggestionStatusDismissed = "dismissed"
)

const (
	SuggestionPriorityLow      = "low"
	SuggestionPriorityMedium   = "medium"
	SuggestionPriorityHigh     = "high"
	SuggestionPriorityCritical = "critical"
)

const (
	SuggestionSourceAIHealthCheck = "ai-health-check"
	SuggestionSourceUser          = "user"
)

// CanvasSuggestion is an AI- or API-created proposed change. NodeID is
// nil for canvas-global suggestions. ActionParams is a tagged union
// keyed by SuggestionType; the matching branch is validated at creation
// time, not deferred to apply time.
type CanvasSuggestion struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	ProjectFrameworkID uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_framework_id"`
	NodeID             *uuid.UUID     `gorm:"type:uuid;index" json:"node_id,omitempty"`
	SuggestionType     string         `gorm:"column:suggestion_type;not null" json:"suggestion_type"`
	Title              string         `gorm:"column:title;not null" json:"title"`
	Description        string         `gorm:"column:description" json:"description"`
	Reason             string         `gorm:"column:reason" json:"reason"`
	Priority           string         `gorm:"column:priority;not null;default:'medium'" json:"priority"`
	ActionParams       datatypes.JSON `gorm:"column:action_params;type:jsonb" json:"action_params,omitempty"`
	Status             string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Source             string         `gorm:"column:source" json:"source,omitempty"`
	AppliedAt          *time.Time     `gorm:"column:applied_at" json:"applied_at,omitempty"`
	AppliedBy          *uuid.UUID     `gorm:"type:uuid" json:"applied_by,omitempty"`
	DismissedAt        *time.Time     `gorm:"column:dismissed_at" json:"dismissed_at,omitempty"`
	DismissedBy        *uuid.UUID     `gorm:"type:uuid" json:"dismissed_by,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CanvasSuggestion) TableName() string { return "canvas_suggestion" }

func ValidSuggestionType(t string) bool {
	switch t {
	case SuggestionTypeAddNode, SuggestionTypeAddTag, SuggestionTypeRefineContent,
		SuggestionTypeContentSuggestion, SuggestionTypeHealthIssue:
		return true
	default:
		return false
	}
}

func ValidSuggestionPriority(p string) bool {
	switch p {
	case SuggestionPriorityLow, SuggestionPriorityMedium, SuggestionPriorityHigh, SuggestionPriorityCritical:
		return true
	default:
		return false
	}
}

// AddNodeParams is the action payload for add-node suggestions.
type AddNodeParams struct {
	Title              string     `json:"title"`
	Content            string     `json:"content,omitempty"`
	NodeType           string     `json:"node_type,omitempty"`
	ProjectFrameworkID *uuid.UUID `json:"project_framework_id,omitempty"`
	ZoneKey            string     `json:"zone_key,omitempty"`
}

// AddTagParams is the action payload for add-tag suggestions.
type AddTagParams struct {
	Tag string `json:"tag"`
}

// ContentParams is the action payload for refine-content and
// content-suggestion; Content replaces the node content wholesale.
type ContentParams struct {
	Content string `json:"content"`
}

// HealthIssueParams is the action payload for health-issue suggestions.
// The suggestion record itself is the durable artifact; apply performs
// no node mutation.
type HealthIssueParams struct {
	Dimension string `json:"dimension,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// DecodeAddNodeParams validates the add-node branch of the union.
func DecodeAddNodeParams(raw datatypes.JSON) (AddNodeParams, error) {
	var p AddNodeParams
	if err := decodeParams(raw, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return p, fmt.Errorf("add-node params: title is required")
	}
	if p.NodeType != "" && !ValidNodeType(p.NodeType) {
		return p, fmt.Errorf("add-node params: unknown node type %q", p.NodeType)
	}
	return p, nil
}

func DecodeAddTagParams(raw datatypes.JSON) (AddTagParams, error) {
	var p AddTagParams
	if err := decodeParams(raw, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.Tag) == "" {
		return p, fmt.Errorf("add-tag params: tag is required")
	}
	return p, nil
}

func DecodeContentParams(raw datatypes.JSON) (ContentParams, error) {
	var p ContentParams
	if err := decodeParams(raw, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.Content) == "" {
		return p, fmt.Errorf("content params: content is required")
	}
	return p, nil
}

func DecodeHealthIssueParams(raw datatypes.JSON) (HealthIssueParams, error) {
	var p HealthIssueParams
	if len(raw) == 0 {
		return p, nil
	}
	if err := decodeParams(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}

// ValidateActionParams checks the branch of the union matching
// suggestionType. Unknown types are rejected here so malformed
// suggestions never reach the apply path.
func ValidateActionParams(suggestionType string, raw datatypes.JSON) error {
	switch suggestionType {
	case SuggestionTypeAddNode:
		_, err := DecodeAddNodeParams(raw)
		return err
	case SuggestionTypeAddTag:
		_, err := DecodeAddTagParams(raw)
		return err
	case SuggestionTypeRefineContent, SuggestionTypeContentSuggestion:
		_, err := DecodeContentParams(raw)
		return err
	case SuggestionTypeHealthIssue:
		_, err := DecodeHealthIssueParams(raw)
		return err
	default:
		return fmt.Errorf("unsupported suggestion type %q", suggestionType)
	}
}

func decodeParams(raw datatypes.JSON, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("action params are required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid action params: %w", err)
	}
	return nil
}
