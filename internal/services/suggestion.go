package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

// CreateSuggestionInput is validated against the action-params branch
// matching SuggestionType before anything is persisted.
type CreateSuggestionInput struct {
	ProjectID          uuid.UUID
	ProjectFrameworkID uuid.UUID
	NodeID             *uuid.UUID
	SuggestionType     string
	Title              string
	Description        string
	Reason             string
	Priority           string
	ActionParams       datatypes.JSON
	Source             string
}

// ExecuteResult reports what applying a suggestion did.
type ExecuteResult struct {
	SuggestionType string     `json:"suggestion_type"`
	Accepted       bool       `json:"accepted"`
	CreatedNodeID  *uuid.UUID `json:"created_node_id,omitempty"`
	UpdatedNodeID  *uuid.UUID `json:"updated_node_id,omitempty"`
	Detail         string     `json:"detail,omitempty"`
}

// SuggestionService is the lifecycle engine: pending -> accepted or
// pending -> dismissed, terminal states final. Execution is at most
// once per suggestion even under concurrent applies.
type SuggestionService interface {
	Create(dbc dbctx.Context, input CreateSuggestionInput) (*types.CanvasSuggestion, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasSuggestion, error)
	List(dbc dbctx.Context, filter repos.SuggestionFilter) ([]*types.CanvasSuggestion, error)

	// Execute applies the suggestion's typed action. For types with
	// immediate accept semantics the status moves to accepted atomically
	// with execution; content-suggestion and health-issue defer the
	// accept transition to a later explicit Accept call.
	Execute(dbc dbctx.Context, id uuid.UUID, actingUserID uuid.UUID) (*ExecuteResult, error)

	// Accept finalizes a deferred-accept suggestion.
	Accept(dbc dbctx.Context, id uuid.UUID, actingUserID uuid.UUID) error

	Dismiss(dbc dbctx.Context, id uuid.UUID, actingUserID uuid.UUID) error
}

// deferredAcceptTypes execute without leaving pending; the accept
// transition waits for a separate user action.
func deferredAcceptType(suggestionType string) bool {
	return suggestionType == types.SuggestionTypeContentSuggestion ||
		suggestionType == types.SuggestionTypeHealthIssue
}

type suggestionService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.SuggestionRepo
	nodes  repos.CanvasNodeRepo
	notify AnalysisNotifier
}

func NewSuggestionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	suggestionRepo repos.SuggestionRepo,
	nodeRepo repos.CanvasNodeRepo,
	notify AnalysisNotifier,
) SuggestionService {
	return &suggestionService{
		db:     db,
		log:    baseLog.With("service", "SuggestionService"),
		repo:   suggestionRepo,
		nodes:  nodeRepo,
		notify: notify,
	}
}

func (s *suggestionService) Create(dbc dbctx.Context, input CreateSuggestionInput) (*types.CanvasSuggestion, error) {
	if input.ProjectID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("project id is required"))
	}
	if input.ProjectFrameworkID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("project framework id is required"))
	}
	if !types.ValidSuggestionType(input.SuggestionType) {
		return nil, apierr.BadRequest(fmt.Errorf("unsupported suggestion type %q", input.SuggestionType))
	}
	if input.Title == "" {
		return nil, apierr.BadRequest(fmt.Errorf("title is required"))
	}
	priority := input.Priority
	if priority == "" {
		priority = types.SuggestionPriorityMedium
	}
	if !types.ValidSuggestionPriority(priority) {
		return nil, apierr.BadRequest(fmt.Errorf("unknown priority %q", input.Priority))
	}
	if err := types.ValidateActionParams(input.SuggestionType, input.ActionParams); err != nil {
		return nil, apierr.BadRequest(err)
	}

	// node-scoped types need a target; nil NodeID means canvas-global
	switch input.SuggestionType {
	case types.SuggestionTypeAddTag, types.SuggestionTypeRefineContent, types.SuggestionTypeContentSuggestion:
		if input.NodeID == nil || *input.NodeID == uuid.Nil {
			return nil, apierr.BadRequest(fmt.Errorf("%s suggestions require a target node", input.SuggestionType))
		}
	}

	created, err := s.repo.Create(dbc, &types.CanvasSuggestion{
		ProjectID:          input.ProjectID,
		ProjectFrameworkID: input.ProjectFrameworkID,
		NodeID:             input.NodeID,
		SuggestionType:     input.SuggestionType,
		Title:              input.Title,
		Description:        input.Description,
		Reason:             input.Reason,
		Priority:           priority,
		ActionParams:       input.ActionParams,
		Status:             types.SuggestionStatusPending,
		Source:             input.Source,
	})
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if s.notify != nil {
		s.notify.SuggestionCreated(created)
	}
	return created, nil
}

func (s *suggestionService) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CanvasSuggestion, error) {
	sg, err := s.repo.GetByID(dbc, id)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("suggestion %s not found", id))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return sg, nil
}

func (s *suggestionService) List(dbc dbctx.Context, filter repos.SuggestionFilter) ([]*types.CanvasSuggestion, error) {
	out, err := s.repo.List(dbc, filter)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

func (s *suggestionService) Execute(dbc dbctx.Context, id uuid.UUID, actingUserID uuid.UUID) (*ExecuteResult, error) {
	sg, err := s.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if sg.Status != types.SuggestionStatusPending {
		return nil, apierr.Conflict(fmt.Errorf("suggestion %s is %s; only pending suggestions can be applied", id, sg.Status))
	}

	// For immediate-accept types, win the status transition before
	// mutating anything: the CAS is the single-writer gate that keeps a
	// concurrent apply from executing the same suggestion twice. The CAS
	// and the mutation share one transaction, so a failed mutation rolls
	// the accept back and the suggestion stays retryable.
	deferred := deferredAcceptType(sg.SuggestionType)
	var result *ExecuteResult
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		if !deferred {
			won, err := s.repo.TransitionFromPending(txc, id, types.SuggestionStatusAccepted, actingUserID, time.Now().UTC())
			if err != nil {
				return apierr.Internal(err)
			}
			if !won {
				return apierr.Conflict(fmt.Errorf("suggestion %s was applied or dismissed concurrently", id))
			}
		}
		r, err := s.applyAction(txc, sg)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	result.Accepted = !deferred

	s.log.Info("suggestion executed",
		"suggestion_id", id, "type", sg.SuggestionType,
		"accepted", result.Accepted, "acting_user_id", actingUserID)
	return result, nil
}

func (s *suggestionService) applyAction(dbc dbctx.Context, sg *types.CanvasSuggestion) (*ExecuteResult, error) {
	out := &ExecuteResult{SuggestionType: sg.SuggestionType}

	switch sg.SuggestionType {
	case types.SuggestionTypeAddNode:
		params, err := types.DecodeAddNodeParams(sg.ActionParams)
		if err != nil {
			return nil, apierr.BadRequest(err)
		}
		nodeType := params.NodeType
		if nodeType == "" {
			nodeType = types.NodeTypeIdea
		}
		node := &types.CanvasNode{
			ProjectID: sg.ProjectID,
			Title:     params.Title,
			Content:   params.Content,
			NodeType:  nodeType,
			Tags:      types.MarshalTags(nil),
		}
		if params.ZoneKey != "" {
			pfID := sg.ProjectFrameworkID
			if params.ProjectFrameworkID != nil {
				pfID = *params.ProjectFrameworkID
			}
			node.ZoneAffinities = types.MarshalAffinities(types.AffinityMap{
				pfID.String(): {params.ZoneKey: 1.0},
			})
		}
		created, err := s.nodes.Create(dbc, node)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		out.CreatedNodeID = &created.ID
		if s.notify != nil {
			s.notify.NodeMutated(created.ProjectID, created.ID, "created")
		}

	case types.SuggestionTypeAddTag:
		params, err := types.DecodeAddTagParams(sg.ActionParams)
		if err != nil {
			return nil, apierr.BadRequest(err)
		}
		node, err := s.targetNode(dbc, sg)
		if err != nil {
			return nil, err
		}
		if node.HasTag(params.Tag) {
			out.Detail = "tag already present"
		} else {
			tags := append(node.TagList(), params.Tag)
			if err := s.nodes.UpdateFields(dbc, node.ID, map[string]any{
				"tags": types.MarshalTags(tags),
			}); err != nil {
				return nil, apierr.Internal(err)
			}
			if s.notify != nil {
				s.notify.NodeMutated(node.ProjectID, node.ID, "tagged")
			}
		}
		out.UpdatedNodeID = &node.ID

	case types.SuggestionTypeRefineContent, types.SuggestionTypeContentSuggestion:
		params, err := types.DecodeContentParams(sg.ActionParams)
		if err != nil {
			return nil, apierr.BadRequest(err)
		}
		node, err := s.targetNode(dbc, sg)
		if err != nil {
			return nil, err
		}
		if err := s.nodes.UpdateFields(dbc, node.ID, map[string]any{
			"content": params.Content,
		}); err != nil {
			return nil, apierr.Internal(err)
		}
		out.UpdatedNodeID = &node.ID
		if s.notify != nil {
			s.notify.NodeMutated(node.ProjectID, node.ID, "content-replaced")
		}

	case types.SuggestionTypeHealthIssue:
		// the suggestion record itself is the durable artifact
		out.Detail = "recorded"

	default:
		return nil, apierr.BadRequest(fmt.Errorf("unsupported suggestion type %q", sg.SuggestionType))
	}

	return out, nil
}

func (s *suggestionService) targetNode(dbc dbctx.Context, sg *types.CanvasSuggestion) (*types.CanvasNode, error) {
	if sg.NodeID == nil || *sg.NodeID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("%s suggestion %s has no target node", sg.SuggestionType, sg.ID))
	}
	node, err := s.nodes.GetByID(dbc, *sg.NodeID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("target node %s not found", *sg.NodeID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return node, nil
}

func (s *suggestionService) Accept(dbc dbctx.Context, id uuid.UUID, actingUserID uuid.UUID) error {
	won, err := s.repo.TransitionFromPending(dbc, id, types.SuggestionStatusAccepted, actingUserID, time.Now().UTC())
	if err != nil {
		return apierr.Internal(err)
	}
	if !won {
		sg, getErr := s.repo.GetByID(dbc, id)
		if getErr == repos.ErrNotFound {
			return apierr.NotFound(fmt.Errorf("suggestion %s not found", id))
		}
		if getErr != nil {
			return apierr.Internal(getErr)
		}
		return apierr.Conflict(fmt.Errorf("suggestion %s is already %s", id, sg.Status))
	}
	return nil
}

func (s *suggestionService) Dismiss(dbc dbctx.Context, id uuid.UUID, actingUserID uuid.UUID) error {
	won, err := s.repo.TransitionFromPending(dbc, id, types.SuggestionStatusDismissed, actingUserID, time.Now().UTC())
	if err != nil {
		return apierr.Internal(err)
	}
	if !won {
		sg, getErr := s.repo.GetByID(dbc, id)
		if getErr == repos.ErrNotFound {
			return apierr.NotFound(fmt.Errorf("suggestion %s not found", id))
		}
		if getErr != nil {
			return apierr.Internal(getErr)
		}
		return apierr.Conflict(fmt.Errorf("suggestion %s is already %s", id, sg.Status))
	}
	s.log.Info("suggestion dismissed", "suggestion_id", id, "acting_user_id", actingUserID)
	return nil
}
