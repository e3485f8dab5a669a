package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

type CreateNodeInput struct {
	ProjectID uuid.UUID
	ParentID  *uuid.UUID
	Title     string
	Content   string
	NodeType  string
	Tags      []string
}

type UpdateNodeInput struct {
	Title      *string
	Content    *string
	NodeType   *string
	Tags       []string
	TaskStatus *string
}

// CanvasService owns node CRUD. Zone affinities and layout positions
// live in AffinityService; this service only mutates node substance.
type CanvasService interface {
	CreateNode(dbc dbctx.Context, input CreateNodeInput) (*types.CanvasNode, error)
	GetNode(dbc dbctx.Context, nodeID uuid.UUID) (*types.CanvasNode, error)
	ListNodes(dbc dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error)
	UpdateNode(dbc dbctx.Context, nodeID uuid.UUID, input UpdateNodeInput) (*types.CanvasNode, error)
	DeleteNode(dbc dbctx.Context, nodeID uuid.UUID) error
}

type canvasService struct {
	log    *logger.Logger
	nodes  repos.CanvasNodeRepo
	notify AnalysisNotifier
}

func NewCanvasService(baseLog *logger.Logger, nodeRepo repos.CanvasNodeRepo, notify AnalysisNotifier) CanvasService {
	return &canvasService{
		log:    baseLog.With("service", "CanvasService"),
		nodes:  nodeRepo,
		notify: notify,
	}
}

func (s *canvasService) CreateNode(dbc dbctx.Context, input CreateNodeInput) (*types.CanvasNode, error) {
	if input.ProjectID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("project id is required"))
	}
	if input.Title == "" {
		return nil, apierr.BadRequest(fmt.Errorf("node title is required"))
	}
	nodeType := input.NodeType
	if nodeType == "" {
		nodeType = types.NodeTypeIdea
	}
	if !types.ValidNodeType(nodeType) {
		return nil, apierr.BadRequest(fmt.Errorf("unknown node type %q", nodeType))
	}
	if input.ParentID != nil {
		parent, err := s.nodes.GetByID(dbc, *input.ParentID)
		if err == repos.ErrNotFound {
			return nil, apierr.BadRequest(fmt.Errorf("parent node %s not found", *input.ParentID))
		}
		if err != nil {
			return nil, apierr.Internal(err)
		}
		if parent.ProjectID != input.ProjectID {
			return nil, apierr.BadRequest(fmt.Errorf("parent node belongs to a different project"))
		}
	}

	node, err := s.nodes.Create(dbc, &types.CanvasNode{
		ProjectID: input.ProjectID,
		ParentID:  input.ParentID,
		Title:     input.Title,
		Content:   input.Content,
		NodeType:  nodeType,
		Tags:      types.MarshalTags(input.Tags),
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("create node: %w", err))
	}
	if s.notify != nil {
		s.notify.NodeMutated(node.ProjectID, node.ID, "created")
	}
	return node, nil
}

func (s *canvasService) GetNode(dbc dbctx.Context, nodeID uuid.UUID) (*types.CanvasNode, error) {
	node, err := s.nodes.GetByID(dbc, nodeID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("node %s not found", nodeID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return node, nil
}

func (s *canvasService) ListNodes(dbc dbctx.Context, projectID uuid.UUID) ([]*types.CanvasNode, error) {
	out, err := s.nodes.ListByProject(dbc, projectID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

func (s *canvasService) UpdateNode(dbc dbctx.Context, nodeID uuid.UUID, input UpdateNodeInput) (*types.CanvasNode, error) {
	if _, err := s.GetNode(dbc, nodeID); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if input.Title != nil {
		if *input.Title == "" {
			return nil, apierr.BadRequest(fmt.Errorf("node title cannot be empty"))
		}
		fields["title"] = *input.Title
	}
	if input.Content != nil {
		fields["content"] = *input.Content
	}
	if input.NodeType != nil {
		if !types.ValidNodeType(*input.NodeType) {
			return nil, apierr.BadRequest(fmt.Errorf("unknown node type %q", *input.NodeType))
		}
		fields["node_type"] = *input.NodeType
	}
	if input.Tags != nil {
		fields["tags"] = types.MarshalTags(input.Tags)
	}
	if input.TaskStatus != nil {
		fields["task_status"] = *input.TaskStatus
	}
	if len(fields) == 0 {
		return s.GetNode(dbc, nodeID)
	}

	if err := s.nodes.UpdateFields(dbc, nodeID, fields); err != nil {
		return nil, apierr.Internal(fmt.Errorf("update node: %w", err))
	}
	node, err := s.GetNode(dbc, nodeID)
	if err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.NodeMutated(node.ProjectID, node.ID, "updated")
	}
	return node, nil
}

func (s *canvasService) DeleteNode(dbc dbctx.Context, nodeID uuid.UUID) error {
	node, err := s.GetNode(dbc, nodeID)
	if err != nil {
		return err
	}
	if err := s.nodes.Delete(dbc, nodeID); err != nil {
		return apierr.Internal(fmt.Errorf("delete node: %w", err))
	}
	if s.notify != nil {
		s.notify.NodeMutated(node.ProjectID, node.ID, "deleted")
	}
	return nil
}
