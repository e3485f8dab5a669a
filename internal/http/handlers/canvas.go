package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crossmindhq/crossmind-backend/internal/http/response"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/services"
)

type CanvasHandler struct {
	canvasService   services.CanvasService
	affinityService services.AffinityService
	projectService  services.ProjectService
}

func NewCanvasHandler(
	canvasService services.CanvasService,
	affinityService services.AffinityService,
	projectService services.ProjectService,
) *CanvasHandler {
	return &CanvasHandler{
		canvasService:   canvasService,
		affinityService: affinityService,
		projectService:  projectService,
	}
}

func (h *CanvasHandler) CreateNode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ParentID *uuid.UUID `json:"parent_id"`
		Title    string     `json:"title"`
		Content  string     `json:"content"`
		NodeType string     `json:"node_type"`
		Tags     []string   `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	if err := h.projectService.Authorize(dbc, projectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	node, err := h.canvasService.CreateNode(dbc, services.CreateNodeInput{
		ProjectID: projectID,
		ParentID:  req.ParentID,
		Title:     req.Title,
		Content:   req.Content,
		NodeType:  req.NodeType,
		Tags:      req.Tags,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, node)
}

func (h *CanvasHandler) ListNodes(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	if err := h.projectService.Authorize(dbc, projectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	nodes, err := h.canvasService.ListNodes(dbc, projectID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"nodes": nodes})
}

func (h *CanvasHandler) GetNode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	nodeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	node, err := h.canvasService.GetNode(dbc, nodeID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, node.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, node)
}

func (h *CanvasHandler) UpdateNode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	nodeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title      *string  `json:"title"`
		Content    *string  `json:"content"`
		NodeType   *string  `json:"node_type"`
		Tags       []string `json:"tags"`
		TaskStatus *string  `json:"task_status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	node, err := h.canvasService.GetNode(dbc, nodeID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, node.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	updated, err := h.canvasService.UpdateNode(dbc, nodeID, services.UpdateNodeInput{
		Title:      req.Title,
		Content:    req.Content,
		NodeType:   req.NodeType,
		Tags:       req.Tags,
		TaskStatus: req.TaskStatus,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, updated)
}

func (h *CanvasHandler) DeleteNode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	nodeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	node, err := h.canvasService.GetNode(dbc, nodeID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, node.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.canvasService.DeleteNode(dbc, nodeID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (h *CanvasHandler) GetAffinities(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	nodeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	pfID, err := uuid.Parse(c.Query("project_framework_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	node, gerr := h.canvasService.GetNode(dbc, nodeID)
	if gerr != nil {
		response.RespondAPIError(c, gerr)
		return
	}
	if aerr := h.projectService.Authorize(dbc, node.ProjectID, userID); aerr != nil {
		response.RespondAPIError(c, aerr)
		return
	}
	weights, gerr := h.affinityService.GetAffinities(dbc, nodeID, pfID)
	if gerr != nil {
		response.RespondAPIError(c, gerr)
		return
	}
	response.RespondOK(c, gin.H{"weights": weights})
}

func (h *CanvasHandler) SetAffinities(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	nodeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ProjectFrameworkID uuid.UUID          `json:"project_framework_id"`
		Weights            map[string]float64 `json:"weights"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	node, err := h.canvasService.GetNode(dbc, nodeID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, node.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.affinityService.SetAffinities(dbc, nodeID, req.ProjectFrameworkID, req.Weights); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
