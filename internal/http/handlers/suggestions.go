package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/crossmindhq/crossmind-backend/internal/http/response"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/services"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

type SuggestionHandler struct {
	suggestionService services.SuggestionService
	projectService    services.ProjectService
}

func NewSuggestionHandler(suggestionService services.SuggestionService, projectService services.ProjectService) *SuggestionHandler {
	return &SuggestionHandler{
		suggestionService: suggestionService,
		projectService:    projectService,
	}
}

func (h *SuggestionHandler) List(c *gin.Context) {
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
	filter, ok := suggestionListFilter(c, projectID)
	if !ok {
		return
	}
	suggestions, err := h.suggestionService.List(dbc, filter)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"suggestions": suggestions})
}

// suggestionListFilter reads the optional status, project_framework_id
// and node_id query params. It writes the error response itself and
// reports false on a malformed id.
func suggestionListFilter(c *gin.Context, projectID uuid.UUID) (repos.SuggestionFilter, bool) {
	filter := repos.SuggestionFilter{ProjectID: projectID}
	if status := c.Query("status"); status != "" {
		filter.Status = status
	}
	if raw := c.Query("project_framework_id"); raw != "" {
		pfID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return filter, false
		}
		filter.ProjectFrameworkID = &pfID
	}
	if raw := c.Query("node_id"); raw != "" {
		nodeID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return filter, false
		}
		filter.NodeID = &nodeID
	}
	return filter, true
}

func (h *SuggestionHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ProjectFrameworkID uuid.UUID      `json:"project_framework_id"`
		NodeID             *uuid.UUID     `json:"node_id"`
		SuggestionType     string         `json:"suggestion_type"`
		Title              string         `json:"title"`
		Description        string         `json:"description"`
		Reason             string         `json:"reason"`
		Priority           string         `json:"priority"`
		ActionParams       map[string]any `json:"action_params"`
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
	var actionParams datatypes.JSON
	if req.ActionParams != nil {
		raw, err := jsonMarshal(req.ActionParams)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		actionParams = raw
	}
	sg, err := h.suggestionService.Create(dbc, services.CreateSuggestionInput{
		ProjectID:          projectID,
		ProjectFrameworkID: req.ProjectFrameworkID,
		NodeID:             req.NodeID,
		SuggestionType:     req.SuggestionType,
		Title:              req.Title,
		Description:        req.Description,
		Reason:             req.Reason,
		Priority:           req.Priority,
		ActionParams:       actionParams,
		Source:             types.SuggestionSourceUser,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, sg)
}

func (h *SuggestionHandler) authorizeSuggestion(c *gin.Context, dbc dbctx.Context, userID uuid.UUID) (uuid.UUID, bool) {
	suggestionID, ok := pathUUID(c, "id")
	if !ok {
		return uuid.Nil, false
	}
	sg, err := h.suggestionService.GetByID(dbc, suggestionID)
	if err != nil {
		response.RespondAPIError(c, err)
		return uuid.Nil, false
	}
	if err := h.projectService.Authorize(dbc, sg.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return uuid.Nil, false
	}
	return suggestionID, true
}

// Apply executes the suggestion's action and marks it accepted. For
// deferred types (content-suggestion, health-issue) the mutation is
// previewed only; the client accepts separately.
func (h *SuggestionHandler) Apply(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	suggestionID, ok := h.authorizeSuggestion(c, dbc, userID)
	if !ok {
		return
	}
	result, err := h.suggestionService.Execute(dbc, suggestionID, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, result)
}

func (h *SuggestionHandler) Accept(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	suggestionID, ok := h.authorizeSuggestion(c, dbc, userID)
	if !ok {
		return
	}
	if err := h.suggestionService.Accept(dbc, suggestionID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (h *SuggestionHandler) Dismiss(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	suggestionID, ok := h.authorizeSuggestion(c, dbc, userID)
	if !ok {
		return
	}
	if err := h.suggestionService.Dismiss(dbc, suggestionID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
