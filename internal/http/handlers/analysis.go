package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crossmindhq/crossmind-backend/internal/http/response"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/realtime"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/services"
)

// analysisRunTimeout bounds a detached analysis run. Generous because
// big canvases take many model turns.
const analysisRunTimeout = 10 * time.Minute

type AnalysisHandler struct {
	log             *logger.Logger
	analysisService services.HealthAnalysisService
	projectService  services.ProjectService
	chatRepo        repos.ChatRepo
	hub             *realtime.SSEHub
}

func NewAnalysisHandler(
	baseLog *logger.Logger,
	analysisService services.HealthAnalysisService,
	projectService services.ProjectService,
	chatRepo repos.ChatRepo,
	hub *realtime.SSEHub,
) *AnalysisHandler {
	return &AnalysisHandler{
		log:             baseLog.With("handler", "AnalysisHandler"),
		analysisService: analysisService,
		projectService:  projectService,
		chatRepo:        chatRepo,
		hub:             hub,
	}
}

// Start provisions the analysis chat and launches the run detached from
// the request. Progress streams over the chat's SSE channel.
func (h *AnalysisHandler) Start(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ProjectFrameworkID *uuid.UUID `json:"project_framework_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	if err := h.projectService.Authorize(dbc, projectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}

	chat, err := h.analysisService.Start(c.Request.Context(), services.StartAnalysisInput{
		ProjectID:          projectID,
		ProjectFrameworkID: req.ProjectFrameworkID,
		UserID:             userID,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), analysisRunTimeout)
		defer cancel()
		if runErr := h.analysisService.Run(runCtx, chat.ID); runErr != nil {
			h.log.Warn("analysis run ended with error", "chat_id", chat.ID, "error", runErr)
		}
	}()

	response.RespondCreated(c, gin.H{
		"chat":    chat,
		"channel": realtime.ChatChannel(chat.ID),
	})
}

func (h *AnalysisHandler) authorizeChat(c *gin.Context, dbc dbctx.Context, userID uuid.UUID) (uuid.UUID, bool) {
	chatID, ok := pathUUID(c, "id")
	if !ok {
		return uuid.Nil, false
	}
	chat, err := h.chatRepo.GetByID(dbc, chatID)
	if err == repos.ErrNotFound {
		response.RespondError(c, http.StatusNotFound, "not_found", err)
		return uuid.Nil, false
	}
	if err != nil {
		response.RespondAPIError(c, err)
		return uuid.Nil, false
	}
	if err := h.projectService.Authorize(dbc, chat.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return uuid.Nil, false
	}
	return chatID, true
}

func (h *AnalysisHandler) State(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	chatID, ok := h.authorizeChat(c, dbc, userID)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"state": h.analysisService.State(chatID)})
}

func (h *AnalysisHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	chatID, ok := h.authorizeChat(c, dbc, userID)
	if !ok {
		return
	}
	canceled := h.analysisService.Cancel(chatID)
	response.RespondOK(c, gin.H{"canceled": canceled})
}

func (h *AnalysisHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	chatID, ok := h.authorizeChat(c, dbc, userID)
	if !ok {
		return
	}
	messages, err := h.chatRepo.ListMessages(dbc, chatID, 500)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": messages})
}

// Stream serves the chat's SSE channel. Holds the connection open until
// the client disconnects.
func (h *AnalysisHandler) Stream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	chatID, ok := h.authorizeChat(c, dbc, userID)
	if !ok {
		return
	}

	client := h.hub.NewClient(userID)
	h.hub.Subscribe(client, realtime.ChatChannel(chatID))
	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
