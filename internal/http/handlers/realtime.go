package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/crossmindhq/crossmind-backend/internal/http/response"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/realtime"
	"github.com/crossmindhq/crossmind-backend/internal/services"
)

type RealtimeHandler struct {
	log            *logger.Logger
	hub            *realtime.SSEHub
	projectService services.ProjectService
}

func NewRealtimeHandler(baseLog *logger.Logger, hub *realtime.SSEHub, projectService services.ProjectService) *RealtimeHandler {
	return &RealtimeHandler{
		log:            baseLog.With("handler", "RealtimeHandler"),
		hub:            hub,
		projectService: projectService,
	}
}

// ProjectStream serves project-scoped events: suggestion-created,
// node-updated, framework-health.
func (h *RealtimeHandler) ProjectStream(c *gin.Context) {
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

	client := h.hub.NewClient(userID)
	h.hub.Subscribe(client, realtime.ProjectChannel(projectID))
	h.log.Info("project SSE stream open", "user_id", userID, "project_id", projectID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
