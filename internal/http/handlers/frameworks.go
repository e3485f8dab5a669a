package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crossmindhq/crossmind-backend/internal/http/response"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/services"
)

type FrameworkHandler struct {
	frameworkService services.FrameworkService
	affinityService  services.AffinityService
	projectService   services.ProjectService
}

func NewFrameworkHandler(
	frameworkService services.FrameworkService,
	affinityService services.AffinityService,
	projectService services.ProjectService,
) *FrameworkHandler {
	return &FrameworkHandler{
		frameworkService: frameworkService,
		affinityService:  affinityService,
		projectService:   projectService,
	}
}

func (h *FrameworkHandler) ListPlatform(c *gin.Context) {
	frameworks, err := h.frameworkService.ListPlatform(dbctx.New(c.Request.Context()))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"frameworks": frameworks})
}

func (h *FrameworkHandler) Adopt(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		FrameworkID uuid.UUID `json:"framework_id"`
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
	pf, err := h.frameworkService.Adopt(dbc, projectID, req.FrameworkID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, pf)
}

func (h *FrameworkHandler) ListForProject(c *gin.Context) {
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
	pfs, err := h.frameworkService.ListProjectFrameworks(dbc, projectID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project_frameworks": pfs})
}

func (h *FrameworkHandler) GetProjectFramework(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	pfID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	pf, err := h.frameworkService.GetProjectFramework(dbc, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, pf.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, pf)
}

// PopulateDefaults seeds round-robin zone affinities for root nodes
// that have none yet for this framework.
func (h *FrameworkHandler) PopulateDefaults(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	pfID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	pf, err := h.frameworkService.GetProjectFramework(dbc, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, pf.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	assigned, err := h.affinityService.PopulateDefaults(dbc, pf.ProjectID, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assigned": assigned})
}

func (h *FrameworkHandler) ListPositions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	pfID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	pf, err := h.frameworkService.GetProjectFramework(dbc, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, pf.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	positions, err := h.affinityService.ListPositions(dbc, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"positions": positions})
}

func (h *FrameworkHandler) UpsertPosition(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	pfID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		NodeID uuid.UUID `json:"node_id"`
		X      float64   `json:"x"`
		Y      float64   `json:"y"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	pf, err := h.frameworkService.GetProjectFramework(dbc, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, pf.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	pos, err := h.affinityService.UpsertPosition(dbc, req.NodeID, pfID, req.X, req.Y)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, pos)
}

// ClearPositions drops the cached layout for a framework so the client
// recomputes it from affinities.
func (h *FrameworkHandler) ClearPositions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	pfID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	pf, err := h.frameworkService.GetProjectFramework(dbc, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.projectService.Authorize(dbc, pf.ProjectID, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	cleared, err := h.affinityService.ClearPositions(dbc, pfID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"cleared": cleared})
}
