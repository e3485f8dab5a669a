package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/crossmindhq/crossmind-backend/internal/http/handlers"
	httpMW "github.com/crossmindhq/crossmind-backend/internal/http/middleware"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware

	ProjectHandler    *httpH.ProjectHandler
	FrameworkHandler  *httpH.FrameworkHandler
	CanvasHandler     *httpH.CanvasHandler
	SuggestionHandler *httpH.SuggestionHandler
	AnalysisHandler   *httpH.AnalysisHandler
	RealtimeHandler   *httpH.RealtimeHandler

	HealthHandler *httpH.HealthHandler

	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
			api.POST("/refresh", cfg.AuthHandler.Refresh)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.ProjectHandler != nil {
			protected.POST("/projects", cfg.ProjectHandler.Create)
			protected.GET("/projects", cfg.ProjectHandler.List)
			protected.GET("/projects/:id", cfg.ProjectHandler.Get)
			protected.POST("/projects/:id/members", cfg.ProjectHandler.AddMember)
		}

		if cfg.FrameworkHandler != nil {
			protected.GET("/frameworks", cfg.FrameworkHandler.ListPlatform)
			protected.POST("/projects/:id/frameworks", cfg.FrameworkHandler.Adopt)
			protected.GET("/projects/:id/frameworks", cfg.FrameworkHandler.ListForProject)
			protected.GET("/project-frameworks/:id", cfg.FrameworkHandler.GetProjectFramework)
			protected.POST("/project-frameworks/:id/affinities/populate", cfg.FrameworkHandler.PopulateDefaults)
			protected.GET("/project-frameworks/:id/positions", cfg.FrameworkHandler.ListPositions)
			protected.PUT("/project-frameworks/:id/positions", cfg.FrameworkHandler.UpsertPosition)
			protected.DELETE("/project-frameworks/:id/positions", cfg.FrameworkHandler.ClearPositions)
		}

		if cfg.CanvasHandler != nil {
			protected.POST("/projects/:id/nodes", cfg.CanvasHandler.CreateNode)
			protected.GET("/projects/:id/nodes", cfg.CanvasHandler.ListNodes)
			protected.GET("/nodes/:id", cfg.CanvasHandler.GetNode)
			protected.PATCH("/nodes/:id", cfg.CanvasHandler.UpdateNode)
			protected.DELETE("/nodes/:id", cfg.CanvasHandler.DeleteNode)
			protected.GET("/nodes/:id/affinities", cfg.CanvasHandler.GetAffinities)
			protected.PUT("/nodes/:id/affinities", cfg.CanvasHandler.SetAffinities)
		}

		if cfg.SuggestionHandler != nil {
			protected.GET("/projects/:id/suggestions", cfg.SuggestionHandler.List)
			protected.POST("/projects/:id/suggestions", cfg.SuggestionHandler.Create)
			protected.POST("/suggestions/:id/apply", cfg.SuggestionHandler.Apply)
			protected.POST("/suggestions/:id/accept", cfg.SuggestionHandler.Accept)
			protected.POST("/suggestions/:id/dismiss", cfg.SuggestionHandler.Dismiss)
		}

		if cfg.AnalysisHandler != nil {
			protected.POST("/projects/:id/analysis", cfg.AnalysisHandler.Start)
			protected.GET("/analysis/:id/state", cfg.AnalysisHandler.State)
			protected.POST("/analysis/:id/cancel", cfg.AnalysisHandler.Cancel)
			protected.GET("/analysis/:id/messages", cfg.AnalysisHandler.ListMessages)
			protected.GET("/analysis/:id/stream", cfg.AnalysisHandler.Stream)
		}

		if cfg.RealtimeHandler != nil {
			protected.GET("/projects/:id/stream", cfg.RealtimeHandler.ProjectStream)
		}
	}

	return r
}
