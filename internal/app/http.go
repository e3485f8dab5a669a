package app

import (
	"github.com/gin-gonic/gin"

	"github.com/crossmindhq/crossmind-backend/internal/http"
	httpH "github.com/crossmindhq/crossmind-backend/internal/http/handlers"
	httpMW "github.com/crossmindhq/crossmind-backend/internal/http/middleware"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health     *httpH.HealthHandler
	Auth       *httpH.AuthHandler
	Project    *httpH.ProjectHandler
	Framework  *httpH.FrameworkHandler
	Canvas     *httpH.CanvasHandler
	Suggestion *httpH.SuggestionHandler
	Analysis   *httpH.AnalysisHandler
	Realtime   *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, s Services, r Repos, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(),
		Auth:       httpH.NewAuthHandler(s.Auth),
		Project:    httpH.NewProjectHandler(s.Project),
		Framework:  httpH.NewFrameworkHandler(s.Framework, s.Affinity, s.Project),
		Canvas:     httpH.NewCanvasHandler(s.Canvas, s.Affinity, s.Project),
		Suggestion: httpH.NewSuggestionHandler(s.Suggestion, s.Project),
		Analysis:   httpH.NewAnalysisHandler(log, s.HealthAnalysis, s.Project, r.Chat, hub),
		Realtime:   httpH.NewRealtimeHandler(log, hub, s.Project),
	}
}

func wireMiddleware(log *logger.Logger, s Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, s.Auth),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:               log,
		ServiceName:       cfg.ServiceName,
		HealthHandler:     handlers.Health,
		AuthHandler:       handlers.Auth,
		AuthMiddleware:    middleware.Auth,
		ProjectHandler:    handlers.Project,
		FrameworkHandler:  handlers.Framework,
		CanvasHandler:     handlers.Canvas,
		SuggestionHandler: handlers.Suggestion,
		AnalysisHandler:   handlers.Analysis,
		RealtimeHandler:   handlers.Realtime,
	})
}
