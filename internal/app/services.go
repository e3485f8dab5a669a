package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/platform/openai"
	"github.com/crossmindhq/crossmind-backend/internal/realtime"
	"github.com/crossmindhq/crossmind-backend/internal/realtime/bus"
	"github.com/crossmindhq/crossmind-backend/internal/services"
)

type Services struct {
	Auth           services.AuthService
	Project        services.ProjectService
	Framework      services.FrameworkService
	Canvas         services.CanvasService
	Affinity       services.AffinityService
	HealthScore    services.HealthScoreService
	Suggestion     services.SuggestionService
	HealthAnalysis services.HealthAnalysisService
	Notifier       services.AnalysisNotifier

	LLM openai.Client
	Bus bus.Bus
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	llm, err := openai.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init openai client: %w", err)
	}

	// Events go straight to the in-process hub unless Redis fan-out is
	// on, in which case they round-trip through the bus so every
	// instance's hub sees them.
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: hub}
	var sseBus bus.Bus
	if cfg.RedisEnabled {
		sseBus, err = bus.NewRedisBus(log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis bus: %w", err)
		}
		emitter = &services.BusEmitter{Publish: sseBus.Publish}
	}
	notifier := services.NewAnalysisNotifier(emitter)

	tables, err := services.LoadWeightTables(log)
	if err != nil {
		return Services{}, fmt.Errorf("load health weight tables: %w", err)
	}

	authSvc := services.NewAuthService(log, r.User, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	projectSvc := services.NewProjectService(db, log, r.Project, r.Membership, r.Framework)
	frameworkSvc := services.NewFrameworkService(db, log, r.Framework, r.ProjectFramework, r.Project)
	canvasSvc := services.NewCanvasService(log, r.CanvasNode, notifier)
	affinitySvc := services.NewAffinityService(db, log, r.CanvasNode, r.ProjectFramework, r.CanvasPosition)
	scoreSvc := services.NewHealthScoreService(log, tables, r.ProjectFramework)
	suggestionSvc := services.NewSuggestionService(db, log, r.Suggestion, r.CanvasNode, notifier)
	analysisSvc := services.NewHealthAnalysisService(
		db, log, llm,
		r.Chat, r.Project, r.ProjectFramework, r.CanvasNode,
		frameworkSvc, suggestionSvc, scoreSvc, notifier,
	)

	return Services{
		Auth:           authSvc,
		Project:        projectSvc,
		Framework:      frameworkSvc,
		Canvas:         canvasSvc,
		Affinity:       affinitySvc,
		HealthScore:    scoreSvc,
		Suggestion:     suggestionSvc,
		HealthAnalysis: analysisSvc,
		Notifier:       notifier,
		LLM:            llm,
		Bus:            sseBus,
	}, nil
}
