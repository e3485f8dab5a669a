package app

import (
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
)

type Repos struct {
	User             repos.UserRepo
	Membership       repos.MembershipRepo
	Project          repos.ProjectRepo
	Framework        repos.FrameworkRepo
	ProjectFramework repos.ProjectFrameworkRepo
	CanvasNode       repos.CanvasNodeRepo
	CanvasPosition   repos.CanvasPositionRepo
	Suggestion       repos.SuggestionRepo
	Chat             repos.ChatRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:             repos.NewUserRepo(db, log),
		Membership:       repos.NewMembershipRepo(db, log),
		Project:          repos.NewProjectRepo(db, log),
		Framework:        repos.NewFrameworkRepo(db, log),
		ProjectFramework: repos.NewProjectFrameworkRepo(db, log),
		CanvasNode:       repos.NewCanvasNodeRepo(db, log),
		CanvasPosition:   repos.NewCanvasPositionRepo(db, log),
		Suggestion:       repos.NewSuggestionRepo(db, log),
		Chat:             repos.NewChatRepo(db, log),
	}
}
