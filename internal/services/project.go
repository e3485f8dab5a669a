package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

const (
	MembershipRoleOwner  = "owner"
	MembershipRoleMember = "member"
)

type CreateProjectInput struct {
	OwnerUserID         uuid.UUID
	Name                string
	Description         string
	DefaultFrameworkKey string
}

type ProjectService interface {
	Create(dbc dbctx.Context, input CreateProjectInput) (*types.Project, error)
	Get(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.Project, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Project, error)
	AddMember(dbc dbctx.Context, projectID, actingUserID, newUserID uuid.UUID, role string) (*types.Membership, error)

	// Authorize returns nil when the user is a member of the project,
	// apierr.NotFound otherwise. Non-members get the same 404 as a
	// missing project so membership is not probeable.
	Authorize(dbc dbctx.Context, projectID, userID uuid.UUID) error
}

type projectService struct {
	log         *logger.Logger
	db          *gorm.DB
	projects    repos.ProjectRepo
	memberships repos.MembershipRepo
	frameworks  repos.FrameworkRepo
}

func NewProjectService(
	db *gorm.DB,
	baseLog *logger.Logger,
	projectRepo repos.ProjectRepo,
	membershipRepo repos.MembershipRepo,
	frameworkRepo repos.FrameworkRepo,
) ProjectService {
	return &projectService{
		log:         baseLog.With("service", "ProjectService"),
		db:          db,
		projects:    projectRepo,
		memberships: membershipRepo,
		frameworks:  frameworkRepo,
	}
}

func (s *projectService) Create(dbc dbctx.Context, input CreateProjectInput) (*types.Project, error) {
	if input.Name == "" {
		return nil, apierr.BadRequest(fmt.Errorf("project name is required"))
	}
	if input.OwnerUserID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("owner user id is required"))
	}

	var defaultFrameworkID *uuid.UUID
	if input.DefaultFrameworkKey != "" {
		fw, err := s.frameworks.GetByKey(dbc, input.DefaultFrameworkKey)
		if err == repos.ErrNotFound {
			return nil, apierr.BadRequest(fmt.Errorf("unknown framework %q", input.DefaultFrameworkKey))
		}
		if err != nil {
			return nil, apierr.Internal(err)
		}
		defaultFrameworkID = &fw.ID
	}

	var project *types.Project
	err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)
		var cerr error
		project, cerr = s.projects.Create(txc, &types.Project{
			OwnerUserID:        input.OwnerUserID,
			Name:               input.Name,
			Description:        input.Description,
			DefaultFrameworkID: defaultFrameworkID,
		})
		if cerr != nil {
			return cerr
		}
		_, cerr = s.memberships.Create(txc, &types.Membership{
			ProjectID: project.ID,
			UserID:    input.OwnerUserID,
			Role:      MembershipRoleOwner,
		})
		return cerr
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("create project: %w", err))
	}
	s.log.Info("project created", "project_id", project.ID, "user_id", input.OwnerUserID)
	return project, nil
}

func (s *projectService) Get(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.Project, error) {
	if err := s.Authorize(dbc, projectID, userID); err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(dbc, projectID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("project %s not found", projectID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return project, nil
}

func (s *projectService) ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Project, error) {
	ids, err := s.memberships.ListProjectIDsByUser(dbc, userID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	out, err := s.projects.ListByIDs(dbc, ids)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

func (s *projectService) AddMember(dbc dbctx.Context, projectID, actingUserID, newUserID uuid.UUID, role string) (*types.Membership, error) {
	member, err := s.memberships.Get(dbc, projectID, actingUserID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("project %s not found", projectID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if member.Role != MembershipRoleOwner {
		return nil, apierr.Unauthorized(fmt.Errorf("only the project owner can add members"))
	}
	if role != MembershipRoleOwner && role != MembershipRoleMember {
		role = MembershipRoleMember
	}
	if _, err := s.memberships.Get(dbc, projectID, newUserID); err == nil {
		return nil, apierr.Conflict(fmt.Errorf("user is already a member"))
	} else if err != repos.ErrNotFound {
		return nil, apierr.Internal(err)
	}
	m, err := s.memberships.Create(dbc, &types.Membership{
		ProjectID: projectID,
		UserID:    newUserID,
		Role:      role,
	})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return m, nil
}

func (s *projectService) Authorize(dbc dbctx.Context, projectID, userID uuid.UUID) error {
	_, err := s.memberships.Get(dbc, projectID, userID)
	if err == repos.ErrNotFound {
		return apierr.NotFound(fmt.Errorf("project %s not found", projectID))
	}
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}
