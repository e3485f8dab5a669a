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

// FrameworkService reads platform frameworks and adopts them into
// projects as independent snapshots.
type FrameworkService interface {
	ListPlatform(dbc dbctx.Context) ([]*types.Framework, error)
	GetProjectFramework(dbc dbctx.Context, pfID uuid.UUID) (*types.ProjectFramework, error)
	ListProjectFrameworks(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectFramework, error)

	// Adopt snapshots a Framework into the project, copying its zones,
	// and activates the snapshot. Copies keep source back-references but
	// are otherwise independent of the template.
	Adopt(dbc dbctx.Context, projectID, frameworkID uuid.UUID) (*types.ProjectFramework, error)

	// SeedPlatformFrameworks inserts the built-in framework templates
	// when they are missing. Safe to run at every startup.
	SeedPlatformFrameworks(dbc dbctx.Context) error
}

type frameworkService struct {
	db         *gorm.DB
	log        *logger.Logger
	frameworks repos.FrameworkRepo
	pfs        repos.ProjectFrameworkRepo
	projects   repos.ProjectRepo
}

func NewFrameworkService(
	db *gorm.DB,
	baseLog *logger.Logger,
	frameworkRepo repos.FrameworkRepo,
	pfRepo repos.ProjectFrameworkRepo,
	projectRepo repos.ProjectRepo,
) FrameworkService {
	return &frameworkService{
		db:         db,
		log:        baseLog.With("service", "FrameworkService"),
		frameworks: frameworkRepo,
		pfs:        pfRepo,
		projects:   projectRepo,
	}
}

func (s *frameworkService) ListPlatform(dbc dbctx.Context) ([]*types.Framework, error) {
	out, err := s.frameworks.ListPlatform(dbc)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

func (s *frameworkService) GetProjectFramework(dbc dbctx.Context, pfID uuid.UUID) (*types.ProjectFramework, error) {
	pf, err := s.pfs.GetByID(dbc, pfID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("project framework %s not found", pfID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return pf, nil
}

func (s *frameworkService) ListProjectFrameworks(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectFramework, error) {
	out, err := s.pfs.ListByProject(dbc, projectID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

func (s *frameworkService) Adopt(dbc dbctx.Context, projectID, frameworkID uuid.UUID) (*types.ProjectFramework, error) {
	if _, err := s.projects.GetByID(dbc, projectID); err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("project %s not found", projectID))
	} else if err != nil {
		return nil, apierr.Internal(err)
	}

	fw, err := s.frameworks.GetByID(dbc, frameworkID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("framework %s not found", frameworkID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if len(fw.Zones) == 0 {
		return nil, apierr.BadRequest(fmt.Errorf("framework %s has no zones to snapshot", frameworkID))
	}

	var adopted *types.ProjectFramework
	txErr := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbc.WithTx(tx)

		sourceID := fw.ID
		snapshot := &types.ProjectFramework{
			ProjectID:         projectID,
			SourceFrameworkID: &sourceID,
			FrameworkKey:      fw.Key,
			Name:              fw.Name,
			Description:       fw.Description,
			Icon:              fw.Icon,
		}
		for _, z := range fw.Zones {
			zoneID := z.ID
			snapshot.Zones = append(snapshot.Zones, types.ProjectFrameworkZone{
				SourceZoneID: &zoneID,
				ZoneKey:      z.ZoneKey,
				Name:         z.Name,
				Description:  z.Description,
				DisplayOrder: z.DisplayOrder,
				ColorKey:     z.ColorKey,
			})
		}

		created, err := s.pfs.Create(txc, snapshot)
		if err != nil {
			return err
		}
		if err := s.pfs.SetActive(txc, projectID, created.ID); err != nil {
			return err
		}
		created.IsActive = true
		adopted = created
		return nil
	})
	if txErr != nil {
		return nil, apierr.Internal(txErr)
	}

	s.log.Info("framework adopted",
		"project_id", projectID, "framework_id", frameworkID,
		"project_framework_id", adopted.ID, "zones", len(adopted.Zones))
	return adopted, nil
}

func (s *frameworkService) SeedPlatformFrameworks(dbc dbctx.Context) error {
	for _, seed := range platformFrameworkSeeds() {
		if _, err := s.frameworks.GetByKey(dbc, seed.Key); err == nil {
			continue
		} else if err != repos.ErrNotFound {
			return err
		}
		if _, err := s.frameworks.Create(dbc, seed); err != nil {
			return err
		}
		s.log.Info("seeded platform framework", "key", seed.Key, "zones", len(seed.Zones))
	}
	return nil
}

func platformFrameworkSeeds() []*types.Framework {
	leanZones := []struct {
		key, name, color string
	}{
		{"problem", "Problem", "red"},
		{"solution", "Solution", "green"},
		{"key-metrics", "Key Metrics", "amber"},
		{"unique-value-proposition", "Unique Value Proposition", "purple"},
		{"unfair-advantage", "Unfair Advantage", "blue"},
		{"channels", "Channels", "teal"},
		{"customer-segments", "Customer Segments", "orange"},
		{"cost-structure", "Cost Structure", "slate"},
		{"revenue-streams", "Revenue Streams", "emerald"},
	}
	lean := &types.Framework{
		Key:         "lean-canvas",
		Name:        "Lean Canvas",
		Description: "One-page business model decomposition for early-stage products.",
		Icon:        "layout-grid",
		OwnerScope:  types.FrameworkScopePlatform,
	}
	for i, z := range leanZones {
		lean.Zones = append(lean.Zones, types.FrameworkZone{
			ZoneKey:      z.key,
			Name:         z.name,
			DisplayOrder: i,
			ColorKey:     z.color,
		})
	}

	swot := &types.Framework{
		Key:         "swot",
		Name:        "SWOT Analysis",
		Description: "Strengths, weaknesses, opportunities and threats.",
		Icon:        "grid-2x2",
		OwnerScope:  types.FrameworkScopePlatform,
	}
	for i, z := range []struct{ key, name, color string }{
		{"strengths", "Strengths", "green"},
		{"weaknesses", "Weaknesses", "red"},
		{"opportunities", "Opportunities", "blue"},
		{"threats", "Threats", "amber"},
	} {
		swot.Zones = append(swot.Zones, types.FrameworkZone{
			ZoneKey:      z.key,
			Name:         z.name,
			DisplayOrder: i,
			ColorKey:     z.color,
		})
	}

	return []*types.Framework{lean, swot}
}
