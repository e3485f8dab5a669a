package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

// AffinityService owns the fuzzy zone membership of canvas nodes. A
// node carries one weight map per adopted framework; weights are in
// [0,1] but are not required to sum to 1 (soft clustering: layout treats
// magnitude as relative pull).
type AffinityService interface {
	// SetAffinities replaces the node's weight map for one framework.
	// Entries for other frameworks are untouched.
	SetAffinities(dbc dbctx.Context, nodeID, projectFrameworkID uuid.UUID, weights map[string]float64) error

	GetAffinities(dbc dbctx.Context, nodeID, projectFrameworkID uuid.UUID) (map[string]float64, error)

	// PopulateDefaults bootstraps affinities for root nodes that have no
	// entry yet for the framework: node i gets its primary zone
	// (i mod zoneCount) at 0.8 and the circular neighbors at 0.2 each.
	// Returns the number of nodes populated.
	PopulateDefaults(dbc dbctx.Context, projectID, projectFrameworkID uuid.UUID) (int, error)

	// ResolveZoneKeysByName maps human-readable zone names to zone keys:
	// exact match first, then case-insensitive. Unresolved names are
	// absent from the result; callers detect them by absence and fail
	// with the unresolved name.
	ResolveZoneKeysByName(dbc dbctx.Context, projectFrameworkID uuid.UUID, displayNames []string) (map[string]string, error)

	// ClearPositions drops all persisted layout overrides for the
	// framework so layout falls back to affinity-derived placement.
	ClearPositions(dbc dbctx.Context, projectFrameworkID uuid.UUID) (int64, error)

	UpsertPosition(dbc dbctx.Context, nodeID, projectFrameworkID uuid.UUID, x, y float64) (*types.CanvasNodePosition, error)
	ListPositions(dbc dbctx.Context, projectFrameworkID uuid.UUID) ([]*types.CanvasNodePosition, error)
}

type affinityService struct {
	db        *gorm.DB
	log       *logger.Logger
	nodes     repos.CanvasNodeRepo
	pfs       repos.ProjectFrameworkRepo
	positions repos.CanvasPositionRepo
}

func NewAffinityService(
	db *gorm.DB,
	baseLog *logger.Logger,
	nodeRepo repos.CanvasNodeRepo,
	pfRepo repos.ProjectFrameworkRepo,
	positionRepo repos.CanvasPositionRepo,
) AffinityService {
	return &affinityService{
		db:        db,
		log:       baseLog.With("service", "AffinityService"),
		nodes:     nodeRepo,
		pfs:       pfRepo,
		positions: positionRepo,
	}
}

func (s *affinityService) SetAffinities(dbc dbctx.Context, nodeID, projectFrameworkID uuid.UUID, weights map[string]float64) error {
	for zoneKey, w := range weights {
		if w < 0 || w > 1 {
			return apierr.BadRequest(fmt.Errorf("affinity weight for zone %q out of range [0,1]: %v", zoneKey, w))
		}
	}

	node, err := s.nodes.GetByID(dbc, nodeID)
	if err == repos.ErrNotFound {
		return apierr.NotFound(fmt.Errorf("canvas node %s not found", nodeID))
	}
	if err != nil {
		return apierr.Internal(err)
	}

	all := node.Affinities()
	if weights == nil {
		weights = map[string]float64{}
	}
	all[projectFrameworkID.String()] = weights

	return s.nodes.UpdateFields(dbc, nodeID, map[string]any{
		"zone_affinities": types.MarshalAffinities(all),
	})
}

func (s *affinityService) GetAffinities(dbc dbctx.Context, nodeID, projectFrameworkID uuid.UUID) (map[string]float64, error) {
	node, err := s.nodes.GetByID(dbc, nodeID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("canvas node %s not found", nodeID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return node.AffinitiesFor(projectFrameworkID), nil
}

func (s *affinityService) PopulateDefaults(dbc dbctx.Context, projectID, projectFrameworkID uuid.UUID) (int, error) {
	pf, err := s.pfs.GetByID(dbc, projectFrameworkID)
	if err == repos.ErrNotFound {
		return 0, apierr.NotFound(fmt.Errorf("project framework %s not found", projectFrameworkID))
	}
	if err != nil {
		return 0, apierr.Internal(err)
	}
	zoneKeys := orderedZoneKeys(pf.Zones)
	if len(zoneKeys) == 0 {
		return 0, apierr.BadRequest(fmt.Errorf("framework %s has no zones to distribute across", projectFrameworkID))
	}

	roots, err := s.nodes.ListRootsByProject(dbc, projectID)
	if err != nil {
		return 0, apierr.Internal(err)
	}

	pfKey := projectFrameworkID.String()
	populated := 0
	assignIndex := 0
	for _, node := range roots {
		existing := node.Affinities()
		if len(existing[pfKey]) > 0 {
			// already assigned for this framework; index still advances
			// so re-runs keep the original spread deterministic
			assignIndex++
			continue
		}
		existing[pfKey] = defaultAffinitySpread(assignIndex, zoneKeys)
		if err := s.nodes.UpdateFields(dbc, node.ID, map[string]any{
			"zone_affinities": types.MarshalAffinities(existing),
		}); err != nil {
			return populated, apierr.Internal(err)
		}
		populated++
		assignIndex++
	}

	s.log.Info("populated default affinities",
		"project_id", projectID, "project_framework_id", projectFrameworkID,
		"populated", populated, "zones", len(zoneKeys))
	return populated, nil
}

// defaultAffinitySpread produces the deterministic bootstrap weights for
// the i-th node over an ordered zone list: primary zone i mod n at 0.8,
// circular predecessor and successor at 0.2 each. With fewer than three
// zones the neighbor entries collapse onto the available zones.
func defaultAffinitySpread(i int, zoneKeys []string) map[string]float64 {
	n := len(zoneKeys)
	if n == 0 {
		return map[string]float64{}
	}
	primary := i % n
	out := map[string]float64{zoneKeys[primary]: 0.8}
	if n == 1 {
		return out
	}
	prev := (primary - 1 + n) % n
	next := (primary + 1) % n
	out[zoneKeys[prev]] = 0.2
	out[zoneKeys[next]] = 0.2
	// single-neighbor case (n == 2): prev == next, one 0.2 entry
	return out
}

func orderedZoneKeys(zones []types.ProjectFrameworkZone) []string {
	out := make([]string, 0, len(zones))
	for _, z := range zones {
		out = append(out, z.ZoneKey)
	}
	return out
}

func (s *affinityService) ResolveZoneKeysByName(dbc dbctx.Context, projectFrameworkID uuid.UUID, displayNames []string) (map[string]string, error) {
	pf, err := s.pfs.GetByID(dbc, projectFrameworkID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("project framework %s not found", projectFrameworkID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return resolveZoneKeys(pf.Zones, displayNames), nil
}

func resolveZoneKeys(zones []types.ProjectFrameworkZone, displayNames []string) map[string]string {
	exact := make(map[string]string, len(zones))
	folded := make(map[string]string, len(zones))
	for _, z := range zones {
		exact[z.Name] = z.ZoneKey
		folded[strings.ToLower(z.Name)] = z.ZoneKey
	}

	out := make(map[string]string, len(displayNames))
	for _, name := range displayNames {
		if key, ok := exact[name]; ok {
			out[name] = key
			continue
		}
		if key, ok := folded[strings.ToLower(name)]; ok {
			out[name] = key
		}
		// unresolved names stay absent; the caller reports them
	}
	return out
}

func (s *affinityService) ClearPositions(dbc dbctx.Context, projectFrameworkID uuid.UUID) (int64, error) {
	cleared, err := s.positions.ClearByProjectFramework(dbc, projectFrameworkID)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	s.log.Info("cleared layout overrides", "project_framework_id", projectFrameworkID, "rows", cleared)
	return cleared, nil
}

func (s *affinityService) UpsertPosition(dbc dbctx.Context, nodeID, projectFrameworkID uuid.UUID, x, y float64) (*types.CanvasNodePosition, error) {
	pos, err := s.positions.Upsert(dbc, &types.CanvasNodePosition{
		NodeID:             nodeID,
		ProjectFrameworkID: projectFrameworkID,
		X:                  x,
		Y:                  y,
	})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return pos, nil
}

func (s *affinityService) ListPositions(dbc dbctx.Context, projectFrameworkID uuid.UUID) ([]*types.CanvasNodePosition, error) {
	out, err := s.positions.ListByProjectFramework(dbc, projectFrameworkID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}
