package services

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

const healthWeightsEnv = "HEALTH_WEIGHTS_YAML"

//go:embed health_weights.yaml
var healthWeightsFS embed.FS

// ErrUnscorable marks a framework key with no registered weight table.
// Distinct from a zero score: the framework simply cannot be scored.
var ErrUnscorable = errors.New("framework has no weight table")

const weightSumTolerance = 0.01

// WeightTables holds the static per-framework-type dimension weights.
// Loaded and validated once at startup; a table whose weights do not
// sum to 1.0 within tolerance is a fatal configuration error.
type WeightTables struct {
	Frameworks map[string]map[string]float64 `yaml:"frameworks"`
}

// LoadWeightTables reads the embedded default table set, or the file
// named by HEALTH_WEIGHTS_YAML when set, and validates every table.
func LoadWeightTables(log *logger.Logger) (*WeightTables, error) {
	raw, source, err := readWeightsYAML()
	if err != nil {
		return nil, err
	}
	tables, err := parseWeightTables(raw)
	if err != nil {
		return nil, fmt.Errorf("weight tables (%s): %w", source, err)
	}
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("weight tables (%s): %w", source, err)
	}
	if log != nil {
		log.Info("loaded health weight tables", "source", source, "frameworks", len(tables.Frameworks))
	}
	return tables, nil
}

func readWeightsYAML() ([]byte, string, error) {
	if path := strings.TrimSpace(os.Getenv(healthWeightsEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", path, err)
		}
		return raw, path, nil
	}
	raw, err := healthWeightsFS.ReadFile("health_weights.yaml")
	if err != nil {
		return nil, "", fmt.Errorf("read embedded weights: %w", err)
	}
	return raw, "embedded", nil
}

func parseWeightTables(raw []byte) (*WeightTables, error) {
	var t WeightTables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &t, nil
}

func (t *WeightTables) Validate() error {
	if len(t.Frameworks) == 0 {
		return fmt.Errorf("no framework weight tables defined")
	}
	for key, table := range t.Frameworks {
		if len(table) == 0 {
			return fmt.Errorf("framework %q: empty weight table", key)
		}
		sum := 0.0
		for dim, w := range table {
			if w < 0 {
				return fmt.Errorf("framework %q: negative weight for dimension %q", key, dim)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > weightSumTolerance {
			return fmt.Errorf("framework %q: dimension weights sum to %.4f, want 1.0 ± %.2f", key, sum, weightSumTolerance)
		}
	}
	return nil
}

// WeightedScore aggregates per-dimension scores (0-100) into one score
// using the framework's table. Dimensions missing from either side are
// skipped; when coverage is partial the accumulated sum is normalized
// against the weight actually used, so an in-progress analysis reports
// a meaningful running score.
func (t *WeightTables) WeightedScore(frameworkKey string, dimensionScores map[string]float64) (float64, error) {
	table, ok := t.Frameworks[frameworkKey]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnscorable, frameworkKey)
	}
	var accumulated, usedWeight float64
	for dim, score := range dimensionScores {
		w, ok := table[dim]
		if !ok {
			continue
		}
		accumulated += score * w
		usedWeight += w
	}
	if usedWeight == 0 {
		return 0, fmt.Errorf("%w: no scored dimension matches framework %q", ErrUnscorable, frameworkKey)
	}
	totalWeight := 0.0
	for _, w := range table {
		totalWeight += w
	}
	if usedWeight < totalWeight-weightSumTolerance {
		return accumulated / usedWeight, nil
	}
	return accumulated, nil
}

// Dimensions lists the dimension keys of one framework's table.
func (t *WeightTables) Dimensions(frameworkKey string) []string {
	table, ok := t.Frameworks[frameworkKey]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(table))
	for dim := range table {
		out = append(out, dim)
	}
	return out
}

// HealthScoreService persists aggregated framework health.
type HealthScoreService interface {
	// WeightedScore computes the aggregate for a framework type without
	// persisting anything.
	WeightedScore(frameworkKey string, dimensionScores map[string]float64) (float64, error)

	// UpdateFrameworkHealth validates and writes the overall score plus
	// per-dimension insights onto the ProjectFramework snapshot.
	UpdateFrameworkHealth(dbc dbctx.Context, pfID uuid.UUID, overall float64, insights []types.DimensionInsight) error

	Tables() *WeightTables
}

type healthScoreService struct {
	log    *logger.Logger
	tables *WeightTables
	pfs    repos.ProjectFrameworkRepo
}

func NewHealthScoreService(baseLog *logger.Logger, tables *WeightTables, pfRepo repos.ProjectFrameworkRepo) HealthScoreService {
	return &healthScoreService{
		log:    baseLog.With("service", "HealthScoreService"),
		tables: tables,
		pfs:    pfRepo,
	}
}

func (s *healthScoreService) Tables() *WeightTables { return s.tables }

func (s *healthScoreService) WeightedScore(frameworkKey string, dimensionScores map[string]float64) (float64, error) {
	return s.tables.WeightedScore(frameworkKey, dimensionScores)
}

func (s *healthScoreService) UpdateFrameworkHealth(dbc dbctx.Context, pfID uuid.UUID, overall float64, insights []types.DimensionInsight) error {
	if overall < 0 || overall > 100 {
		return apierr.BadRequest(fmt.Errorf("overall health score %v out of range [0,100]", overall))
	}
	for _, ins := range insights {
		if ins.Score < 0 || ins.Score > 100 {
			return apierr.BadRequest(fmt.Errorf("dimension %q score %v out of range [0,100]", ins.Dimension, ins.Score))
		}
	}

	var raw datatypes.JSON
	if len(insights) > 0 {
		b, err := json.Marshal(insights)
		if err != nil {
			return apierr.Internal(err)
		}
		raw = datatypes.JSON(b)
	}

	err := s.pfs.UpdateHealth(dbc, pfID, overall, raw)
	if err == repos.ErrNotFound {
		return apierr.NotFound(fmt.Errorf("project framework %s not found", pfID))
	}
	if err != nil {
		return apierr.Internal(err)
	}
	s.log.Info("framework health updated", "project_framework_id", pfID, "score", overall, "dimensions", len(insights))
	return nil
}
