package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/platform/openai"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

const (
	toolViewFrameworkZones    = "viewFrameworkZones"
	toolViewNode              = "viewNode"
	toolCreateSuggestion      = "createSuggestion"
	toolUpdateFrameworkHealth = "updateFrameworkHealth"
)

// analysisTools declares the four capabilities exposed to the model.
// viewFrameworkZones is deliberately summary-only (titles, no content)
// so discovery stays cheap; viewNode is the expensive deep dive.
func analysisTools(dimensions []string) []openai.ToolDef {
	return []openai.ToolDef{
		{
			Name: toolViewFrameworkZones,
			Description: "List all zones of the framework with the titles of nodes assigned to each, " +
				"plus nodes not assigned to any zone. Cheap overview; call this first.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name: toolViewNode,
			Description: "Fetch the full detail of one canvas node: content, tags, health data and child nodes. " +
				"Expensive; call selectively for nodes that look problematic, not exhaustively.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"node_id": map[string]any{"type": "string", "description": "UUID of the node"},
				},
				"required": []string{"node_id"},
			},
		},
		{
			Name: toolCreateSuggestion,
			Description: "Record one improvement suggestion. Call once per discrete issue found; " +
				"do not batch several issues into one call.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type": "string",
						"enum": []string{
							types.SuggestionTypeAddNode,
							types.SuggestionTypeAddTag,
							types.SuggestionTypeRefineContent,
							types.SuggestionTypeContentSuggestion,
							types.SuggestionTypeHealthIssue,
						},
					},
					"title":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"reason":      map[string]any{"type": "string"},
					"priority": map[string]any{
						"type": "string",
						"enum": []string{
							types.SuggestionPriorityLow,
							types.SuggestionPriorityMedium,
							types.SuggestionPriorityHigh,
							types.SuggestionPriorityCritical,
						},
					},
					"node_id": map[string]any{
						"type":        "string",
						"description": "Target node UUID; omit for canvas-global suggestions",
					},
					"action_params": map[string]any{
						"type":        "object",
						"description": "Typed payload matching the suggestion type, e.g. {\"tag\": \"mvp\"} for add-tag",
					},
				},
				"required": []string{"type", "title", "reason"},
			},
		},
		{
			Name: toolUpdateFrameworkHealth,
			Description: "Persist the framework health assessment: a 0-100 score per dimension with a short " +
				"summary each. Scored dimensions: " + strings.Join(dimensions, ", ") + ". " +
				"Call once at the end of the analysis.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dimensions": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"dimension": map[string]any{"type": "string"},
								"score":     map[string]any{"type": "number"},
								"summary":   map[string]any{"type": "string"},
							},
							"required": []string{"dimension", "score"},
						},
					},
					"overall": map[string]any{
						"type":        "number",
						"description": "Optional 0-100 overall; computed from the weight table when omitted",
					},
				},
				"required": []string{"dimensions"},
			},
		},
	}
}

// analysisToolExecutor resolves tool calls against one analysis session.
// Tool failures are returned to the model as {"error": reason} results
// so it can adapt (recoverable channel); only transport failures abort
// the stream.
type analysisToolExecutor struct {
	log  *logger.Logger
	chat *types.Chat
	pf   *types.ProjectFramework

	nodes       repos.CanvasNodeRepo
	suggestions SuggestionService
	scores      HealthScoreService
	notify      AnalysisNotifier

	exploreCalls int
	healthCalls  int
}

func (e *analysisToolExecutor) Execute(dbc dbctx.Context, call openai.ToolCall) string {
	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return toolError(fmt.Sprintf("malformed tool arguments: %v", err))
		}
	}

	var (
		result any
		err    error
	)
	switch call.Name {
	case toolViewFrameworkZones:
		result, err = e.viewFrameworkZones(dbc)
		if err == nil {
			e.exploreCalls++
		}
	case toolViewNode:
		result, err = e.viewNode(dbc, args)
		if err == nil {
			e.exploreCalls++
		}
	case toolCreateSuggestion:
		result, err = e.createSuggestion(dbc, args)
	case toolUpdateFrameworkHealth:
		result, err = e.updateFrameworkHealth(dbc, args)
		if err == nil {
			e.healthCalls++
		}
	default:
		err = fmt.Errorf("unknown tool %q", call.Name)
	}
	if err != nil {
		e.log.Warn("analysis tool failed", "tool", call.Name, "error", err)
		return toolError(err.Error())
	}

	raw, merr := json.Marshal(result)
	if merr != nil {
		return toolError(fmt.Sprintf("encode tool result: %v", merr))
	}
	return string(raw)
}

func toolError(reason string) string {
	raw, _ := json.Marshal(map[string]string{"error": reason})
	return string(raw)
}

type zoneSummary struct {
	ZoneKey    string   `json:"zone_key"`
	Name       string   `json:"name"`
	NodeTitles []string `json:"node_titles"`
}

type zonesOverview struct {
	FrameworkName   string        `json:"framework_name"`
	FrameworkKey    string        `json:"framework_key"`
	Zones           []zoneSummary `json:"zones"`
	UnassignedNodes []string      `json:"unassigned_nodes"`
	PendingCount    int           `json:"pending_suggestions"`
}

func (e *analysisToolExecutor) viewFrameworkZones(dbc dbctx.Context) (*zonesOverview, error) {
	var (
		nodes   []*types.CanvasNode
		pending []*types.CanvasSuggestion
	)
	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.Go(func() error {
		var err error
		nodes, err = e.nodes.ListByProject(dbctx.Context{Ctx: gctx, Tx: dbc.Tx}, e.chat.ProjectID)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = e.suggestions.List(dbctx.Context{Ctx: gctx, Tx: dbc.Tx}, repos.SuggestionFilter{
			ProjectID: e.chat.ProjectID,
			Status:    types.SuggestionStatusPending,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byZone := map[string][]string{}
	var unassigned []string
	for _, n := range nodes {
		weights := n.AffinitiesFor(e.pf.ID)
		zone := primaryZone(weights)
		if zone == "" {
			unassigned = append(unassigned, fmt.Sprintf("%s (%s)", n.Title, n.ID))
			continue
		}
		byZone[zone] = append(byZone[zone], fmt.Sprintf("%s (%s)", n.Title, n.ID))
	}

	out := &zonesOverview{
		FrameworkName: e.pf.Name,
		FrameworkKey:  e.pf.FrameworkKey,
		PendingCount:  len(pending),
	}
	for _, z := range e.pf.Zones {
		out.Zones = append(out.Zones, zoneSummary{
			ZoneKey:    z.ZoneKey,
			Name:       z.Name,
			NodeTitles: byZone[z.ZoneKey],
		})
	}
	out.UnassignedNodes = unassigned
	return out, nil
}

// primaryZone picks the zone with highest weight; ties break on zone
// key so the overview is stable between calls.
func primaryZone(weights map[string]float64) string {
	best := ""
	bestWeight := 0.0
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if weights[k] > bestWeight {
			best = k
			bestWeight = weights[k]
		}
	}
	return best
}

type nodeDetail struct {
	ID          uuid.UUID          `json:"id"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	NodeType    string             `json:"node_type"`
	Tags        []string           `json:"tags"`
	TaskStatus  string             `json:"task_status,omitempty"`
	HealthScore *float64           `json:"health_score,omitempty"`
	HealthLevel string             `json:"health_level,omitempty"`
	HealthData  json.RawMessage    `json:"health_data,omitempty"`
	Affinities  map[string]float64 `json:"zone_affinities"`
	Children    []string           `json:"children,omitempty"`
}

func (e *analysisToolExecutor) viewNode(dbc dbctx.Context, args map[string]any) (*nodeDetail, error) {
	nodeID, err := argUUID(args, "node_id")
	if err != nil {
		return nil, err
	}
	node, err := e.nodes.GetByID(dbc, nodeID)
	if err == repos.ErrNotFound {
		return nil, fmt.Errorf("node %s not found", nodeID)
	}
	if err != nil {
		return nil, err
	}
	if node.ProjectID != e.chat.ProjectID {
		return nil, fmt.Errorf("node %s does not belong to this project", nodeID)
	}

	children, err := e.nodes.ListByParent(dbc, node.ID)
	if err != nil {
		return nil, err
	}
	childTitles := make([]string, 0, len(children))
	for _, c := range children {
		childTitles = append(childTitles, fmt.Sprintf("%s (%s)", c.Title, c.ID))
	}

	return &nodeDetail{
		ID:          node.ID,
		Title:       node.Title,
		Content:     node.Content,
		NodeType:    node.NodeType,
		Tags:        node.TagList(),
		TaskStatus:  node.TaskStatus,
		HealthScore: node.HealthScore,
		HealthLevel: node.HealthLevel,
		HealthData:  json.RawMessage(node.HealthData),
		Affinities:  node.AffinitiesFor(e.pf.ID),
		Children:    childTitles,
	}, nil
}

func (e *analysisToolExecutor) createSuggestion(dbc dbctx.Context, args map[string]any) (map[string]any, error) {
	suggestionType, _ := args["type"].(string)
	title, _ := args["title"].(string)
	description, _ := args["description"].(string)
	reason, _ := args["reason"].(string)
	priority, _ := args["priority"].(string)

	var nodeID *uuid.UUID
	if raw, ok := args["node_id"].(string); ok && strings.TrimSpace(raw) != "" {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid node_id %q", raw)
		}
		nodeID = &id
	}

	var actionParams datatypes.JSON
	if ap, ok := args["action_params"]; ok && ap != nil {
		raw, err := json.Marshal(ap)
		if err != nil {
			return nil, fmt.Errorf("encode action params: %w", err)
		}
		actionParams = datatypes.JSON(raw)
	}

	created, err := e.suggestions.Create(dbc, CreateSuggestionInput{
		ProjectID:          e.chat.ProjectID,
		ProjectFrameworkID: e.pf.ID,
		NodeID:             nodeID,
		SuggestionType:     suggestionType,
		Title:              title,
		Description:        description,
		Reason:             reason,
		Priority:           priority,
		ActionParams:       actionParams,
		Source:             types.SuggestionSourceAIHealthCheck,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"suggestion_id": created.ID,
		"status":        created.Status,
	}, nil
}

func (e *analysisToolExecutor) updateFrameworkHealth(dbc dbctx.Context, args map[string]any) (map[string]any, error) {
	rawDims, ok := args["dimensions"].([]any)
	if !ok || len(rawDims) == 0 {
		return nil, fmt.Errorf("dimensions array is required")
	}

	insights := make([]types.DimensionInsight, 0, len(rawDims))
	scores := make(map[string]float64, len(rawDims))
	for _, rd := range rawDims {
		m, ok := rd.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each dimension entry must be an object")
		}
		dim, _ := m["dimension"].(string)
		score, ok := m["score"].(float64)
		if dim == "" || !ok {
			return nil, fmt.Errorf("dimension entries need a dimension name and a numeric score")
		}
		if score < 0 || score > 100 {
			return nil, fmt.Errorf("dimension %q score %v out of range [0,100]", dim, score)
		}
		summary, _ := m["summary"].(string)
		insights = append(insights, types.DimensionInsight{Dimension: dim, Score: score, Summary: summary})
		scores[dim] = score
	}

	overall, hasOverall := args["overall"].(float64)
	if !hasOverall {
		computed, err := e.scores.WeightedScore(e.pf.FrameworkKey, scores)
		if err != nil {
			return nil, err
		}
		overall = computed
	}

	if err := e.scores.UpdateFrameworkHealth(dbc, e.pf.ID, overall, insights); err != nil {
		return nil, err
	}

	// one streamed event per dimension, then the persisted summary
	if e.notify != nil {
		for _, ins := range insights {
			e.notify.DimensionScore(e.chat.ID, e.pf.ID, ins.Dimension, ins.Score, ins.Summary)
		}
		e.notify.FrameworkHealth(e.chat.ID, e.pf.ID, overall, insights)
	}

	return map[string]any{
		"overall":    overall,
		"dimensions": len(insights),
	}, nil
}

func argUUID(args map[string]any, key string) (uuid.UUID, error) {
	raw, ok := args[key].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return uuid.Nil, fmt.Errorf("%s is required", key)
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", key, raw)
	}
	return id, nil
}
