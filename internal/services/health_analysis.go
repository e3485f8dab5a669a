package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/crossmindhq/crossmind-backend/internal/platform/apierr"
	"github.com/crossmindhq/crossmind-backend/internal/platform/dbctx"
	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
	"github.com/crossmindhq/crossmind-backend/internal/platform/openai"
	"github.com/crossmindhq/crossmind-backend/internal/repos"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

type AnalysisState string

const (
	AnalysisStateIdle      AnalysisState = "idle"
	AnalysisStateStarting  AnalysisState = "starting"
	AnalysisStateAnalyzing AnalysisState = "analyzing"
	AnalysisStateCompleted AnalysisState = "completed"
	AnalysisStateError     AnalysisState = "error"
)

const (
	// maxAnalysisTurns bounds the tool-call loop so a model that never
	// stops requesting tools cannot run an unbounded session.
	maxAnalysisTurns = 24

	// maxCompletionNudges is how many times a premature stop gets pushed
	// back onto the model before the session is declared failed.
	maxCompletionNudges = 2
)

type StartAnalysisInput struct {
	ProjectID uuid.UUID
	// ProjectFrameworkID selects which adopted framework to analyze.
	// When nil the project's active framework is used, adopting the
	// project's default framework first if none is adopted yet.
	ProjectFrameworkID *uuid.UUID
	UserID             uuid.UUID
}

// HealthAnalysisService drives AI health-analysis sessions. Start
// provisions the chat (archiving any prior active session for the same
// framework); Run executes the streaming tool-call loop against the
// model until the analysis completes or fails.
type HealthAnalysisService interface {
	Start(ctx context.Context, input StartAnalysisInput) (*types.Chat, error)
	Run(ctx context.Context, chatID uuid.UUID) error
	State(chatID uuid.UUID) AnalysisState
	Cancel(chatID uuid.UUID) bool
}

type healthAnalysisService struct {
	log *logger.Logger
	db  *gorm.DB

	llm         openai.Client
	chats       repos.ChatRepo
	projects    repos.ProjectRepo
	pfs         repos.ProjectFrameworkRepo
	nodes       repos.CanvasNodeRepo
	frameworks  FrameworkService
	suggestions SuggestionService
	scores      HealthScoreService
	notify      AnalysisNotifier

	mu       sync.Mutex
	sessions map[uuid.UUID]*analysisSession
}

type analysisSession struct {
	state  AnalysisState
	cancel context.CancelFunc
}

func NewHealthAnalysisService(
	db *gorm.DB,
	baseLog *logger.Logger,
	llm openai.Client,
	chatRepo repos.ChatRepo,
	projectRepo repos.ProjectRepo,
	pfRepo repos.ProjectFrameworkRepo,
	nodeRepo repos.CanvasNodeRepo,
	frameworkSvc FrameworkService,
	suggestionSvc SuggestionService,
	scoreSvc HealthScoreService,
	notify AnalysisNotifier,
) HealthAnalysisService {
	return &healthAnalysisService{
		log:         baseLog.With("service", "HealthAnalysisService"),
		db:          db,
		llm:         llm,
		chats:       chatRepo,
		projects:    projectRepo,
		pfs:         pfRepo,
		nodes:       nodeRepo,
		frameworks:  frameworkSvc,
		suggestions: suggestionSvc,
		scores:      scoreSvc,
		notify:      notify,
		sessions:    map[uuid.UUID]*analysisSession{},
	}
}

func (s *healthAnalysisService) Start(ctx context.Context, input StartAnalysisInput) (*types.Chat, error) {
	if input.ProjectID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("project id and user id are required"))
	}
	dbc := dbctx.New(ctx)

	pf, err := s.resolveFramework(dbc, input)
	if err != nil {
		return nil, err
	}

	// Archive-then-create runs in one transaction so two concurrent
	// starts cannot both end up with an active chat for the same
	// framework.
	var chat *types.Chat
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.New(ctx).WithTx(tx)
		archived, aerr := s.chats.ArchiveActiveHealthChats(txc, input.ProjectID, pf.ID)
		if aerr != nil {
			return aerr
		}
		if archived > 0 {
			s.log.Info("archived prior health-analysis chats",
				"project_id", input.ProjectID, "project_framework_id", pf.ID, "count", archived)
		}
		chat, aerr = s.chats.Create(txc, &types.Chat{
			ProjectID:          input.ProjectID,
			ProjectFrameworkID: &pf.ID,
			UserID:             input.UserID,
			ChatType:           types.ChatTypeHealthAnalysis,
			Status:             types.ChatStatusActive,
			Title:              "Health analysis: " + pf.Name,
		})
		return aerr
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("start health analysis: %w", err))
	}

	s.setState(chat.ID, AnalysisStateStarting, nil)
	return chat, nil
}

// resolveFramework finds the ProjectFramework to analyze, adopting the
// project's default framework when nothing is adopted yet.
func (s *healthAnalysisService) resolveFramework(dbc dbctx.Context, input StartAnalysisInput) (*types.ProjectFramework, error) {
	if input.ProjectFrameworkID != nil {
		pf, err := s.pfs.GetByID(dbc, *input.ProjectFrameworkID)
		if err == repos.ErrNotFound {
			return nil, apierr.NotFound(fmt.Errorf("project framework %s not found", *input.ProjectFrameworkID))
		}
		if err != nil {
			return nil, apierr.Internal(err)
		}
		if pf.ProjectID != input.ProjectID {
			return nil, apierr.BadRequest(fmt.Errorf("framework %s does not belong to project %s", pf.ID, input.ProjectID))
		}
		return pf, nil
	}

	pf, err := s.pfs.GetActiveByProject(dbc, input.ProjectID)
	if err == nil {
		return pf, nil
	}
	if err != repos.ErrNotFound {
		return nil, apierr.Internal(err)
	}

	project, err := s.projects.GetByID(dbc, input.ProjectID)
	if err == repos.ErrNotFound {
		return nil, apierr.NotFound(fmt.Errorf("project %s not found", input.ProjectID))
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if project.DefaultFrameworkID == nil {
		return nil, apierr.BadRequest(fmt.Errorf("project has no adopted framework and no default to adopt"))
	}
	adopted, err := s.frameworks.Adopt(dbc, input.ProjectID, *project.DefaultFrameworkID)
	if err != nil {
		return nil, err
	}
	s.log.Info("auto-adopted default framework for analysis",
		"project_id", input.ProjectID, "framework_id", *project.DefaultFrameworkID)
	return adopted, nil
}

func (s *healthAnalysisService) Run(ctx context.Context, chatID uuid.UUID) error {
	dbc := dbctx.New(ctx)
	chat, err := s.chats.GetByID(dbc, chatID)
	if err == repos.ErrNotFound {
		return apierr.NotFound(fmt.Errorf("chat %s not found", chatID))
	}
	if err != nil {
		return apierr.Internal(err)
	}
	if chat.ChatType != types.ChatTypeHealthAnalysis {
		return apierr.BadRequest(fmt.Errorf("chat %s is not a health-analysis chat", chatID))
	}
	if chat.Status != types.ChatStatusActive {
		return apierr.Conflict(fmt.Errorf("chat %s is no longer active", chatID))
	}
	if chat.ProjectFrameworkID == nil {
		return apierr.Internal(fmt.Errorf("health-analysis chat %s has no framework", chatID))
	}
	pf, err := s.pfs.GetByID(dbc, *chat.ProjectFrameworkID)
	if err != nil {
		return apierr.Internal(fmt.Errorf("load framework for analysis: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setState(chatID, AnalysisStateAnalyzing, cancel)

	err = s.runLoop(runCtx, chat, pf)
	if err != nil {
		s.setState(chatID, AnalysisStateError, nil)
		msg := "analysis failed"
		if errors.Is(err, context.Canceled) {
			msg = "analysis canceled"
		}
		s.notify.AnalysisError(chatID, msg)
		s.log.Error("health analysis ended in error", "chat_id", chatID, "error", err)
		return err
	}

	s.setState(chatID, AnalysisStateCompleted, nil)
	s.notify.AnalysisComplete(chatID, pf.ID)
	return nil
}

func (s *healthAnalysisService) runLoop(ctx context.Context, chat *types.Chat, pf *types.ProjectFramework) error {
	dbc := dbctx.New(ctx)
	exec := &analysisToolExecutor{
		log:         s.log,
		chat:        chat,
		pf:          pf,
		nodes:       s.nodes,
		suggestions: s.suggestions,
		scores:      s.scores,
		notify:      s.notify,
	}

	system := buildAnalysisSystemPrompt(pf, s.scores.Tables())
	tools := analysisTools(scoredDimensions(pf.FrameworkKey, s.scores.Tables()))

	messages, err := s.loadHistory(dbc, chat.ID)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}
	if len(messages) == 0 {
		kickoff := openai.ChatMessage{Role: types.ChatRoleUser, Content: analysisKickoffPrompt}
		if err := s.persistMessage(dbc, chat.ID, kickoff); err != nil {
			return err
		}
		messages = append(messages, kickoff)
	}

	nudges := 0
	for turn := 0; turn < maxAnalysisTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := s.llm.StreamChatWithTools(ctx, system, messages, tools, func(delta string) {
			s.notify.MessageAppend(chat.ID, types.ChatRoleAssistant, delta)
		})
		if err != nil {
			return fmt.Errorf("model turn %d: %w", turn, err)
		}

		assistant := openai.ChatMessage{
			Role:      types.ChatRoleAssistant,
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		}
		if err := s.persistMessage(dbc, chat.ID, assistant); err != nil {
			return err
		}
		messages = append(messages, assistant)

		if len(result.ToolCalls) > 0 {
			for _, call := range result.ToolCalls {
				if err := ctx.Err(); err != nil {
					return err
				}
				out := exec.Execute(dbc, call)
				toolMsg := openai.ChatMessage{
					Role:       types.ChatRoleTool,
					Content:    out,
					ToolCallID: call.ID,
				}
				if err := s.persistMessage(dbc, chat.ID, toolMsg); err != nil {
					return err
				}
				messages = append(messages, toolMsg)
			}
			continue
		}

		// Model stopped. The session only counts as an analysis when it
		// looked at the canvas and wrote a health assessment.
		if exec.exploreCalls >= 1 && exec.healthCalls >= 1 {
			return nil
		}
		if nudges >= maxCompletionNudges {
			return fmt.Errorf("model stopped after %d turns without completing the analysis (explored=%d, health updates=%d)",
				turn+1, exec.exploreCalls, exec.healthCalls)
		}
		nudges++
		nudge := openai.ChatMessage{
			Role:    types.ChatRoleUser,
			Content: nudgePrompt(exec.exploreCalls, exec.healthCalls),
		}
		if err := s.persistMessage(dbc, chat.ID, nudge); err != nil {
			return err
		}
		messages = append(messages, nudge)
	}
	return fmt.Errorf("analysis exceeded %d turns without completing", maxAnalysisTurns)
}

func (s *healthAnalysisService) State(chatID uuid.UUID) AnalysisState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[chatID]; ok {
		return sess.state
	}
	return AnalysisStateIdle
}

// Cancel stops a running session. Work already persisted (suggestions,
// health scores, chat messages) is deliberately kept.
func (s *healthAnalysisService) Cancel(chatID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok || sess.cancel == nil {
		return false
	}
	sess.cancel()
	sess.cancel = nil
	return true
}

func (s *healthAnalysisService) setState(chatID uuid.UUID, state AnalysisState, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &analysisSession{}
		s.sessions[chatID] = sess
	}
	sess.state = state
	if cancel != nil {
		sess.cancel = cancel
	}
	if state == AnalysisStateCompleted || state == AnalysisStateError {
		sess.cancel = nil
	}
}

// messageMetadata carries the tool-call wiring needed to replay a chat
// back into model form.
type messageMetadata struct {
	ToolCalls  []openai.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

func (s *healthAnalysisService) persistMessage(dbc dbctx.Context, chatID uuid.UUID, msg openai.ChatMessage) error {
	var meta datatypes.JSON
	if len(msg.ToolCalls) > 0 || msg.ToolCallID != "" {
		raw, err := json.Marshal(messageMetadata{ToolCalls: msg.ToolCalls, ToolCallID: msg.ToolCallID})
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		meta = datatypes.JSON(raw)
	}
	_, err := s.chats.AppendMessage(dbc, &types.ChatMessage{
		ChatID:   chatID,
		Role:     msg.Role,
		Content:  msg.Content,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("persist %s message: %w", msg.Role, err)
	}
	return nil
}

func (s *healthAnalysisService) loadHistory(dbc dbctx.Context, chatID uuid.UUID) ([]openai.ChatMessage, error) {
	stored, err := s.chats.ListMessages(dbc, chatID, 500)
	if err != nil {
		return nil, err
	}
	out := make([]openai.ChatMessage, 0, len(stored))
	for _, m := range stored {
		msg := openai.ChatMessage{Role: m.Role, Content: m.Content}
		if len(m.Metadata) > 0 {
			var meta messageMetadata
			if err := json.Unmarshal(m.Metadata, &meta); err == nil {
				msg.ToolCalls = meta.ToolCalls
				msg.ToolCallID = meta.ToolCallID
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func scoredDimensions(frameworkKey string, tables *WeightTables) []string {
	if tables == nil {
		return nil
	}
	table, ok := tables.Frameworks[frameworkKey]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(table))
	for dim := range table {
		out = append(out, dim)
	}
	// stable prompt text across runs
	sort.Strings(out)
	return out
}

func nudgePrompt(explored, healthUpdates int) string {
	var missing []string
	if explored < 1 {
		missing = append(missing, "inspect the canvas with viewFrameworkZones (and viewNode where needed)")
	}
	if healthUpdates < 1 {
		missing = append(missing, "record the assessment with updateFrameworkHealth")
	}
	return "The analysis is not finished yet. You still need to " + strings.Join(missing, ", then ") + ". Continue now."
}
