package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/crossmindhq/crossmind-backend/internal/realtime"
	"github.com/crossmindhq/crossmind-backend/internal/types"
)

// SSEEmitter abstracts where realtime messages go: the in-process hub
// directly, or the Redis bus when running multiple instances.
type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.Hub.Broadcast(msg)
}

type BusEmitter struct {
	Publish func(ctx context.Context, msg realtime.SSEMessage) error
}

func (e *BusEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	_ = e.Publish(ctx, msg)
}

// AnalysisNotifier emits the typed incremental events of a health
// analysis. Events are appended to the chat's channel in production
// order; consumers apply them in arrival order and ignore event types
// they do not recognize.
type AnalysisNotifier interface {
	MessageAppend(chatID uuid.UUID, role, content string)
	DimensionScore(chatID uuid.UUID, pfID uuid.UUID, dimension string, score float64, summary string)
	FrameworkHealth(chatID uuid.UUID, pfID uuid.UUID, overall float64, insights []types.DimensionInsight)
	SuggestionCreated(sg *types.CanvasSuggestion)
	NodeMutated(projectID, nodeID uuid.UUID, change string)
	AnalysisComplete(chatID uuid.UUID, pfID uuid.UUID)
	AnalysisError(chatID uuid.UUID, message string)
}

type analysisNotifier struct {
	emit SSEEmitter
}

func NewAnalysisNotifier(emit SSEEmitter) AnalysisNotifier {
	return &analysisNotifier{emit: emit}
}

func (n *analysisNotifier) send(channel string, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: channel,
		Event:   event,
		Data:    data,
	})
}

func (n *analysisNotifier) MessageAppend(chatID uuid.UUID, role, content string) {
	if content == "" {
		return
	}
	n.send(realtime.ChatChannel(chatID), realtime.SSEEventMessageAppend, map[string]any{
		"chat_id": chatID,
		"role":    role,
		"content": content,
	})
}

func (n *analysisNotifier) DimensionScore(chatID uuid.UUID, pfID uuid.UUID, dimension string, score float64, summary string) {
	n.send(realtime.ChatChannel(chatID), realtime.SSEEventDimensionScore, map[string]any{
		"chat_id":              chatID,
		"project_framework_id": pfID,
		"dimension":            dimension,
		"score":                score,
		"summary":              summary,
	})
}

func (n *analysisNotifier) FrameworkHealth(chatID uuid.UUID, pfID uuid.UUID, overall float64, insights []types.DimensionInsight) {
	n.send(realtime.ChatChannel(chatID), realtime.SSEEventFrameworkHealth, map[string]any{
		"chat_id":              chatID,
		"project_framework_id": pfID,
		"overall":              overall,
		"insights":             insights,
	})
}

func (n *analysisNotifier) SuggestionCreated(sg *types.CanvasSuggestion) {
	if sg == nil {
		return
	}
	n.send(realtime.ProjectChannel(sg.ProjectID), realtime.SSEEventSuggestionCreated, map[string]any{
		"suggestion": sg,
	})
}

func (n *analysisNotifier) NodeMutated(projectID, nodeID uuid.UUID, change string) {
	n.send(realtime.ProjectChannel(projectID), realtime.SSEEventNodeUpdated, map[string]any{
		"project_id": projectID,
		"node_id":    nodeID,
		"change":     change,
	})
}

func (n *analysisNotifier) AnalysisComplete(chatID uuid.UUID, pfID uuid.UUID) {
	n.send(realtime.ChatChannel(chatID), realtime.SSEEventAnalysisComplete, map[string]any{
		"chat_id":              chatID,
		"project_framework_id": pfID,
	})
}

func (n *analysisNotifier) AnalysisError(chatID uuid.UUID, message string) {
	n.send(realtime.ChatChannel(chatID), realtime.SSEEventAnalysisError, map[string]any{
		"chat_id": chatID,
		"error":   message,
	})
}
