package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crossmindhq/crossmind-backend/internal/platform/logger"
)

// ToolDef declares one function-calling tool exposed to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one function invocation requested by the model. Arguments
// is the raw JSON argument string as produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ChatMessage is one turn of the conversation sent to the model.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ChatResult is the model's reply for one turn: assistant text, any
// requested tool calls, and the finish reason reported by the API.
type ChatResult struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// Client is the LLM provider client used by the analysis orchestrator.
type Client interface {
	// ChatWithTools runs one non-streaming completion turn.
	ChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []ToolDef) (ChatResult, error)

	// StreamChatWithTools runs one completion turn, invoking onDelta for
	// each assistant text fragment as it arrives. Tool-call fragments are
	// accumulated and returned whole in the result.
	StreamChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []ToolDef, onDelta func(delta string)) (ChatResult, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int

	temperature        *float64
	disableTemperature bool
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o"
	}

	timeoutSec := 180
	if v := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := strings.TrimSpace(os.Getenv("OPENAI_MAX_RETRIES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	disableTemperature := false
	var tempPtr *float64
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE"))); v != "" {
		switch v {
		case "off", "none", "nil", "false":
			disableTemperature = true
		default:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				tempPtr = &f
			}
		}
	} else {
		t := 0.2
		tempPtr = &t
	}

	return &client{
		log:                log.With("service", "OpenAIClient"),
		baseURL:            baseURL,
		apiKey:             apiKey,
		model:              model,
		httpClient:         &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:         maxRetries,
		temperature:        tempPtr,
		disableTemperature: disableTemperature,
	}, nil
}

type chatCompletionsRequest struct {
	Model       string         `json:"model"`
	Messages    []wireMessage  `json:"messages"`
	Tools       []wireTool     `json:"tools,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	StreamOpts  map[string]any `json:"stream_options,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *client) buildRequest(system string, messages []ChatMessage, tools []ToolDef, stream bool) chatCompletionsRequest {
	wireMsgs := make([]wireMessage, 0, len(messages)+1)
	if strings.TrimSpace(system) != "" {
		wireMsgs = append(wireMsgs, wireMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wireMsgs = append(wireMsgs, wm)
	}

	wireTools := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wireTools = append(wireTools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	req := chatCompletionsRequest{
		Model:    c.model,
		Messages: wireMsgs,
		Tools:    wireTools,
		Stream:   stream,
	}
	if !c.disableTemperature && c.temperature != nil {
		req.Temperature = c.temperature
	}
	return req
}

func (c *client) ChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []ToolDef) (ChatResult, error) {
	req := c.buildRequest(system, messages, tools, false)

	var resp chatCompletionsResponse
	if err := c.do(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return ChatResult{}, err
	}
	if len(resp.Choices) == 0 {
		return ChatResult{}, fmt.Errorf("openai: empty choices")
	}
	choice := resp.Choices[0]
	out := ChatResult{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, wtc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        wtc.ID,
			Name:      wtc.Function.Name,
			Arguments: wtc.Function.Arguments,
		})
	}
	return out, nil
}

func (c *client) StreamChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []ToolDef, onDelta func(delta string)) (ChatResult, error) {
	req := c.buildRequest(system, messages, tools, true)

	httpResp, err := c.doRaw(ctx, "/v1/chat/completions", req)
	if err != nil {
		return ChatResult{}, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	var (
		content      strings.Builder
		finishReason string
		pending      = map[int]*ToolCall{}
	)

	err = streamSSE(httpResp.Body, func(_ string, data string) error {
		if data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// tolerate non-JSON keepalive frames
			return nil
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		for _, tcd := range choice.Delta.ToolCalls {
			tc, ok := pending[tcd.Index]
			if !ok {
				tc = &ToolCall{}
				pending[tcd.Index] = tc
			}
			if tcd.ID != "" {
				tc.ID = tcd.ID
			}
			if tcd.Function.Name != "" {
				tc.Name = tcd.Function.Name
			}
			tc.Arguments += tcd.Function.Arguments
		}
		return nil
	})
	if err != nil {
		return ChatResult{}, err
	}

	out := ChatResult{Content: content.String(), FinishReason: finishReason}
	indexes := make([]int, 0, len(pending))
	for i := range pending {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		out.ToolCalls = append(out.ToolCalls, *pending[i])
	}
	return out, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	resp, err := c.doRaw(ctx, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai read body: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai decode response: %w", err)
	}
	return nil
}

// doRaw posts the request with retry and exponential backoff on 429 and
// 5xx. The caller owns the response body.
func (c *client) doRaw(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("openai request failed", "attempt", attempt, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
			c.log.Warn("openai retryable status", "attempt", attempt, "status", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return resp, nil
	}
	return nil, fmt.Errorf("openai request exhausted retries: %w", lastErr)
}
