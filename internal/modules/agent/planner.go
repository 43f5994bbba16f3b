package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/config"
	"github.com/chainsight/chainsight/internal/domain"
)

// Message is one entry of a planner exchange.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a planner-requested tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// PlannerResponse is either final text or one or more tool calls.
type PlannerResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Planner decides the next step of an agent turn. Implementations must
// map every transport or protocol failure to PlannerUnavailableError so
// the loop can fall back.
type Planner interface {
	Plan(ctx context.Context, messages []Message, tools []ToolSpec) (*PlannerResponse, error)
}

// OpenAIPlanner calls an OpenAI-compatible chat-completions endpoint.
type OpenAIPlanner struct {
	cfg        config.PlannerConfig
	httpClient *http.Client
	log        zerolog.Logger
}

// NewOpenAIPlanner creates a planner client with the configured timeout.
func NewOpenAIPlanner(cfg config.PlannerConfig, log zerolog.Logger) *OpenAIPlanner {
	return &OpenAIPlanner{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With().Str("component", "agent-planner").Logger(),
	}
}

// Wire types for the chat-completions payload.
type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

// Plan sends the conversation and tool schemas to the model and decodes
// its next step.
func (p *OpenAIPlanner) Plan(ctx context.Context, messages []Message, tools []ToolSpec) (*PlannerResponse, error) {
	body, err := json.Marshal(p.buildRequest(messages, tools))
	if err != nil {
		return nil, &domain.PlannerUnavailableError{Cause: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.PlannerUnavailableError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.PlannerUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		p.log.Warn().Int("status", resp.StatusCode).Msg("Planner returned non-200")
		return nil, &domain.PlannerUnavailableError{
			Cause: fmt.Errorf("planner status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var decoded wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &domain.PlannerUnavailableError{Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(decoded.Choices) == 0 {
		return nil, &domain.PlannerUnavailableError{Cause: fmt.Errorf("planner returned no choices")}
	}

	msg := decoded.Choices[0].Message
	out := &PlannerResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		// Malformed argument JSON degrades to an empty arg set; schema
		// validation in the registry reports what is missing.
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out, nil
}

func (p *OpenAIPlanner) buildRequest(messages []Message, tools []ToolSpec) wireRequest {
	req := wireRequest{
		Model:       p.cfg.Model,
		ToolChoice:  "auto",
		Temperature: 0.3,
		MaxTokens:   4096,
	}

	for _, m := range messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		req.Messages = append(req.Messages, wm)
	}

	for _, spec := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = string(spec.Kind)
		wt.Function.Description = spec.Description
		wt.Function.Parameters = schemaFor(spec)
		req.Tools = append(req.Tools, wt)
	}
	return req
}

// schemaFor renders a tool's ArgSpecs as a JSON schema object.
func schemaFor(spec ToolSpec) map[string]any {
	properties := map[string]any{}
	var required []string

	for _, a := range spec.Args {
		prop := map[string]any{"type": a.Type}
		if a.Description != "" {
			prop["description"] = a.Description
		}
		if len(a.Enum) > 0 {
			prop["enum"] = a.Enum
		}
		if a.Min != nil {
			prop["minimum"] = *a.Min
		}
		if a.Max != nil {
			prop["maximum"] = *a.Max
		}
		properties[a.Name] = prop
		if a.Required {
			required = append(required, a.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
