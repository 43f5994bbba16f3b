package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/domain"
)

// Tool-calling rounds per user turn before a forced final answer.
const maxRounds = 5

const systemPrompt = `You are a supply chain intelligence agent with access to an
order history dataset and analytical tools. You can query data, forecast
demand, score suppliers, compute inventory policies, predict delivery
risk, rank categories and compare regions.

Guidelines:
- Ground every answer in tool results; provide specific numbers.
- Format responses with short sections and bullet points.
- If a question falls outside the dataset, say so clearly.`

// EventFunc receives progress updates during a turn, for streaming
// transports. stage is one of planning, tool_call, observing, answer.
type EventFunc func(stage, detail string)

// Agent runs the bounded reason-act-observe loop. With no planner it
// answers through the rule-based fallback only.
type Agent struct {
	registry *Registry
	planner  Planner
	fallback *Fallback
	log      zerolog.Logger
}

// New creates an agent. planner may be nil.
func New(registry *Registry, planner Planner, log zerolog.Logger) *Agent {
	return &Agent{
		registry: registry,
		planner:  planner,
		fallback: NewFallback(registry, log),
		log:      log.With().Str("component", "agent").Logger(),
	}
}

// Chat processes one user turn to completion and returns the answer.
func (a *Agent) Chat(ctx context.Context, conv *ConversationState, userMessage string) (string, error) {
	return a.ChatWithEvents(ctx, conv, userMessage, nil)
}

// ChatWithEvents is Chat with progress callbacks. The session lock is
// held for the whole turn, so one session processes one turn at a time.
func (a *Agent) ChatWithEvents(ctx context.Context, conv *ConversationState, userMessage string, events EventFunc) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	answer, invocations := a.runTurn(ctx, conv, userMessage, events)

	now := time.Now().UTC()
	conv.append(Turn{Role: RoleUser, Content: userMessage, At: now})
	conv.append(Turn{Role: RoleAssistant, Content: answer, Invocations: invocations, At: now})

	emit(events, "answer", answer)
	return answer, nil
}

func (a *Agent) runTurn(ctx context.Context, conv *ConversationState, userMessage string, events EventFunc) (string, []ToolInvocation) {
	if a.planner == nil {
		emit(events, "planning", "rule-based dispatch")
		return a.fallback.Respond(ctx, userMessage)
	}

	messages := []Message{{Role: "system", Content: systemPrompt}}
	for _, t := range conv.snapshot() {
		messages = append(messages, Message{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, Message{Role: "user", Content: userMessage})

	var invocations []ToolInvocation

	for round := 0; round < maxRounds; round++ {
		emit(events, "planning", "")

		resp, err := a.planner.Plan(ctx, messages, a.registry.Specs())
		if err != nil {
			// Planner trouble is never surfaced; degrade to the
			// rule-based path.
			var unavailable *domain.PlannerUnavailableError
			if !errors.As(err, &unavailable) {
				a.log.Error().Err(err).Msg("Planner failed with unexpected error")
			} else {
				a.log.Warn().Err(err).Msg("Planner unavailable, falling back")
			}
			answer, fbInvs := a.fallback.Respond(ctx, userMessage)
			return answer, append(invocations, fbInvs...)
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content == "" {
				break
			}
			return resp.Content, invocations
		}

		messages = append(messages, Message{Role: "assistant", ToolCalls: resp.ToolCalls})

		for _, tc := range resp.ToolCalls {
			emit(events, "tool_call", tc.Name)

			observation := a.observe(ctx, tc)
			invocations = append(invocations, ToolInvocation{
				Tool:        tc.Name,
				Args:        tc.Args,
				Observation: observation.content,
				Failed:      observation.failed,
			})

			emit(events, "observing", tc.Name)
			messages = append(messages, Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    observation.content,
			})
		}
	}

	// Round ceiling or empty planner content: answer via fallback.
	a.log.Warn().Msg("Agent loop exhausted without a final answer")
	answer, fbInvs := a.fallback.Respond(ctx, userMessage)
	return answer, append(invocations, fbInvs...)
}

type observation struct {
	content string
	failed  bool
}

// observe executes one tool call. Argument validation failures become
// observations returned to the planner instead of aborting the turn.
func (a *Agent) observe(ctx context.Context, tc ToolCall) observation {
	result, err := a.registry.Invoke(ctx, tc.Name, tc.Args)
	if err != nil {
		var argErr *domain.ToolArgumentError
		if errors.As(err, &argErr) {
			a.log.Debug().Err(err).Str("tool", tc.Name).Msg("Tool argument rejected")
		} else {
			a.log.Warn().Err(err).Str("tool", tc.Name).Msg("Tool execution failed")
		}
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return observation{content: string(payload), failed: true}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return observation{content: `{"error":"unencodable tool result"}`, failed: true}
	}
	return observation{content: string(payload)}
}

func emit(events EventFunc, stage, detail string) {
	if events != nil {
		events(stage, detail)
	}
}
