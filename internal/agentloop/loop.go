package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/backoff"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/events"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/toolexec"
)

// providerRetryPolicy bounds how hard the loop retries a transient provider
// failure before surfacing a LoopError. Three attempts, 200ms-4s backoff.
var providerRetryPolicy = backoff.BackoffPolicy{InitialMs: 200, MaxMs: 4000, Factor: 2, Jitter: 0.2}

const maxProviderAttempts = 3

// Stage names where in the loop a LoopError originated.
type Stage string

// StageProvider is the only stage that currently surfaces a LoopError: tool
// execution failures are represented as {ok:false} results, not Go errors.
const StageProvider Stage = "provider"

// LoopError wraps a failure with the step and stage it occurred at.
type LoopError struct {
	Stage Stage
	Step  int
	Cause error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop failed at step %d (%s): %v", e.Step, e.Stage, e.Cause)
}

func (e *LoopError) Unwrap() error { return e.Cause }

// Loop runs the bounded agent step state machine.
type Loop struct {
	now func() time.Time
}

// New builds a Loop. now defaults to time.Now and is overridable for
// deterministic tests (it seeds the act-step synthetic tool_call_id).
func New(now func() time.Time) *Loop {
	if now == nil {
		now = time.Now
	}
	return &Loop{now: now}
}

// Run executes the loop for one user message and returns its outcome.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*StepOutcome, error) {
	cfg := sanitizeConfig(req.Config)
	state := newRunState()

	messages := []Message{
		{Role: RoleSystem, Content: req.SystemContext},
		{Role: RoleUser, Content: req.UserContent},
	}

	tools := BuildToolCatalog(req.Tools)
	model := ""
	if req.ResolveModel != nil {
		model = req.ResolveModel(req.ProviderName)
	}

	for state.Step < cfg.effectiveLimit(state.ToolCallsMade) && state.ConsecutiveNonActSteps < cfg.NoProgressLimit {
		state.Step++
		messages[0].Content = buildSystemMessage(messages[0].Content, state)

		l.emitContextSize(req, state, messages, tools, model)

		turn, err := l.generateTurnWithRetry(ctx, req, TurnRequest{Messages: messages, Tools: tools, Model: model})
		if err != nil {
			return nil, &LoopError{Stage: StageProvider, Step: state.Step, Cause: err}
		}

		if turn.Type == "assistant" {
			return &StepOutcome{
				Type:          "final",
				Content:       turn.Content,
				EndStatus:     events.EndSolved,
				TotalSteps:    state.Step,
				ToolCallsMade: state.ToolCallsMade,
			}, nil
		}

		if len(turn.Calls) == 0 {
			return &StepOutcome{
				Type:          "final",
				Content:       "Empty tool call response.",
				EndStatus:     events.EndStuck,
				TotalSteps:    state.Step,
				ToolCallsMade: state.ToolCallsMade,
			}, nil
		}

		agentStepCall, found := extractAgentStepCall(turn.Calls)
		if !found {
			l.runLegacyToolCalls(ctx, req, &messages, state, turn)
			continue
		}

		var input AgentStepInput
		unmarshalErr := json.Unmarshal(agentStepCall.Input, &input)
		if unmarshalErr != nil || validateAgentStepInput(input) != nil {
			messages = append(messages, Message{Role: RoleAssistantToolCalls, Content: turn.AssistantContent, ToolCalls: []ToolCallRequest{agentStepCall}})
			messages = append(messages, Message{
				Role:       RoleTool,
				ToolCallID: agentStepCall.ID,
				ToolName:   AgentStepToolName,
				Content:    `{"error":"Invalid agent_step input. Check required fields."}`,
			})
			continue
		}

		messages = append(messages, Message{Role: RoleAssistantToolCalls, Content: turn.AssistantContent, ToolCalls: []ToolCallRequest{agentStepCall}})

		outcome, terminal := l.routePhase(ctx, req, &messages, state, agentStepCall, input)
		if terminal {
			return outcome, nil
		}
	}

	return &StepOutcome{
		Type:          "final",
		Content:       "I've exhausted my reasoning steps. Let me know how you'd like to proceed.",
		EndStatus:     events.EndStuck,
		TotalSteps:    state.Step,
		ToolCallsMade: state.ToolCallsMade,
	}, nil
}

// generateTurnWithRetry retries a transient provider failure with backoff
// before giving up. Not all errors are worth retrying, but the provider
// boundary here is opaque to the loop, so every failure gets the same bounded
// number of attempts; a future provider-aware classifier can narrow this.
func (l *Loop) generateTurnWithRetry(ctx context.Context, req RunRequest, turnReq TurnRequest) (TurnResult, error) {
	result, err := backoff.RetryWithBackoff(ctx, providerRetryPolicy, maxProviderAttempts,
		func(attempt int) (TurnResult, error) {
			return req.Provider.GenerateTurn(ctx, turnReq)
		})
	if err != nil {
		if result.LastError != nil {
			return TurnResult{}, result.LastError
		}
		return TurnResult{}, err
	}
	return result.Value, nil
}

func extractAgentStepCall(calls []ToolCallRequest) (ToolCallRequest, bool) {
	for _, c := range calls {
		if c.Name == AgentStepToolName {
			return c, true
		}
	}
	return ToolCallRequest{}, false
}

// runLegacyToolCalls handles a tool_calls turn with no agent_step call: every
// call is a real tool invocation, executed in order.
func (l *Loop) runLegacyToolCalls(ctx context.Context, req RunRequest, messages *[]Message, state *RunState, turn TurnResult) {
	*messages = append(*messages, Message{Role: RoleAssistantToolCalls, Content: turn.AssistantContent, ToolCalls: turn.Calls})
	for _, call := range turn.Calls {
		result, _ := l.executeTool(ctx, req, call.Name, call.Input)
		*messages = append(*messages, Message{
			Role:       RoleTool,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    formatToolResult(result),
		})
		state.ToolCallsMade++
	}
	state.ConsecutiveNonActSteps = 0
}

// routePhase dispatches a validated agent_step input by phase. It returns
// (outcome, true) when the run terminates at this step.
func (l *Loop) routePhase(ctx context.Context, req RunRequest, messages *[]Message, state *RunState, call ToolCallRequest, input AgentStepInput) (*StepOutcome, bool) {
	switch input.Phase {
	case events.PhaseReason, events.PhaseVerify, events.PhaseReflect:
		state.Scratchpad = append(state.Scratchpad, ScratchpadEntry{
			Step: state.Step, Phase: input.Phase, Thinking: input.Thinking, Summary: input.Summary,
		})
		if input.Phase == events.PhaseReflect {
			for _, a := range input.ApproachesTried {
				state.ApproachesTried[a] = struct{}{}
			}
		}
		*messages = append(*messages, Message{Role: RoleTool, ToolCallID: call.ID, ToolName: AgentStepToolName, Content: `{"acknowledged":true}`})
		state.ConsecutiveNonActSteps++
		return nil, false

	case events.PhaseAct:
		formatted := l.runAct(ctx, req, state, input)
		*messages = append(*messages, Message{Role: RoleTool, ToolCallID: call.ID, ToolName: AgentStepToolName, Content: formatted})
		return nil, false

	case events.PhaseFeedback:
		if req.Memory != nil {
			_ = req.Memory.RecordAssistantFeedback(req.ClientID, input.FeedbackMessage)
		}
		l.emitAgentStepAudit(req, state, input, events.PhaseFeedback)
		return &StepOutcome{Type: "feedback", Content: input.FeedbackMessage, TotalSteps: state.Step, ToolCallsMade: state.ToolCallsMade}, true

	case events.PhaseEnd:
		l.emitAgentStepAudit(req, state, input, events.PhaseEnd)
		return &StepOutcome{
			Type:          "final",
			Content:       input.EndMessage,
			EndStatus:     input.EndStatus,
			TotalSteps:    state.Step,
			ToolCallsMade: state.ToolCallsMade,
		}, true
	}
	return nil, false
}

// runAct executes one act step's tool call, records it to session memory,
// appends a scratchpad entry, and returns the formatted result for the
// synthetic tool reply.
func (l *Loop) runAct(ctx context.Context, req RunRequest, state *RunState, input AgentStepInput) string {
	toolCallID := fmt.Sprintf("agent-act-%d-%d", state.Step, l.now().UnixMilli())

	result, execErr := l.executeTool(ctx, req, input.Action.ToolName, input.Action.ToolInput)
	formatted := formatToolResult(result)

	if req.Memory != nil {
		_ = req.Memory.RecordToolCall(req.ClientID, events.ToolCall{
			StepID:     fmt.Sprintf("%d", state.Step),
			ToolCallID: toolCallID,
			ToolName:   input.Action.ToolName,
			Args:       input.Action.ToolInput,
		})
		toolResult := events.ToolResult{
			StepID:     fmt.Sprintf("%d", state.Step),
			ToolCallID: toolCallID,
			ToolName:   input.Action.ToolName,
		}
		if result != nil && result.OK {
			toolResult.Status = events.ToolResultSuccess
			toolResult.Output = result.Output
		} else {
			toolResult.Status = events.ToolResultFailed
			if result != nil {
				toolResult.ErrorMessage = result.Error
			} else if execErr != nil {
				toolResult.ErrorMessage = execErr.Error()
			}
		}
		_ = req.Memory.RecordToolResult(req.ClientID, toolResult)
	}

	state.Scratchpad = append(state.Scratchpad, ScratchpadEntry{
		Step: state.Step, Phase: events.PhaseAct, Summary: input.Summary, ToolResult: formatted,
	})
	state.ToolCallsMade++
	state.ConsecutiveNonActSteps = 0
	return formatted
}

// executeTool dispatches to the context-recall helper when configured and
// named, otherwise to the tool executor.
func (l *Loop) executeTool(ctx context.Context, req RunRequest, name string, input json.RawMessage) (*toolexec.Result, error) {
	if name == ContextRecallToolName && req.ContextRecallAgent != nil {
		return req.ContextRecallAgent(ctx, input)
	}
	return req.Executor.Execute(ctx, name, input, toolexec.CallContext{
		ClientID:  req.ClientID,
		RunID:     req.RunID,
		SessionID: req.SessionID,
	})
}

func (l *Loop) emitAgentStepAudit(req RunRequest, state *RunState, input AgentStepInput, phase events.AgentPhase) {
	if req.Memory == nil {
		return
	}
	step := events.AgentStep{
		Step:            state.Step,
		Phase:           phase,
		Summary:         input.Summary,
		ApproachesTried: sortedApproaches(state.ApproachesTried),
	}
	if phase == events.PhaseEnd {
		step.EndStatus = input.EndStatus
	}
	if input.Action != nil {
		step.ActionToolName = input.Action.ToolName
	}
	_ = req.Memory.RecordAgentStep(req.ClientID, step)
}

func (l *Loop) emitContextSize(req RunRequest, state *RunState, messages []Message, tools []ToolSchemaDef, model string) {
	if req.ContextSizeCallback == nil || req.EstimateTokens == nil {
		return
	}
	req.ContextSizeCallback(ContextSizeEvent{
		Step:                 state.Step,
		Provider:             req.ProviderName,
		Model:                model,
		InputTokens:          req.EstimateTokens(messages, tools),
		StaticSystemTokens:   req.StaticTokens,
		DynamicSystemTokens:  req.DynamicTokens,
		RuntimeDynamicTokens: 0,
	})
}
