// Package agentloop implements the bounded reason/act/verify/reflect/
// feedback/end agent step loop described by §4.F.
package agentloop

import (
	"context"
	"encoding/json"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/events"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/toolexec"
)

// Role names the participant a Message is attributed to.
type Role string

const (
	RoleSystem             Role = "system"
	RoleUser               Role = "user"
	RoleAssistant          Role = "assistant"
	RoleAssistantToolCalls Role = "assistant_tool_calls"
	RoleTool               Role = "tool"
)

// AgentStepToolName is the synthetic tool the loop always advertises
// alongside real tools.
const AgentStepToolName = "agent_step"

// ContextRecallToolName, when requested in an act step and a
// ContextRecallAgent function is configured, is routed to that function
// instead of the tool executor.
const ContextRecallToolName = "context_recall_agent"

// ToolCallRequest is one tool call the provider asked for.
type ToolCallRequest struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Message is one role-tagged entry in the turn history.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolName   string            `json:"tool_name,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
}

// ToolSchemaDef is the shape advertised to the provider for one tool.
type ToolSchemaDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// TurnRequest is handed to Provider.GenerateTurn.
type TurnRequest struct {
	Messages []Message
	Tools    []ToolSchemaDef
	Model    string
}

// TurnResult is the provider's response: either a final assistant message
// or a turn consisting entirely of tool calls.
type TurnResult struct {
	Type             string // "assistant" | "tool_calls"
	Content          string
	AssistantContent string
	Calls            []ToolCallRequest
}

// Provider is the LLM turn-generation contract consumed by the loop.
type Provider interface {
	GenerateTurn(ctx context.Context, req TurnRequest) (TurnResult, error)
}

// ToolExecutor is the narrow view of toolexec.Executor the loop needs.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, input json.RawMessage, call toolexec.CallContext) (*toolexec.Result, error)
	Definitions() []toolexec.Tool
}

// SessionRecorder is the narrow view of sessionmem.Manager the loop needs.
type SessionRecorder interface {
	RecordToolCall(clientID string, call events.ToolCall) error
	RecordToolResult(clientID string, result events.ToolResult) error
	RecordAgentStep(clientID string, step events.AgentStep) error
	RecordAssistantFeedback(clientID, message string) error
}

// ActionInput is the act phase's tool invocation payload.
type ActionInput struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// AgentStepInput is the LLM-constructed payload for the synthetic
// agent_step tool call, validated and appended to the scratchpad.
type AgentStepInput struct {
	Phase           events.AgentPhase `json:"phase"`
	Thinking        string            `json:"thinking,omitempty"`
	Summary         string            `json:"summary"`
	Action          *ActionInput      `json:"action,omitempty"`
	ApproachesTried []string          `json:"approaches_tried,omitempty"`
	FeedbackMessage string            `json:"feedback_message,omitempty"`
	EndMessage      string            `json:"end_message,omitempty"`
	EndStatus       events.EndStatus  `json:"end_status,omitempty"`
}

// ScratchpadEntry is one step's record, rendered into the system message on
// every iteration and bounded by the loop's step limit.
type ScratchpadEntry struct {
	Step       int
	Phase      events.AgentPhase
	Thinking   string
	Summary    string
	ToolResult string
}

// RunState is local to one run; it is never persisted.
type RunState struct {
	Step                   int
	Scratchpad             []ScratchpadEntry
	ApproachesTried        map[string]struct{}
	ToolCallsMade          int
	ConsecutiveNonActSteps int
}

func newRunState() *RunState {
	return &RunState{ApproachesTried: make(map[string]struct{})}
}

// ContextSizeEvent is the local-estimate telemetry emitted once per
// iteration, matching the client protocol's context_size message.
type ContextSizeEvent struct {
	Step                 int
	Provider             string
	Model                string
	InputTokens          int
	MessageTokens        int
	ToolSchemaTokens     int
	StaticSystemTokens   int
	DynamicSystemTokens  int
	RuntimeDynamicTokens int
}

// StepOutcome is what Run returns: either a terminal reply (end_status
// set) or an interim feedback message (end_status unset).
type StepOutcome struct {
	Type          string // "final" | "feedback"
	Content       string
	EndStatus     events.EndStatus
	TotalSteps    int
	ToolCallsMade int
}

// RunRequest bundles everything one Run call needs.
type RunRequest struct {
	ClientID      string
	RunID         string
	SessionID     string
	UserContent   string
	SystemContext string
	StaticTokens  int
	DynamicTokens int

	ProviderName string
	ResolveModel func(providerName string) string

	Tools              []toolexec.Tool
	Executor           ToolExecutor
	Memory             SessionRecorder
	Provider           Provider
	ContextRecallAgent func(ctx context.Context, input json.RawMessage) (*toolexec.Result, error)

	ContextSizeCallback func(ContextSizeEvent)
	EstimateTokens      func(messages []Message, tools []ToolSchemaDef) int

	Config Config
}
