// Package events defines the versioned session event model: one Go type per
// journal event variant, encoded as tagged JSON with a v discriminator.
package events

import "encoding/json"

// Kind discriminates the event variants that can appear in a session journal.
type Kind string

const (
	KindSessionOpen       Kind = "session_open"
	KindSessionClose      Kind = "session_close"
	KindUserMessage       Kind = "user_message"
	KindAssistantMessage  Kind = "assistant_message"
	KindAssistantFeedback Kind = "assistant_feedback"
	KindTurnStatus        Kind = "turn_status"
	KindToolCall          Kind = "tool_call"
	KindToolResult        Kind = "tool_result"
	KindRunFailure        Kind = "run_failure"
	KindAgentStep         Kind = "agent_step"
	KindRunLedger         Kind = "run_ledger"
	KindTaskSummary       Kind = "task_summary"
)

// TurnStatusValue enumerates turn_status.status.
type TurnStatusValue string

const (
	TurnProcessingStarted  TurnStatusValue = "processing_started"
	TurnResponseStarted    TurnStatusValue = "response_started"
	TurnResponseCompleted  TurnStatusValue = "response_completed"
	TurnResponseFailed     TurnStatusValue = "response_failed"
	TurnSessionSwitched    TurnStatusValue = "session_switched"
	TurnActivitySwitched   TurnStatusValue = "activity_switched"
)

// ToolResultStatus enumerates tool_result.status.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultFailed  ToolResultStatus = "failed"
)

// AgentPhase enumerates agent_step.phase.
type AgentPhase string

const (
	PhaseReason   AgentPhase = "reason"
	PhaseAct      AgentPhase = "act"
	PhaseVerify   AgentPhase = "verify"
	PhaseReflect  AgentPhase = "reflect"
	PhaseFeedback AgentPhase = "feedback"
	PhaseEnd      AgentPhase = "end"
)

// EndStatus enumerates agent_step.end_status and the loop's terminal status.
type EndStatus string

const (
	EndSolved  EndStatus = "solved"
	EndStuck   EndStatus = "stuck"
	EndPartial EndStatus = "partial"
)

// RunLedgerState enumerates run_ledger.state.
type RunLedgerState string

const (
	RunLedgerStarted   RunLedgerState = "started"
	RunLedgerCompleted RunLedgerState = "completed"
)

// Data is implemented by every event variant. Kind identifies which variant
// an Envelope's Data field holds so the codec can decode the right Go type.
type Data interface {
	Kind() Kind
}

// SessionOpen records the start of a session, optionally continuing another.
type SessionOpen struct {
	ClientID        string `json:"client_id"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	HandoffSummary  string `json:"handoff_summary,omitempty"`
}

func (SessionOpen) Kind() Kind { return KindSessionOpen }

// SessionClose records the end of a session, optionally pointing at its successor.
type SessionClose struct {
	Reason          string `json:"reason"`
	TokenAtClose    int    `json:"token_at_close"`
	EventCount      int    `json:"event_count"`
	HandoffSummary  string `json:"handoff_summary,omitempty"`
	NextSessionID   string `json:"next_session_id,omitempty"`
	NextSessionPath string `json:"next_session_path,omitempty"`
}

func (SessionClose) Kind() Kind { return KindSessionClose }

// UserMessage is a countable event carrying the user's turn content.
type UserMessage struct {
	Content string `json:"content"`
}

func (UserMessage) Kind() Kind { return KindUserMessage }

// AssistantMessage is a countable event carrying the assistant's final turn content.
type AssistantMessage struct {
	Content string `json:"content"`
}

func (AssistantMessage) Kind() Kind { return KindAssistantMessage }

// AssistantFeedback records an interim feedback message from the agent_step feedback phase.
type AssistantFeedback struct {
	Message string `json:"message"`
}

func (AssistantFeedback) Kind() Kind { return KindAssistantFeedback }

// TurnStatus records a lifecycle transition within a run.
type TurnStatus struct {
	Status TurnStatusValue `json:"status"`
	Note   string          `json:"note,omitempty"`
}

func (TurnStatus) Kind() Kind { return KindTurnStatus }

// ToolCall records a tool invocation request.
type ToolCall struct {
	StepID     string          `json:"step_id"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
}

func (ToolCall) Kind() Kind { return KindToolCall }

// ToolResult records the outcome of a ToolCall with the same step_id/tool_call_id.
type ToolResult struct {
	StepID      string           `json:"step_id"`
	ToolCallID  string           `json:"tool_call_id"`
	ToolName    string           `json:"tool_name"`
	Status      ToolResultStatus `json:"status"`
	Output      string           `json:"output"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	DurationMs  int64            `json:"duration_ms,omitempty"`
}

func (ToolResult) Kind() Kind { return KindToolResult }

// RunFailure records a provider or loop-level failure that ended a run.
type RunFailure struct {
	Message string `json:"message"`
}

func (RunFailure) Kind() Kind { return KindRunFailure }

// AgentStep is the audit record of one scratchpad step; never replayed into the prompt window.
type AgentStep struct {
	Step            int        `json:"step"`
	Phase           AgentPhase `json:"phase"`
	Summary         string     `json:"summary"`
	ApproachesTried []string   `json:"approaches_tried,omitempty"`
	ActionToolName  string     `json:"action_tool_name,omitempty"`
	EndStatus       EndStatus  `json:"end_status,omitempty"`
}

func (AgentStep) Kind() Kind { return KindAgentStep }

// RunLedger tracks out-of-core task-run bookkeeping (see data/tasks/ in the filesystem layout).
type RunLedger struct {
	RunID   string         `json:"run_id"`
	RunPath string         `json:"run_path"`
	State   RunLedgerState `json:"state"`
	Status  string         `json:"status,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

func (RunLedger) Kind() Kind { return KindRunLedger }

// TaskSummary records a terminal task/handoff summary for cross-session recall.
type TaskSummary struct {
	RunID   string `json:"run_id"`
	RunPath string `json:"run_path"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

func (TaskSummary) Kind() Kind { return KindTaskSummary }

// Countable reports whether an event counts toward the prompt window (§4.A).
func Countable(d Data) bool {
	switch d.Kind() {
	case KindUserMessage, KindAssistantMessage:
		return true
	default:
		return false
	}
}
