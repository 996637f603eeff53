package agentloop

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/events"
	"github.com/Saieshwar5/ayati-a1-sub001/internal/toolexec"
)

var (
	agentStepSchemaOnce sync.Once
	agentStepSchema     json.RawMessage
)

func agentStepInputSchema() json.RawMessage {
	agentStepSchemaOnce.Do(func() {
		r := &jsonschema.Reflector{ExpandedStruct: true}
		s := r.Reflect(&AgentStepInput{})
		b, err := json.Marshal(s)
		if err != nil {
			return
		}
		agentStepSchema = b
	})
	return agentStepSchema
}

// BuildToolCatalog advertises the real tools plus the synthetic agent_step
// tool, matching §4.F's "union of real tools plus a synthetic agent_step
// tool" tool schema.
func BuildToolCatalog(tools []toolexec.Tool) []ToolSchemaDef {
	defs := make([]ToolSchemaDef, 0, len(tools)+1)
	for _, t := range tools {
		defs = append(defs, ToolSchemaDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	defs = append(defs, ToolSchemaDef{
		Name:        AgentStepToolName,
		Description: "Record one reasoning/action/verification/reflection/feedback/end step of the current run.",
		InputSchema: agentStepInputSchema(),
	})
	return defs
}

var errInvalidAgentStep = errors.New("invalid agent_step input")

// validateAgentStepInput checks the required-fields-per-phase shape from
// §3's Agent step input definition.
func validateAgentStepInput(in AgentStepInput) error {
	switch in.Phase {
	case events.PhaseReason, events.PhaseVerify, events.PhaseReflect:
		if in.Summary == "" {
			return errInvalidAgentStep
		}
	case events.PhaseAct:
		if in.Summary == "" || in.Action == nil || in.Action.ToolName == "" {
			return errInvalidAgentStep
		}
	case events.PhaseFeedback:
		if in.FeedbackMessage == "" {
			return errInvalidAgentStep
		}
	case events.PhaseEnd:
		if in.EndMessage == "" || !validEndStatus(in.EndStatus) {
			return errInvalidAgentStep
		}
	default:
		return errInvalidAgentStep
	}
	return nil
}

func validEndStatus(s events.EndStatus) bool {
	switch s {
	case events.EndSolved, events.EndStuck, events.EndPartial:
		return true
	default:
		return false
	}
}
