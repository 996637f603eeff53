package toolexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Saieshwar5/ayati-a1-sub001/internal/guardrail"
)

// Executor owns the tool registry and mediates every call through the
// guardrail policy and an optional schema-shape check before dispatch.
type Executor struct {
	registry *Registry
	guard    *guardrail.Guard
	logger   *slog.Logger

	schemaMu sync.RWMutex
	schemas  map[string]*jsonschema.Schema
}

// NewExecutor builds an Executor backed by guard's current and future
// (hot-reloaded) policy.
func NewExecutor(guard *guardrail.Guard, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default().With("component", "toolexec")
	}
	return &Executor{
		registry: NewRegistry(logger),
		guard:    guard,
		logger:   logger,
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds tool to the registry and compiles its schema once for later
// shape validation. A schema that fails to compile disables shape validation
// for that tool (logged) but does not prevent registration — full validation
// remains the tool's own responsibility per §4.C.
func (e *Executor) Register(tool Tool) {
	e.registry.Register(tool)

	raw := tool.Schema()
	if len(raw) == 0 {
		return
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + tool.Name() + "/schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		e.logger.Warn("tool schema could not be loaded", "tool", tool.Name(), "error", err)
		return
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		e.logger.Warn("tool schema could not be compiled", "tool", tool.Name(), "error", err)
		return
	}
	e.schemaMu.Lock()
	e.schemas[tool.Name()] = schema
	e.schemaMu.Unlock()
}

// Definitions enumerates registered tools in registration order.
func (e *Executor) Definitions() []Tool {
	return e.registry.Definitions()
}

// Execute looks up name, consults the current policy, shape-validates input
// against the tool's schema when one compiled successfully, then dispatches.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage, call CallContext) (*Result, error) {
	tool, ok := e.registry.Get(name)
	if !ok {
		return Err(fmt.Sprintf("Unknown tool: %s", name), nil), nil
	}

	policy := e.guard.Policy()
	if !policy.ToolAllowed(name) {
		return Err(fmt.Sprintf("tool %q is not permitted by the current policy", name), nil), nil
	}

	if err := e.validateShape(name, input); err != nil {
		return Err(err.Error(), nil), nil
	}

	return tool.Execute(ctx, input, call)
}

// validateShape performs a required-fields-and-primitive-types-only check
// against the tool's compiled schema, when one is available.
func (e *Executor) validateShape(name string, input json.RawMessage) error {
	e.schemaMu.RLock()
	schema, ok := e.schemas[name]
	e.schemaMu.RUnlock()
	if !ok {
		return nil
	}

	var doc any
	if len(input) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("tool input is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tool input does not match schema: %w", err)
	}
	return nil
}
