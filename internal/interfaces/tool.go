package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/lectern/internal/models"
)

// ToolDefinition describes a tool to the language model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Properties  map[string]interface{} `json:"properties"` // JSON schema properties of the input object
	Required    []string               `json:"required,omitempty"`
}

// InputSchema returns the full JSON schema of the tool input object.
func (d ToolDefinition) InputSchema() map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": d.Properties,
	}
	if len(d.Required) > 0 {
		schema["required"] = d.Required
	}
	return schema
}

// SourceRecorder collects the source references produced by tool executions.
type SourceRecorder interface {
	Record(sources ...models.SourceReference)
}

// Tool is a capability the language model can invoke.
type Tool interface {
	Definition() ToolDefinition

	// Execute runs the tool with the model-supplied JSON input and returns
	// the text handed back to the model.
	Execute(ctx context.Context, input json.RawMessage, rec SourceRecorder) (string, error)
}

// ToolExecutor dispatches tool invocations by name.
type ToolExecutor interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, input json.RawMessage) (string, error)
}
