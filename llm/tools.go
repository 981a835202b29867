package llm

import (
	"encoding/json"
	"fmt"
)

// ToolDef declares a tool the model may invoke.
type ToolDef struct {
	// Name uniquely identifies the tool.
	Name string

	// Description tells the model what the tool does and when to use it.
	Description string

	// Parameters is a JSON Schema for the tool's input.
	Parameters map[string]any
}

// Validate checks that the definition is complete.
func (t ToolDef) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if t.Parameters == nil {
		return fmt.Errorf("tool parameters cannot be nil")
	}
	return nil
}

// ToolCall is a model request to run a tool.
type ToolCall struct {
	// ID ties the eventual result back to this call.
	ID string `json:"id"`

	// Name names the tool to run.
	Name string `json:"name"`

	// Arguments is the tool input as a JSON string.
	Arguments string `json:"arguments"`
}

// ParseArguments decodes the call arguments into v, which must be a
// pointer.
func (c ToolCall) ParseArguments(v any) error {
	if c.Arguments == "" {
		return fmt.Errorf("no arguments to parse")
	}
	return json.Unmarshal([]byte(c.Arguments), v)
}

// Validate checks the call for a usable ID, name, and JSON arguments.
func (c ToolCall) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("tool call ID cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("tool call name cannot be empty")
	}
	if c.Arguments == "" {
		return fmt.Errorf("tool call arguments cannot be empty")
	}
	var temp any
	if err := json.Unmarshal([]byte(c.Arguments), &temp); err != nil {
		return fmt.Errorf("invalid JSON in arguments: %w", err)
	}
	return nil
}

// ToolResult is the outcome of executing a tool call.
type ToolResult struct {
	// ToolCallID matches the ID of the originating ToolCall.
	ToolCallID string `json:"tool_call_id"`

	// Content is the result payload, JSON-encoded for structured data.
	Content string `json:"content"`

	// IsError marks a failed execution; Content then holds the error
	// message.
	IsError bool `json:"is_error,omitempty"`
}

// NewToolResult builds a successful result.
func NewToolResult(toolCallID, content string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Content: content}
}

// NewToolError builds a failed result.
func NewToolError(toolCallID, errorMsg string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Content: errorMsg, IsError: true}
}

// SetJSONContent marshals v into the result content.
func (r *ToolResult) SetJSONContent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	r.Content = string(data)
	return nil
}

// ParseContent decodes the result content into v, which must be a
// pointer.
func (r *ToolResult) ParseContent(v any) error {
	if r.Content == "" {
		return fmt.Errorf("no content to parse")
	}
	return json.Unmarshal([]byte(r.Content), v)
}
