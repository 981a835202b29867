package llm

import "context"

// Completer produces a completion for a conversation. Implementations
// must honor the context deadline and return promptly on cancellation.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest describes one model invocation.
type CompletionRequest struct {
	// Messages is the full conversation so far, oldest first.
	Messages []Message

	// Temperature controls sampling randomness (0.0 to 1.0).
	Temperature *float64

	// MaxTokens caps the number of tokens the model may generate.
	MaxTokens *int

	// Stop lists sequences that terminate generation when emitted.
	Stop []string

	// Tools lists the tool definitions the model may invoke.
	Tools []ToolDef
}

// CompletionResponse is the model's reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the generated text.
	Content string

	// ToolCalls holds tool invocations the model requested.
	ToolCalls []ToolCall

	// FinishReason explains why generation stopped.
	// Common values: "stop", "length", "tool_calls".
	FinishReason string

	// Usage reports token consumption for this invocation.
	Usage TokenUsage
}

// TokenUsage counts tokens consumed by a model invocation.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// CompletionOption configures a CompletionRequest.
type CompletionOption func(*CompletionRequest)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompletionOption {
	return func(r *CompletionRequest) {
		r.Temperature = &t
	}
}

// WithMaxTokens caps generated output length.
func WithMaxTokens(n int) CompletionOption {
	return func(r *CompletionRequest) {
		r.MaxTokens = &n
	}
}

// WithStopSequences sets sequences that stop generation.
func WithStopSequences(stops ...string) CompletionOption {
	return func(r *CompletionRequest) {
		r.Stop = stops
	}
}

// WithTools sets the tools available to the model.
func WithTools(tools ...ToolDef) CompletionOption {
	return func(r *CompletionRequest) {
		r.Tools = tools
	}
}

// NewCompletionRequest builds a request from messages and options.
func NewCompletionRequest(messages []Message, opts ...CompletionOption) *CompletionRequest {
	req := &CompletionRequest{Messages: messages}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// HasContent reports whether the response carries text.
func (r *CompletionResponse) HasContent() bool {
	return r.Content != ""
}

// HasToolCalls reports whether the model requested tool execution.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// IsComplete reports whether generation finished without truncation.
func (r *CompletionResponse) IsComplete() bool {
	return r.FinishReason == "stop" || r.FinishReason == "tool_calls"
}
