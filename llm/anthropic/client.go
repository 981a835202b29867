// Package anthropic implements llm.Completer on the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/phalanx-sec/mailtriage"
	"github.com/phalanx-sec/mailtriage/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Client calls the Anthropic Messages API and adapts the response to
// the provider-neutral llm types.
type Client struct {
	api   *sdk.Client
	model string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	apiKey  string
	baseURL string
	model   string
	api     *sdk.Client
}

// WithBaseURL points the client at a non-default API endpoint, for
// example a corporate proxy.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithSDKClient injects a pre-built SDK client, mainly for tests.
func WithSDKClient(api *sdk.Client) Option {
	return func(c *config) {
		c.api = api
	}
}

// New builds a Client authenticated with the given API key.
func New(apiKey string, opts ...Option) (*Client, error) {
	cfg := config{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.api == nil {
		if cfg.apiKey == "" {
			return nil, mailtriage.NewValidationError("anthropic.new", mailtriage.ErrInvalidConfig).
				WithContext(map[string]any{"reason": "api key is required"})
		}
		api := sdk.NewClient(
			option.WithAPIKey(cfg.apiKey),
			option.WithBaseURL(normalizeBaseURL(cfg.baseURL)),
		)
		cfg.api = &api
	}

	return &Client{api: cfg.api, model: cfg.model}, nil
}

// Complete sends the conversation to the Messages API and adapts the
// reply. Context cancellation and deadlines propagate to the HTTP
// layer.
func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := buildParams(c.model, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, mailtriage.NewTimeoutError("anthropic.complete", ctx.Err())
		}
		return nil, mailtriage.NewUpstreamError("anthropic.complete", err)
	}

	return parseResponse(resp), nil
}

func buildParams(model string, req *llm.CompletionRequest) (sdk.MessageNewParams, error) {
	var system []sdk.TextBlockParam
	var messages []sdk.MessageParam

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: msg.Content})
		case llm.RoleUser:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		case llm.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var blocks []sdk.ContentBlockParamUnion
				if msg.Content != "" {
					blocks = append(blocks, sdk.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					input := tc.Arguments
					if input == "" {
						input = "{}"
					}
					blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, json.RawMessage(input), tc.Name))
				}
				messages = append(messages, sdk.NewAssistantMessage(blocks...))
			} else {
				messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
			}
		case llm.RoleTool:
			// Anthropic models tool results as user-authored blocks.
			var blocks []sdk.ContentBlockParamUnion
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			messages = append(messages, sdk.NewUserMessage(blocks...))
		default:
			return sdk.MessageNewParams{}, mailtriage.NewValidationError("anthropic.complete", mailtriage.ErrInvalidConfig).
				WithContext(map[string]any{"role": msg.Role.String()})
		}
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	if len(req.Tools) > 0 {
		params.Tools = translateTools(req.Tools)
	}

	return params, nil
}

func translateTools(tools []llm.ToolDef) []sdk.ToolUnionParam {
	result := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := sdk.ToolParam{
			Name: t.Name,
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: t.Parameters["properties"],
			},
		}
		if t.Description != "" {
			tool.Description = sdk.String(t.Description)
		}
		if req, ok := t.Parameters["required"].([]any); ok {
			required := make([]string, 0, len(req))
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
			tool.InputSchema.Required = required
		}
		result = append(result, sdk.ToolUnionParam{OfTool: &tool})
	}
	return result
}

func parseResponse(resp *sdk.Message) *llm.CompletionResponse {
	var sb strings.Builder
	var toolCalls []llm.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			sb.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: string(tu.Input),
			})
		}
	}

	finishReason := "stop"
	switch resp.StopReason {
	case sdk.StopReasonToolUse:
		finishReason = "tool_calls"
	case sdk.StopReasonMaxTokens:
		finishReason = "length"
	}

	return &llm.CompletionResponse{
		Content:      sb.String(),
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage: llm.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return defaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultBaseURL
	}
	return base
}
