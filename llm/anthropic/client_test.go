package anthropic

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/phalanx-sec/mailtriage"
	"github.com/phalanx-sec/mailtriage/llm"
)

func TestBuildParamsBasicMessage(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.Message{
		llm.UserMessage("summarize the evidence"),
	}, llm.WithMaxTokens(1024))

	params, err := buildParams("claude-sonnet-4-5", req)
	if err != nil {
		t.Fatalf("buildParams() error: %v", err)
	}
	if string(params.Model) != "claude-sonnet-4-5" {
		t.Errorf("Model = %q", params.Model)
	}
	if params.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", params.MaxTokens)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
}

func TestBuildParamsSystemMessage(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.Message{
		llm.SystemMessage("cite only the evidence sections"),
		llm.UserMessage("is this message malicious?"),
	})

	params, err := buildParams("claude-sonnet-4-5", req)
	if err != nil {
		t.Fatalf("buildParams() error: %v", err)
	}
	if len(params.System) != 1 {
		t.Fatalf("len(System) = %d, want 1", len(params.System))
	}
	if params.System[0].Text != "cite only the evidence sections" {
		t.Errorf("System[0].Text = %q", params.System[0].Text)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
	if params.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", params.MaxTokens, defaultMaxTokens)
	}
}

func TestBuildParamsToolConversation(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.Message{
		llm.UserMessage("investigate msg-42"),
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "toolu_01", Name: "get_evidence", Arguments: `{"message_id":"msg-42"}`},
			},
		},
		llm.ToolMessage(llm.NewToolResult("toolu_01", `{"subject":"Invoice"}`)),
	})

	params, err := buildParams("claude-sonnet-4-5", req)
	if err != nil {
		t.Fatalf("buildParams() error: %v", err)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(params.Messages))
	}

	b, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("json.Marshal(params) error: %v", err)
	}
	if !strings.Contains(string(b), `"message_id"`) {
		t.Errorf("serialized params missing tool_use input: %s", b)
	}
	if strings.Contains(string(b), `"input":null`) {
		t.Error("tool_use input serialized as null")
	}
}

func TestBuildParamsEmptyToolArguments(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.Message{
		llm.UserMessage("go"),
		{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "toolu_02", Name: "get_evidence"}},
		},
	})

	params, err := buildParams("claude-sonnet-4-5", req)
	if err != nil {
		t.Fatalf("buildParams() error: %v", err)
	}
	b, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("json.Marshal(params) error: %v", err)
	}
	if strings.Contains(string(b), `"input":null`) {
		t.Error("empty arguments must serialize as an object, not null")
	}
}

func TestBuildParamsUnknownRole(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.Message{
		{Role: llm.Role("moderator"), Content: "hello"},
	})

	_, err := buildParams("claude-sonnet-4-5", req)
	if err == nil {
		t.Fatal("buildParams() must reject an unknown role")
	}
	if !mailtriage.IsKind(err, mailtriage.KindValidation) {
		t.Errorf("buildParams() error kind = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "moderator") {
		t.Errorf("buildParams() error %q should name the offending role", err)
	}
}

func TestBuildParamsWithTools(t *testing.T) {
	req := llm.NewCompletionRequest(
		[]llm.Message{llm.UserMessage("hi")},
		llm.WithTools(llm.ToolDef{
			Name:        "score_message",
			Description: "Compute the risk score for a message",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message_id": map[string]any{"type": "string"},
				},
				"required": []any{"message_id"},
			},
		}),
		llm.WithTemperature(0.1),
		llm.WithStopSequences("DONE"),
	)

	params, err := buildParams("claude-sonnet-4-5", req)
	if err != nil {
		t.Fatalf("buildParams() error: %v", err)
	}
	if len(params.Tools) != 1 {
		t.Fatalf("len(Tools) = %d, want 1", len(params.Tools))
	}
	tool := params.Tools[0].OfTool
	if tool == nil || tool.Name != "score_message" {
		t.Fatalf("tool not translated: %+v", params.Tools[0])
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "message_id" {
		t.Errorf("Required = %v", tool.InputSchema.Required)
	}
	if len(params.StopSequences) != 1 || params.StopSequences[0] != "DONE" {
		t.Errorf("StopSequences = %v", params.StopSequences)
	}
}

func TestParseResponseStopReasons(t *testing.T) {
	tests := []struct {
		stopReason sdk.StopReason
		want       string
	}{
		{sdk.StopReasonEndTurn, "stop"},
		{sdk.StopReasonMaxTokens, "length"},
		{sdk.StopReasonToolUse, "tool_calls"},
	}
	for _, tt := range tests {
		resp := parseResponse(&sdk.Message{StopReason: tt.stopReason})
		if resp.FinishReason != tt.want {
			t.Errorf("StopReason %q: FinishReason = %q, want %q", tt.stopReason, resp.FinishReason, tt.want)
		}
	}
}

func TestParseResponseUsage(t *testing.T) {
	resp := parseResponse(&sdk.Message{
		Usage: sdk.Usage{InputTokens: 15, OutputTokens: 8},
	})
	if resp.Usage.InputTokens != 15 || resp.Usage.OutputTokens != 8 || resp.Usage.TotalTokens != 23 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New() with empty key should fail")
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", defaultBaseURL},
		{"https://proxy.corp.example/v1/", "https://proxy.corp.example"},
		{"https://proxy.corp.example", "https://proxy.corp.example"},
	}
	for _, tt := range tests {
		if got := normalizeBaseURL(tt.in); got != tt.want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompleteRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var reqBody map[string]any
		json.NewDecoder(r.Body).Decode(&reqBody)

		resp := map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       reqBody["model"],
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "The sender has no prior history."},
			},
			"usage": map[string]any{
				"input_tokens":  15,
				"output_tokens": 8,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	api := sdk.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
	)
	client, err := New("", WithSDKClient(&api))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	resp, err := client.Complete(t.Context(), llm.NewCompletionRequest(
		[]llm.Message{llm.UserMessage("what do we know about the sender?")},
	))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "The sender has no prior history." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 23 {
		t.Errorf("TotalTokens = %d, want 23", resp.Usage.TotalTokens)
	}
}
