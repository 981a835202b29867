package investigate

import (
	"context"
	"encoding/json"

	"github.com/phalanx-sec/mailtriage"
	"github.com/phalanx-sec/mailtriage/assistant"
	"github.com/phalanx-sec/mailtriage/llm"
	"github.com/phalanx-sec/mailtriage/risk"
)

// Tool is one analyst capability the loop can dispatch to. Invoke
// receives the raw JSON arguments from the model and returns a JSON
// result.
type Tool interface {
	Def() llm.ToolDef
	Invoke(ctx context.Context, arguments string) (string, error)
}

// messageIDArgs is the shared argument shape of the built-in tools.
type messageIDArgs struct {
	MessageID string `json:"message_id"`
}

func messageIDSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the message under investigation",
			},
		},
		"required": []any{"message_id"},
	}
}

// EvidenceTool exposes the evidence aggregator to the loop.
type EvidenceTool struct {
	source assistant.EvidenceSource
}

// NewEvidenceTool builds the evidence lookup tool.
func NewEvidenceTool(source assistant.EvidenceSource) *EvidenceTool {
	return &EvidenceTool{source: source}
}

func (t *EvidenceTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        "get_evidence",
		Description: "Gather the full evidence bundle for a message: sender history, related messages, domain reputation, resource scans, campaigns, and detections.",
		Parameters:  messageIDSchema(),
	}
}

func (t *EvidenceTool) Invoke(ctx context.Context, arguments string) (string, error) {
	var args messageIDArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", mailtriage.NewValidationError("tool.get_evidence", err)
	}

	bundle, err := t.source.Gather(ctx, args.MessageID)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return "", mailtriage.NewInternalError("tool.get_evidence", err)
	}
	return string(data), nil
}

// RiskTool exposes the risk scoring engine to the loop. It gathers
// evidence itself so a hop can score without a prior evidence call.
type RiskTool struct {
	source assistant.EvidenceSource
	engine *risk.Engine
}

// NewRiskTool builds the risk scoring tool.
func NewRiskTool(source assistant.EvidenceSource, engine *risk.Engine) *RiskTool {
	return &RiskTool{source: source, engine: engine}
}

func (t *RiskTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        "score_message",
		Description: "Compute the deterministic 0-100 risk score for a message, with the fired factors, level, confidence, and recommendations.",
		Parameters:  messageIDSchema(),
	}
}

func (t *RiskTool) Invoke(ctx context.Context, arguments string) (string, error) {
	var args messageIDArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", mailtriage.NewValidationError("tool.score_message", err)
	}

	bundle, err := t.source.Gather(ctx, args.MessageID)
	if err != nil {
		// The engine turns a missing message into a zero score with an
		// explanatory recommendation rather than an error.
		if !mailtriage.IsKind(err, mailtriage.KindNotFound) {
			return "", err
		}
		bundle = nil
	}

	score := t.engine.Score(ctx, bundle)
	data, err := json.Marshal(score)
	if err != nil {
		return "", mailtriage.NewInternalError("tool.score_message", err)
	}
	return string(data), nil
}

// QATool exposes the grounded QA assistant to the loop.
type QATool struct {
	assistant *assistant.Assistant
}

// NewQATool builds the grounded question-answering tool.
func NewQATool(a *assistant.Assistant) *QATool {
	return &QATool{assistant: a}
}

func (t *QATool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        "ask_grounded",
		Description: "Ask the evidence-grounded assistant a natural-language question about a message. Answers cite evidence sections and never contradict hard evidence.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message_id": map[string]any{
					"type":        "string",
					"description": "Identifier of the message under investigation",
				},
				"question": map[string]any{
					"type":        "string",
					"description": "The question to answer from the evidence",
				},
			},
			"required": []any{"message_id", "question"},
		},
	}
}

func (t *QATool) Invoke(ctx context.Context, arguments string) (string, error) {
	var args struct {
		MessageID string `json:"message_id"`
		Question  string `json:"question"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", mailtriage.NewValidationError("tool.ask_grounded", err)
	}

	answer := t.assistant.Ask(ctx, args.Question, args.MessageID)
	data, err := json.Marshal(answer)
	if err != nil {
		return "", mailtriage.NewInternalError("tool.ask_grounded", err)
	}
	return string(data), nil
}
