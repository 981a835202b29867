package investigate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phalanx-sec/mailtriage"
	"github.com/phalanx-sec/mailtriage/assistant"
	"github.com/phalanx-sec/mailtriage/evidence"
	"github.com/phalanx-sec/mailtriage/llm"
	"github.com/phalanx-sec/mailtriage/risk"
)

type stubSource struct {
	bundle *evidence.Bundle
	err    error
}

func (s *stubSource) Gather(ctx context.Context, messageID string) (*evidence.Bundle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bundle, nil
}

type stubCompleter struct {
	resp *llm.CompletionResponse
}

func (s *stubCompleter) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return s.resp, nil
}

func stubBundle() *evidence.Bundle {
	return &evidence.Bundle{
		Message: evidence.MessageDetails{
			ID:        "msg-42",
			Subject:   "Invoice",
			Timestamp: time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
		},
		Sender: evidence.SenderProfile{
			Address:   "billing@vendor.example",
			Domain:    "vendor.example",
			TotalSent: 1,
		},
	}
}

func TestEvidenceTool(t *testing.T) {
	tool := NewEvidenceTool(&stubSource{bundle: stubBundle()})

	require.NoError(t, tool.Def().Validate())

	out, err := tool.Invoke(t.Context(), `{"message_id":"msg-42"}`)
	require.NoError(t, err)

	var decoded evidence.Bundle
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "msg-42", decoded.Message.ID)

	_, err = tool.Invoke(t.Context(), `not json`)
	require.Error(t, err)
}

func TestRiskTool(t *testing.T) {
	engine := risk.NewEngine(risk.DefaultConfig())
	tool := NewRiskTool(&stubSource{bundle: stubBundle()}, engine)

	require.NoError(t, tool.Def().Validate())

	out, err := tool.Invoke(t.Context(), `{"message_id":"msg-42"}`)
	require.NoError(t, err)

	var score risk.Score
	require.NoError(t, json.Unmarshal([]byte(out), &score))
	assert.Equal(t, 20, score.Total, "new external sender fires newSender and externalDomain")
	assert.Equal(t, risk.LevelLow, score.Level)

	names := make([]string, 0, len(score.Factors))
	for _, f := range score.Factors {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"newSender", "externalDomain"}, names)
}

func TestRiskToolMissingMessage(t *testing.T) {
	engine := risk.NewEngine(risk.DefaultConfig())
	notFound := mailtriage.NewNotFoundError("Aggregator.Gather", mailtriage.ErrMessageNotFound)
	tool := NewRiskTool(&stubSource{err: notFound}, engine)

	out, err := tool.Invoke(t.Context(), `{"message_id":"msg-gone"}`)
	require.NoError(t, err, "a missing message scores zero instead of failing")

	var score risk.Score
	require.NoError(t, json.Unmarshal([]byte(out), &score))
	assert.Zero(t, score.Total)
	assert.Equal(t, risk.LevelLow, score.Level)
}

func TestQATool(t *testing.T) {
	a := assistant.New(
		&stubSource{bundle: stubBundle()},
		&stubCompleter{resp: &llm.CompletionResponse{Content: "grounded answer", FinishReason: "stop"}},
	)
	tool := NewQATool(a)

	require.NoError(t, tool.Def().Validate())

	out, err := tool.Invoke(t.Context(), `{"message_id":"msg-42","question":"safe?"}`)
	require.NoError(t, err)

	var answer assistant.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "grounded answer", answer.Text)
}
