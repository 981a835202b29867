// Package assistant answers analyst questions about a message, grounded
// in the evidence bundle so answers cannot contradict hard evidence.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phalanx-sec/mailtriage/evidence"
	"github.com/phalanx-sec/mailtriage/llm"
)

const (
	// defaultTimeout bounds the model call. An overlong call is hard
	// stopped through context cancellation.
	defaultTimeout = 30 * time.Second

	defaultTemperature = 0.2
	defaultMaxTokens   = 1500
)

// EvidenceSource provides the evidence bundle for a message. Satisfied
// by evidence.Aggregator.
type EvidenceSource interface {
	Gather(ctx context.Context, messageID string) (*evidence.Bundle, error)
}

// Answer is the displayable result of one question, always returned
// even when the model or the graph store failed.
type Answer struct {
	// Text is the answer prose, or an error-explaining fallback.
	Text string `json:"answer"`

	// Citations point back at the evidence categories that grounded
	// the answer. Empty on degraded answers.
	Citations []Citation `json:"citations"`

	// Usage is the token spend of the model call, zero on failure.
	Usage llm.TokenUsage `json:"usage"`
}

// Assistant renders evidence into a citation-constrained prompt and
// asks the model one question per invocation. It never retries; the
// caller may.
type Assistant struct {
	source    EvidenceSource
	completer llm.Completer
	logger    *slog.Logger
	timeout   time.Duration
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		a.logger = logger
	}
}

// WithTimeout overrides the model call timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		a.timeout = d
	}
}

// New builds an Assistant over an evidence source and a model backend.
func New(source EvidenceSource, completer llm.Completer, opts ...Option) *Assistant {
	a := &Assistant{
		source:    source,
		completer: completer,
		logger:    slog.Default(),
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask answers a question about a message. Any failure, evidence
// gathering or model call, degrades into an error-explaining answer
// with empty citations; the caller always receives a displayable
// result.
func (a *Assistant) Ask(ctx context.Context, question, messageID string) *Answer {
	bundle, err := a.source.Gather(ctx, messageID)
	if err != nil {
		a.logger.Warn("evidence gathering failed, returning degraded answer",
			"message_id", messageID, "error", err)
		return &Answer{
			Text: fmt.Sprintf("Unable to gather evidence for message %s: %v. No answer can be grounded without evidence.", messageID, err),
		}
	}

	prompt := buildInstructions(bundle)
	citations := deriveCitations(bundle)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.completer.Complete(callCtx, llm.NewCompletionRequest(
		[]llm.Message{
			llm.SystemMessage(prompt),
			llm.UserMessage(question),
		},
		llm.WithTemperature(defaultTemperature),
		llm.WithMaxTokens(defaultMaxTokens),
	))
	if err != nil {
		a.logger.Warn("model call failed, returning degraded answer",
			"message_id", messageID, "error", err)
		return &Answer{
			Text: "Analysis failed: the language model did not return an answer in time. The gathered evidence remains intact; retry the question or review the evidence directly.",
		}
	}

	return &Answer{
		Text:      resp.Content,
		Citations: citations,
		Usage:     resp.Usage,
	}
}

// buildInstructions assembles the system prompt: hard evidence first
// as non-negotiable facts, then the rendered bundle, then the grounding
// rules.
func buildInstructions(bundle *evidence.Bundle) string {
	var sb strings.Builder

	sb.WriteString("You are an email threat investigation assistant. Answer the analyst's question using ONLY the evidence below.\n\n")

	if facts := hardEvidence(bundle); len(facts) > 0 {
		sb.WriteString("NON-NEGOTIABLE FACTS (you must not contradict these, and you must not claim the message is not flagged):\n")
		for _, f := range facts {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("EVIDENCE:\n")
	sb.WriteString(renderBundle(bundle))

	sb.WriteString("\nRULES:\n")
	sb.WriteString("- Every claim must cite the evidence section it comes from, by section name.\n")
	sb.WriteString("- If the evidence does not contain the information needed, state explicitly what is missing. Do not speculate.\n")
	sb.WriteString("- Do not invent resources, domains, senders, or detections that do not appear above.\n")

	return sb.String()
}
