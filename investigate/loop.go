// Package investigate runs the bounded multi-hop investigation loop:
// sequential reasoning hops over a tool set, an ordered push-only frame
// stream, and best-effort transcript persistence into a session.
package investigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/phalanx-sec/mailtriage"
	"github.com/phalanx-sec/mailtriage/llm"
	"github.com/phalanx-sec/mailtriage/session"
)

// DefaultMaxHops is the hop ceiling when the caller does not set one.
const DefaultMaxHops = 8

// persistTimeout bounds the post-loop transcript write.
const persistTimeout = 5 * time.Second

// Request describes one investigation run.
type Request struct {
	// MessageID is the message under investigation.
	MessageID string

	// Question is the analyst question driving the run, persisted as
	// the user transcript entry. When Messages is empty it also seeds
	// the conversation.
	Question string

	// Messages optionally carries a pre-built initial conversation
	// (system context, prior turns, pipeline prompt). When empty, a
	// default system prompt plus Question is used.
	Messages []llm.Message

	// MaxHops caps the reasoning steps; 0 means DefaultMaxHops.
	MaxHops int
}

// Loop drives bounded sequential reasoning hops against the model,
// dispatching requested tools and streaming ordered frames to the
// consumer.
type Loop struct {
	completer llm.Completer
	store     session.Store
	tools     map[string]Tool
	defs      []llm.ToolDef

	logger *slog.Logger
	tracer trace.Tracer
	hops   metric.Int64Counter
	tokens metric.Int64Counter
	now    func() time.Time
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLoop builds a Loop over a model backend, a session store, and a
// tool set.
func NewLoop(completer llm.Completer, store session.Store, tools []Tool, opts ...LoopOption) *Loop {
	l := &Loop{
		completer: completer,
		store:     store,
		tools:     make(map[string]Tool, len(tools)),
		logger:    slog.Default(),
		tracer:    otel.Tracer("mailtriage/investigate"),
		now:       time.Now,
	}
	for _, t := range tools {
		def := t.Def()
		l.tools[def.Name] = t
		l.defs = append(l.defs, def)
	}

	meter := otel.Meter("mailtriage/investigate")
	l.hops, _ = meter.Int64Counter("mailtriage.investigation.hops")
	l.tokens, _ = meter.Int64Counter("mailtriage.investigation.tokens")

	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run starts an investigation and returns its ordered frame stream.
// The stream is single-producer single-consumer; it closes when the
// loop terminates. Cancelling ctx stops the loop, releases any
// in-flight model call, and closes the stream without a terminal frame.
func (l *Loop) Run(ctx context.Context, req Request) <-chan Frame {
	frames := make(chan Frame)
	go l.run(ctx, req, frames)
	return frames
}

func (l *Loop) run(ctx context.Context, req Request, frames chan<- Frame) {
	defer close(frames)

	maxHops := req.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	ctx, span := l.tracer.Start(ctx, "investigate.run", trace.WithAttributes(
		attribute.String("message.id", req.MessageID),
		attribute.Int("max_hops", maxHops),
	))
	defer span.End()

	var (
		collected []Frame
		seq       int64
		cancelled bool
	)
	emit := func(t FrameType, data any) bool {
		f := newFrame(t, data, seq, l.now().UTC())
		seq++
		collected = append(collected, f)
		select {
		case frames <- f:
			return true
		case <-ctx.Done():
			cancelled = true
			return false
		}
	}

	sess := l.resolveSession(ctx, req.MessageID)
	span.SetAttributes(attribute.String("session.id", sess.ID))

	if !emit(FrameStart, StartData{MessageID: req.MessageID, SessionID: sess.ID}) {
		return
	}

	messages := req.Messages
	if len(messages) == 0 {
		messages = []llm.Message{
			llm.SystemMessage("You are an email threat investigation agent. Use the available tools to gather evidence before answering. Answer only when the evidence supports a conclusion."),
			llm.UserMessage(req.Question),
		}
	}

	tracker := llm.NewTokenTracker()
	terminal := false

	for hop := 1; hop <= maxHops; hop++ {
		if l.hops != nil {
			l.hops.Add(ctx, 1)
		}

		resp, err := l.completer.Complete(ctx, llm.NewCompletionRequest(messages, llm.WithTools(l.defs...)))
		if err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			emit(FrameError, ErrorData{Message: fmt.Sprintf("reasoning backend failed on hop %d: %v", hop, err)})
			terminal = true
			break
		}

		tracker.Add(fmt.Sprintf("hop-%d", hop), resp.Usage)
		if l.tokens != nil {
			l.tokens.Add(ctx, int64(resp.Usage.TotalTokens))
		}

		if !resp.HasToolCalls() {
			if !emit(FrameAnswer, AnswerData{Content: resp.Content, Hops: hop, Usage: tracker.Total()}) {
				break
			}
			terminal = true
			break
		}

		if resp.Content != "" {
			if !emit(FrameThinking, ThinkingData{Hop: hop, Content: resp.Content}) {
				break
			}
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if !emit(FrameToolCall, ToolCallData{
				Hop:       hop,
				CallID:    call.ID,
				Tool:      call.Name,
				Arguments: call.Arguments,
			}) {
				break
			}

			result := l.dispatch(ctx, call)
			messages = append(messages, llm.ToolMessage(result))

			if !emit(FrameToolResult, ToolResultData{
				Hop:     hop,
				CallID:  result.ToolCallID,
				Content: result.Content,
				IsError: result.IsError,
			}) {
				break
			}
		}
		if cancelled {
			break
		}
	}

	// A cancelled run persists nothing unless it had already reached a
	// natural answer/error boundary. Hop exhaustion without an answer
	// is a natural ending: the partial transcript is still recorded.
	if cancelled && !terminal {
		l.logger.Debug("investigation cancelled before a terminal frame, skipping persistence",
			"message_id", req.MessageID, "session_id", sess.ID)
		return
	}

	t := Reduce(collected)
	// The tracker has the authoritative count: a run that exhausts its
	// hops or dies on a backend error never emits an answer frame, yet
	// its hops still consumed tokens.
	t.TotalTokens = tracker.Total().TotalTokens
	l.persist(ctx, sess, req, t)
}

// dispatch runs one tool call. Unknown tools and tool failures become
// error results fed back to the model; they never abort the loop.
func (l *Loop) dispatch(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	tool, ok := l.tools[call.Name]
	if !ok {
		err := mailtriage.NewNotFoundError("Loop.dispatch", mailtriage.ErrToolNotFound).
			WithContext(map[string]any{"tool": call.Name})
		l.logger.Warn("model requested unregistered tool", "tool", call.Name)
		return llm.NewToolError(call.ID, err.Error())
	}

	out, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		l.logger.Warn("tool invocation failed", "tool", call.Name, "error", err)
		return llm.NewToolError(call.ID, err.Error())
	}
	return llm.NewToolResult(call.ID, out)
}

// resolveSession reuses the active session for the message when one
// exists and creates a fresh one otherwise. Store failures degrade to a
// fresh in-memory session; the run proceeds and later appends are
// likewise best-effort.
func (l *Loop) resolveSession(ctx context.Context, messageID string) *session.Session {
	sess, err := l.store.LatestActive(ctx, messageID)
	if err == nil {
		return sess
	}
	if !errors.Is(err, mailtriage.ErrSessionNotFound) {
		l.logger.Warn("active session lookup failed, starting a fresh session",
			"message_id", messageID, "error", err)
	}

	sess = session.New(messageID)
	if err := l.store.Put(ctx, sess); err != nil {
		l.logger.Warn("session create failed, transcript will not persist",
			"message_id", messageID, "session_id", sess.ID, "error", err)
	}
	return sess
}

// persist appends the user question and the aggregated assistant turn
// to the session. Failures are logged and swallowed: losing a
// transcript write must not lose the answer already delivered.
func (l *Loop) persist(ctx context.Context, sess *session.Session, req Request, t Transcript) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := l.now().UTC()
	question := req.Question
	if question == "" {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == llm.RoleUser {
				question = req.Messages[i].Content
				break
			}
		}
	}

	content := t.FinalAnswer
	if content == "" && t.Err != "" {
		content = t.Err
	}

	err := l.store.Append(pctx, sess.ID,
		session.Entry{
			Role:      "user",
			Content:   question,
			Timestamp: now,
		},
		session.Entry{
			Role:       "assistant",
			Content:    content,
			Thinking:   t.Thinking(),
			TokensUsed: t.TotalTokens,
			Duration:   t.Duration,
			Timestamp:  now,
		},
	)
	if err != nil {
		l.logger.Error("transcript persistence failed",
			"message_id", req.MessageID, "session_id", sess.ID, "error", err)
	}
}
