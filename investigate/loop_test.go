package investigate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phalanx-sec/mailtriage"
	"github.com/phalanx-sec/mailtriage/llm"
	"github.com/phalanx-sec/mailtriage/session"
)

// scriptedCompleter replays a fixed sequence of responses and records
// every request it saw.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []*llm.CompletionResponse
	errs      []error
	requests  []*llm.CompletionRequest
	calls     int

	// block makes every call wait for cancellation instead.
	block bool
}

func (s *scriptedCompleter) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.block {
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		return nil, ctx.Err()
	}

	s.requests = append(s.requests, req)
	i := s.calls
	s.calls++

	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	// Past the script: keep requesting tools so hop limits can be hit.
	return toolCallResponse(fmt.Sprintf("call_%d", i), "echo", `{"message_id":"msg-1"}`), nil
}

func toolCallResponse(callID, tool, args string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content:      "checking the graph",
		ToolCalls:    []llm.ToolCall{{ID: callID, Name: tool, Arguments: args}},
		FinishReason: "tool_calls",
		Usage:        llm.TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
	}
}

func answerResponse(content string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content:      content,
		FinishReason: "stop",
		Usage:        llm.TokenUsage{InputTokens: 200, OutputTokens: 50, TotalTokens: 250},
	}
}

// echoTool returns its arguments, or a scripted error.
type echoTool struct {
	name string
	err  error
}

func (e *echoTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        e.name,
		Description: "echoes its arguments",
		Parameters:  map[string]any{"type": "object"},
	}
}

func (e *echoTool) Invoke(ctx context.Context, arguments string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return arguments, nil
}

func newTestStore(t *testing.T) *session.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := session.NewRedisStore(session.RedisOptions{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// collect drains the stream until it closes.
func collect(t *testing.T, frames <-chan Frame) []Frame {
	t.Helper()
	var out []Frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatalf("stream did not close; got %d frames", len(out))
		}
	}
}

func frameTypes(frames []Frame) []FrameType {
	types := make([]FrameType, len(frames))
	for i, f := range frames {
		types[i] = f.Type
	}
	return types
}

func TestRunImmediateAnswer(t *testing.T) {
	store := newTestStore(t)
	completer := &scriptedCompleter{responses: []*llm.CompletionResponse{
		answerResponse("The message is benign."),
	}}

	loop := NewLoop(completer, store, []Tool{&echoTool{name: "echo"}})
	frames := collect(t, loop.Run(t.Context(), Request{
		MessageID: "msg-1",
		Question:  "is this message safe?",
	}))

	require.Equal(t, []FrameType{FrameStart, FrameAnswer}, frameTypes(frames))

	start := frames[0].Data.(StartData)
	assert.Equal(t, "msg-1", start.MessageID)
	assert.NotEmpty(t, start.SessionID)

	answer := frames[1].Data.(AnswerData)
	assert.Equal(t, "The message is benign.", answer.Content)
	assert.Equal(t, 1, answer.Hops)
	assert.Equal(t, 250, answer.Usage.TotalTokens)

	sess, err := store.Get(t.Context(), start.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Entries, 2)
	assert.Equal(t, "user", sess.Entries[0].Role)
	assert.Equal(t, "is this message safe?", sess.Entries[0].Content)
	assert.Equal(t, "assistant", sess.Entries[1].Role)
	assert.Equal(t, "The message is benign.", sess.Entries[1].Content)
	assert.Equal(t, 250, sess.Entries[1].TokensUsed)
}

func TestRunToolHopThenAnswer(t *testing.T) {
	store := newTestStore(t)
	completer := &scriptedCompleter{responses: []*llm.CompletionResponse{
		toolCallResponse("call_1", "echo", `{"message_id":"msg-1"}`),
		answerResponse("Evidence reviewed; the message is a phish."),
	}}

	loop := NewLoop(completer, store, []Tool{&echoTool{name: "echo"}})
	frames := collect(t, loop.Run(t.Context(), Request{MessageID: "msg-1", Question: "verdict?"}))

	require.Equal(t, []FrameType{
		FrameStart, FrameThinking, FrameToolCall, FrameToolResult, FrameAnswer,
	}, frameTypes(frames))

	for i, f := range frames {
		assert.Equal(t, int64(i), f.Seq, "frame %d out of sequence", i)
	}

	call := frames[2].Data.(ToolCallData)
	assert.Equal(t, "call_1", call.CallID)
	assert.Equal(t, "echo", call.Tool)

	result := frames[3].Data.(ToolResultData)
	assert.Equal(t, "call_1", result.CallID)
	assert.Equal(t, `{"message_id":"msg-1"}`, result.Content)
	assert.False(t, result.IsError)

	answer := frames[4].Data.(AnswerData)
	assert.Equal(t, 2, answer.Hops)
	assert.Equal(t, 370, answer.Usage.TotalTokens)

	// The second hop's request must carry the tool exchange.
	require.Len(t, completer.requests, 2)
	second := completer.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, llm.RoleTool, second[3].Role)
}

func TestRunHopExhaustion(t *testing.T) {
	store := newTestStore(t)
	// Never answers: every scripted and post-script response requests a tool.
	completer := &scriptedCompleter{}

	loop := NewLoop(completer, store, []Tool{&echoTool{name: "echo"}})
	frames := collect(t, loop.Run(t.Context(), Request{
		MessageID: "msg-1",
		Question:  "verdict?",
		MaxHops:   2,
	}))

	var calls, results, answers int
	for _, f := range frames {
		switch f.Type {
		case FrameToolCall:
			calls++
		case FrameToolResult:
			results++
		case FrameAnswer:
			answers++
		}
	}
	assert.Equal(t, 2, calls, "hop ceiling must cap tool calls")
	assert.Equal(t, 2, results)
	assert.Zero(t, answers, "no answer frame without a final answer")

	// The partial transcript is still persisted, with an empty answer.
	start := frames[0].Data.(StartData)
	sess, err := store.Get(t.Context(), start.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Entries, 2)
	assert.Empty(t, sess.Entries[1].Content)
	assert.NotEmpty(t, sess.Entries[1].Thinking)
	assert.Equal(t, 240, sess.Entries[1].TokensUsed, "exhausted hops still account their tokens")
}

func TestRunSessionContinuity(t *testing.T) {
	store := newTestStore(t)

	run := func() StartData {
		completer := &scriptedCompleter{responses: []*llm.CompletionResponse{
			answerResponse("done"),
		}}
		loop := NewLoop(completer, store, nil)
		frames := collect(t, loop.Run(t.Context(), Request{MessageID: "msg-7", Question: "q"}))
		return frames[0].Data.(StartData)
	}

	first := run()
	second := run()

	assert.Equal(t, first.SessionID, second.SessionID,
		"second run must append to the still-active session")

	sess, err := store.Get(t.Context(), first.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Entries, 4)
}

func TestRunBackendFailure(t *testing.T) {
	store := newTestStore(t)
	completer := &scriptedCompleter{errs: []error{errors.New("model unreachable")}}

	loop := NewLoop(completer, store, nil)
	frames := collect(t, loop.Run(t.Context(), Request{MessageID: "msg-1", Question: "q"}))

	require.Equal(t, []FrameType{FrameStart, FrameError}, frameTypes(frames))
	errData := frames[1].Data.(ErrorData)
	assert.Contains(t, errData.Message, "model unreachable")

	start := frames[0].Data.(StartData)
	sess, err := store.Get(t.Context(), start.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Entries, 2)
	assert.Contains(t, sess.Entries[1].Content, "model unreachable")
}

func TestRunUnknownTool(t *testing.T) {
	store := newTestStore(t)
	completer := &scriptedCompleter{responses: []*llm.CompletionResponse{
		toolCallResponse("call_1", "no_such_tool", `{}`),
		answerResponse("recovered"),
	}}

	loop := NewLoop(completer, store, []Tool{&echoTool{name: "echo"}})
	frames := collect(t, loop.Run(t.Context(), Request{MessageID: "msg-1", Question: "q"}))

	require.Equal(t, []FrameType{
		FrameStart, FrameThinking, FrameToolCall, FrameToolResult, FrameAnswer,
	}, frameTypes(frames))

	result := frames[3].Data.(ToolResultData)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "tool not found")
}

func TestRunToolFailureContinues(t *testing.T) {
	store := newTestStore(t)
	completer := &scriptedCompleter{responses: []*llm.CompletionResponse{
		toolCallResponse("call_1", "echo", `{}`),
		answerResponse("answered despite tool failure"),
	}}

	loop := NewLoop(completer, store, []Tool{&echoTool{name: "echo", err: errors.New("graph timeout")}})
	frames := collect(t, loop.Run(t.Context(), Request{MessageID: "msg-1", Question: "q"}))

	result := frames[3].Data.(ToolResultData)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "graph timeout")

	answer := frames[4].Data.(AnswerData)
	assert.Equal(t, "answered despite tool failure", answer.Content)
}

func TestRunCancellation(t *testing.T) {
	store := newTestStore(t)
	completer := &scriptedCompleter{block: true}

	loop := NewLoop(completer, store, nil)
	ctx, cancel := context.WithCancel(context.Background())

	frames := loop.Run(ctx, Request{MessageID: "msg-1", Question: "q"})

	// Drain the start frame, then cancel mid-hop.
	first := <-frames
	require.Equal(t, FrameStart, first.Type)
	cancel()

	var rest []Frame
	for f := range frames {
		rest = append(rest, f)
	}
	assert.Empty(t, rest, "no terminal frame after cancellation")

	// Nothing persisted: the loop never reached an answer/error boundary.
	start := first.Data.(StartData)
	sess, err := store.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Empty(t, sess.Entries)
}

// failingStore breaks every write so persistence behavior can be
// observed from the caller's side.
type failingStore struct{}

func (f *failingStore) Put(ctx context.Context, s *session.Session) error {
	return mailtriage.NewPersistenceError("session.put", errors.New("store down"))
}

func (f *failingStore) Get(ctx context.Context, id string) (*session.Session, error) {
	return nil, mailtriage.NewPersistenceError("session.get", errors.New("store down"))
}

func (f *failingStore) Append(ctx context.Context, id string, entries ...session.Entry) error {
	return mailtriage.NewPersistenceError("session.append", errors.New("store down"))
}

func (f *failingStore) LatestActive(ctx context.Context, messageID string) (*session.Session, error) {
	return nil, mailtriage.NewPersistenceError("session.latest_active", errors.New("store down"))
}

func (f *failingStore) Complete(ctx context.Context, id string) error {
	return mailtriage.NewPersistenceError("session.complete", errors.New("store down"))
}

func (f *failingStore) Close() error { return nil }

func TestRunPersistenceFailureSwallowed(t *testing.T) {
	completer := &scriptedCompleter{responses: []*llm.CompletionResponse{
		answerResponse("answer survives persistence failure"),
	}}

	loop := NewLoop(completer, &failingStore{}, nil)
	frames := collect(t, loop.Run(t.Context(), Request{MessageID: "msg-1", Question: "q"}))

	require.Equal(t, []FrameType{FrameStart, FrameAnswer}, frameTypes(frames))
	answer := frames[1].Data.(AnswerData)
	assert.Equal(t, "answer survives persistence failure", answer.Content)
}
