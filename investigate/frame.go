package investigate

import (
	"time"

	"github.com/phalanx-sec/mailtriage/llm"
)

// FrameType tags a stream frame.
type FrameType string

const (
	// FrameStart opens the stream with the message and session ids.
	FrameStart FrameType = "start"

	// FrameThinking carries intermediate reasoning text.
	FrameThinking FrameType = "thinking"

	// FrameToolCall announces a tool invocation.
	FrameToolCall FrameType = "tool_call"

	// FrameToolResult carries a tool's output.
	FrameToolResult FrameType = "tool_result"

	// FrameAnswer is the terminal frame for a completed investigation.
	FrameAnswer FrameType = "answer"

	// FrameError is the terminal frame for an aborted investigation.
	FrameError FrameType = "error"
)

// Frame is one ordered event on the investigation stream. Consumers
// receive zero or more thinking/tool_call/tool_result frames before at
// most one terminal answer or error frame; the absence of a terminal
// frame signals abnormal termination or cancellation.
type Frame struct {
	Type      FrameType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

// StartData is the payload of a start frame.
type StartData struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
}

// ThinkingData is the payload of a thinking frame.
type ThinkingData struct {
	Hop     int    `json:"hop"`
	Content string `json:"content"`
}

// ToolCallData is the payload of a tool_call frame.
type ToolCallData struct {
	Hop       int    `json:"hop"`
	CallID    string `json:"call_id"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
}

// ToolResultData is the payload of a tool_result frame. CallID matches
// the corresponding tool_call frame.
type ToolResultData struct {
	Hop     int    `json:"hop"`
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// AnswerData is the payload of the terminal answer frame.
type AnswerData struct {
	Content string         `json:"content"`
	Hops    int            `json:"hops"`
	Usage   llm.TokenUsage `json:"usage"`
}

// ErrorData is the payload of the terminal error frame.
type ErrorData struct {
	Message string `json:"message"`
}

func newFrame(t FrameType, data any, seq int64, now time.Time) Frame {
	return Frame{
		Type:      t,
		Data:      data,
		Timestamp: now,
		Seq:       seq,
	}
}
