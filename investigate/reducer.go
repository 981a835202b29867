package investigate

import (
	"strings"
	"time"
)

// Transcript is the persistable aggregate of one loop run.
type Transcript struct {
	MessageID string
	SessionID string

	// Steps is the intermediate reasoning, one entry per thinking frame.
	Steps []string

	ToolCalls   []ToolCallData
	ToolResults []ToolResultData

	// FinalAnswer is the answer frame content, empty when the loop
	// terminated without one.
	FinalAnswer string

	// Err is the error frame message, empty on clean runs.
	Err string

	TotalTokens int
	Duration    time.Duration
}

// Thinking joins the reasoning steps into one block for persistence.
func (t Transcript) Thinking() string {
	return strings.Join(t.Steps, "\n")
}

// Reduce folds an ordered frame sequence into a Transcript. It is a
// pure function of the frames: the same sequence always yields the same
// transcript, independent of any live stream.
func Reduce(frames []Frame) Transcript {
	var t Transcript
	if len(frames) == 0 {
		return t
	}

	for _, f := range frames {
		switch data := f.Data.(type) {
		case StartData:
			t.MessageID = data.MessageID
			t.SessionID = data.SessionID
		case ThinkingData:
			t.Steps = append(t.Steps, data.Content)
		case ToolCallData:
			t.ToolCalls = append(t.ToolCalls, data)
		case ToolResultData:
			t.ToolResults = append(t.ToolResults, data)
		case AnswerData:
			t.FinalAnswer = data.Content
			t.TotalTokens = data.Usage.TotalTokens
		case ErrorData:
			t.Err = data.Message
		}
	}

	t.Duration = frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp)
	return t
}
