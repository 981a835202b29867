package llm

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem carries instructions and rendered evidence context.
	RoleSystem Role = "system"

	// RoleUser carries analyst questions.
	RoleUser Role = "user"

	// RoleAssistant carries model output, including tool invocations.
	RoleAssistant Role = "assistant"

	// RoleTool carries the results of executed tool calls.
	RoleTool Role = "tool"
)

// String returns the role as a plain string.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message is a single turn in a model conversation.
type Message struct {
	// Role indicates who authored the message.
	Role Role

	// Content is the text body of the message.
	Content string

	// ToolCalls holds tool invocations requested by the assistant.
	// Only meaningful when Role is RoleAssistant.
	ToolCalls []ToolCall

	// ToolResults holds the outcomes of executed tool calls.
	// Only meaningful when Role is RoleTool.
	ToolResults []ToolResult
}

// IsValid checks that the message carries the fields its role requires.
func (m Message) IsValid() bool {
	switch m.Role {
	case RoleSystem, RoleUser:
		return m.Content != "" && len(m.ToolCalls) == 0 && len(m.ToolResults) == 0
	case RoleAssistant:
		return m.Content != "" || len(m.ToolCalls) > 0
	case RoleTool:
		return len(m.ToolResults) > 0
	default:
		return false
	}
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage builds a tool-role message wrapping one result.
func ToolMessage(result ToolResult) Message {
	return Message{Role: RoleTool, ToolResults: []ToolResult{result}}
}
