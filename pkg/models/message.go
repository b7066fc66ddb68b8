// Package models defines the wire types shared between the agent runtime,
// the tool substrate, and the control-channel session glue.
package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in the conversation history.
//
// Content is either a plain string or, for histories replayed from a prior
// session, a list of provider content blocks ([]any of map[string]any). The
// provider contract normalizes list-shaped content before replay.
type Message struct {
	Role    Role `json:"role"`
	Content any  `json:"content"`

	// ToolCalls carries the pending tool calls of an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Text returns the message content when it is a plain string, else "".
func (m Message) Text() string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	return ""
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool reply for the given call id. Content is either
// the rendered result text or a multimodal block list.
func ToolMessage(content any, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
