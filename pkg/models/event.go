package models

import "encoding/json"

// EventType discriminates the stream events emitted while handling one
// user message.
type EventType string

const (
	EventAssistantDelta EventType = "assistant_delta"
	EventThinkingDelta  EventType = "thinking_delta"
	EventToolCall       EventType = "tool_call"
	EventToolResult     EventType = "tool_result"
	EventQuestion       EventType = "question"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Error codes carried by EventError events.
const (
	ErrCodeNotInitialized = "not_initialized"
	ErrCodeCancelled      = "cancelled"
	ErrCodeAgentError     = "agent_error"
	ErrCodeMaxIterations  = "max_iterations"
)

// StreamEvent is one event on the agent's outbound stream. The populated
// fields depend on Type; everything else is zero and omitted from JSON.
type StreamEvent struct {
	Type EventType `json:"type"`

	// assistant_delta / thinking_delta
	Delta string `json:"delta,omitempty"`

	// tool_call / tool_result
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	Result     *ToolResult    `json:"result,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`

	// question
	QuestionnaireID string     `json:"questionnaire_id,omitempty"`
	Title           string     `json:"title,omitempty"`
	Questions       []Question `json:"questions,omitempty"`

	// complete
	Content    *string     `json:"content,omitempty"`
	TurnBlocks []TurnBlock `json:"tool_calls,omitempty"`
	Usage      *TokenUsage `json:"token_usage,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON serializes only the payload keys of the event's type. The key
// set per type is fixed: tool_result always carries is_error, and complete
// always carries content, tool_calls (null when the turn had none) and
// token_usage.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	payload := map[string]any{"type": e.Type}
	switch e.Type {
	case EventAssistantDelta, EventThinkingDelta:
		payload["delta"] = e.Delta
	case EventToolCall:
		payload["tool_call_id"] = e.ToolCallID
		payload["tool_name"] = e.ToolName
		payload["tool_input"] = e.ToolInput
	case EventToolResult:
		payload["tool_call_id"] = e.ToolCallID
		payload["result"] = e.Result
		payload["is_error"] = e.IsError
	case EventQuestion:
		payload["questionnaire_id"] = e.QuestionnaireID
		payload["title"] = e.Title
		payload["questions"] = e.Questions
	case EventComplete:
		payload["content"] = e.Content
		payload["tool_calls"] = e.TurnBlocks
		payload["token_usage"] = e.Usage
	case EventError:
		payload["code"] = e.Code
		payload["message"] = e.Message
	}
	return json.Marshal(payload)
}

// TurnBlock is one entry of the interleaved replay blocks carried by the
// complete event: alternating text and tool_call entries in the exact order
// they were observed in the final turn.
type TurnBlock struct {
	Type    string         `json:"type"` // "text" or "tool_call"
	Content string         `json:"content,omitempty"`
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
}

// AssistantDeltaEvent builds an assistant_delta event.
func AssistantDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventAssistantDelta, Delta: delta}
}

// ThinkingDeltaEvent builds a thinking_delta event.
func ThinkingDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventThinkingDelta, Delta: delta}
}

// ToolCallEvent builds a tool_call event.
func ToolCallEvent(call ToolCall) StreamEvent {
	return StreamEvent{
		Type:       EventToolCall,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		ToolInput:  call.Args,
	}
}

// ToolResultEvent builds a tool_result event. The result's internal
// LLMContent is stripped before emission.
func ToolResultEvent(toolCallID string, result *ToolResult) StreamEvent {
	return StreamEvent{
		Type:       EventToolResult,
		ToolCallID: toolCallID,
		Result:     result.StripLLMContent(),
		IsError:    result != nil && !result.Success,
	}
}

// QuestionEvent builds a question event from a questionnaire.
func QuestionEvent(q Questionnaire) StreamEvent {
	return StreamEvent{
		Type:            EventQuestion,
		QuestionnaireID: q.ID,
		Title:           q.Title,
		Questions:       q.Questions,
	}
}

// CompleteEvent builds a complete event. Content is always serialized,
// even when empty; blocks may be nil when the turn had no tool calls.
func CompleteEvent(content string, blocks []TurnBlock, usage TokenUsage) StreamEvent {
	return StreamEvent{
		Type:       EventComplete,
		Content:    &content,
		TurnBlocks: blocks,
		Usage:      &usage,
	}
}

// ErrorEvent builds an error event with one of the ErrCode constants.
func ErrorEvent(code, message string) StreamEvent {
	return StreamEvent{Type: EventError, Code: code, Message: message}
}
