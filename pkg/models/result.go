package models

// ToolResult is the uniform envelope every tool returns.
//
// Tools never surface Go errors to the agent loop for user-level failures;
// they report them here with Success=false and a specific Error message.
type ToolResult struct {
	// Kind matches the tool's declared name.
	Kind string `json:"kind"`

	// Success reports whether the tool ran to completion.
	Success bool `json:"success"`

	// Error holds the failure message. Empty iff Success.
	Error string `json:"error,omitempty"`

	// Text is the rendered human-readable summary, always present.
	Text string `json:"text"`

	// Data is the structured tool-specific payload. Never nil; an empty
	// map is permitted.
	Data map[string]any `json:"data"`

	// Meta carries diagnostics such as truncated, timed_out, match_count.
	Meta map[string]any `json:"meta,omitempty"`

	// LLMContent, when set, replaces Text as the content fed back to the
	// model in the tool reply (e.g. multimodal image blocks). It is
	// internal: stripped from events sent to the controller and from
	// persisted history.
	LLMContent []LLMBlock `json:"llm_content,omitempty"`
}

// LLMBlock is one element of a multimodal tool reply.
type LLMBlock struct {
	Type string `json:"type"` // "text" or "image"
	Text string `json:"text,omitempty"`

	// URL is a data URI (data:<mime>;base64,<...>) for image blocks.
	URL string `json:"url,omitempty"`
}

// OkResult builds a success envelope.
func OkResult(kind, text string, data map[string]any) *ToolResult {
	if data == nil {
		data = map[string]any{}
	}
	return &ToolResult{Kind: kind, Success: true, Text: text, Data: data}
}

// ErrorResult builds a failure envelope.
func ErrorResult(kind, message string) *ToolResult {
	return &ToolResult{
		Kind:  kind,
		Error: message,
		Text:  message,
		Data:  map[string]any{},
	}
}

// WithMeta sets a meta key and returns the result for chaining.
func (r *ToolResult) WithMeta(key string, value any) *ToolResult {
	if r.Meta == nil {
		r.Meta = map[string]any{}
	}
	r.Meta[key] = value
	return r
}

// StripLLMContent returns a shallow copy safe to emit to the controller:
// the internal LLMContent field is removed, everything else is shared.
func (r *ToolResult) StripLLMContent() *ToolResult {
	if r == nil {
		return nil
	}
	clone := *r
	clone.LLMContent = nil
	return &clone
}

// ReplyContent returns the content to append to history as the tool reply:
// the multimodal LLMContent when present, otherwise the rendered text.
func (r *ToolResult) ReplyContent() any {
	if len(r.LLMContent) > 0 {
		blocks := make([]any, 0, len(r.LLMContent))
		for _, b := range r.LLMContent {
			blocks = append(blocks, b)
		}
		return blocks
	}
	return r.Text
}
