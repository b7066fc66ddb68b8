package models

// ToolCall is a tool invocation requested by the model within one turn.
//
// During streaming the call is accumulated from fragments keyed by Index;
// ArgsRaw collects the argument JSON as it arrives and Args is cached once
// the buffer parses. A call is complete when Name is non-empty and Args is
// non-nil.
type ToolCall struct {
	// Index is the call's position within the turn, dense from 0 after
	// ghost placeholders are filtered.
	Index int `json:"index"`

	// ID is the opaque identifier chosen by the model.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// ArgsRaw is the as-yet-unparsed JSON argument buffer.
	ArgsRaw string `json:"-"`

	// Args is the parsed argument object, present once ArgsRaw is valid JSON.
	Args map[string]any `json:"input,omitempty"`
}

// Complete reports whether the call is executable.
func (c ToolCall) Complete() bool {
	return c.Name != "" && c.Args != nil
}

// TokenUsage reports prompt and completion token counts for one turn.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
}
