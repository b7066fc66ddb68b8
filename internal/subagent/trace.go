package subagent

import (
	"encoding/json"

	"github.com/loopkit/loopd/pkg/models"
)

// TraceEntry is one step of a subagent run: a coalesced text or thinking
// span, or a tool call with its eventual result.
type TraceEntry struct {
	Type    string // "text", "thinking" or "tool_call"
	Content string

	// tool_call only. Result stays nil until the matching tool_result
	// event arrives.
	ID      string
	Name    string
	Input   map[string]any
	Result  *models.ToolResult
	IsError bool
}

// MarshalJSON renders the variant the entry actually is. Text and thinking
// entries carry only their content; tool_call entries always carry a result
// key, null while the call is still pending.
func (e *TraceEntry) MarshalJSON() ([]byte, error) {
	if e.Type == "tool_call" {
		return json.Marshal(struct {
			Type    string             `json:"type"`
			ID      string             `json:"id"`
			Name    string             `json:"name"`
			Input   map[string]any     `json:"input"`
			Result  *models.ToolResult `json:"result"`
			IsError bool               `json:"isError"`
		}{e.Type, e.ID, e.Name, e.Input, e.Result, e.IsError})
	}
	return json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{e.Type, e.Content})
}

// trace accumulates the child's stream events into replayable entries.
// Consecutive deltas of the same kind merge into a single span.
type trace struct {
	entries []*TraceEntry
}

func (t *trace) observe(ev models.StreamEvent) {
	switch ev.Type {
	case models.EventAssistantDelta:
		t.appendDelta("text", ev.Delta)
	case models.EventThinkingDelta:
		t.appendDelta("thinking", ev.Delta)
	case models.EventToolCall:
		t.entries = append(t.entries, &TraceEntry{
			Type:  "tool_call",
			ID:    ev.ToolCallID,
			Name:  ev.ToolName,
			Input: ev.ToolInput,
		})
	case models.EventToolResult:
		for i := len(t.entries) - 1; i >= 0; i-- {
			entry := t.entries[i]
			if entry.Type == "tool_call" && entry.ID == ev.ToolCallID {
				entry.Result = ev.Result
				entry.IsError = ev.IsError
				break
			}
		}
	}
}

func (t *trace) appendDelta(kind, delta string) {
	if delta == "" {
		return
	}
	if n := len(t.entries); n > 0 && t.entries[n-1].Type == kind {
		t.entries[n-1].Content += delta
		return
	}
	t.entries = append(t.entries, &TraceEntry{Type: kind, Content: delta})
}

// Entries returns the collected entries, never nil.
func (t *trace) Entries() []*TraceEntry {
	if t.entries == nil {
		return []*TraceEntry{}
	}
	return t.entries
}
