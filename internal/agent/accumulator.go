package agent

import (
	"encoding/json"

	"github.com/loopkit/loopd/internal/provider"
	"github.com/loopkit/loopd/pkg/models"
)

// accumulator assembles tool calls from streamed fragments. Fragments carry
// an index identifying which concurrent call they belong to; the
// accumulator keeps a dense list and fills index gaps with placeholders.
type accumulator struct {
	calls []models.ToolCall
}

// add folds one fragment into the list. It reports whether the fragment
// committed a name to a previously unnamed slot, which is the point a tool
// call becomes real.
func (a *accumulator) add(fragment provider.ToolCallChunk) bool {
	idx := 0
	if fragment.Index != nil {
		idx = *fragment.Index
	}
	if idx < 0 {
		idx = 0
	}
	for idx >= len(a.calls) {
		a.calls = append(a.calls, models.ToolCall{Index: len(a.calls)})
	}

	call := &a.calls[idx]
	named := false
	if fragment.ID != "" {
		call.ID = fragment.ID
	}
	if fragment.Name != "" {
		named = call.Name == ""
		call.Name = fragment.Name
	}
	if fragment.Args != "" {
		call.ArgsRaw += fragment.Args
		var parsed map[string]any
		if err := json.Unmarshal([]byte(call.ArgsRaw), &parsed); err == nil {
			call.Args = parsed
		}
	}
	return named
}

// completed returns the executable calls in received order. Placeholders
// with no name are ghosts left by index gaps and are discarded; providers
// that begin streaming at index 1 leave one at index 0. Calls whose argument
// buffer never parsed fall back to empty input.
func (a *accumulator) completed() []models.ToolCall {
	out := make([]models.ToolCall, 0, len(a.calls))
	for _, call := range a.calls {
		if call.Name == "" {
			continue
		}
		if call.Args == nil {
			var parsed map[string]any
			if call.ArgsRaw != "" && json.Unmarshal([]byte(call.ArgsRaw), &parsed) == nil {
				call.Args = parsed
			} else {
				call.Args = map[string]any{}
			}
		}
		call.Index = len(out)
		out = append(out, call)
	}
	return out
}
