package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/loopkit/loopd/internal/agent"
	"github.com/loopkit/loopd/internal/provider"
	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// scriptedStreamer plays back one chunk slice per Stream call, scripting
// the child agent's model responses.
type scriptedStreamer struct {
	turns [][]*provider.Chunk
	calls int
}

func (s *scriptedStreamer) Stream(ctx context.Context, req *provider.Request) (<-chan *provider.Chunk, error) {
	var turn []*provider.Chunk
	if s.calls < len(s.turns) {
		turn = s.turns[s.calls]
	}
	s.calls++

	ch := make(chan *provider.Chunk)
	go func() {
		defer close(ch)
		for _, chunk := range turn {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func textChunk(s string) *provider.Chunk { return &provider.Chunk{Content: s} }

func toolChunk(index int, id, name, args string) *provider.Chunk {
	return &provider.Chunk{ToolCalls: []provider.ToolCallChunk{{
		Index: &index, ID: id, Name: name, Args: args,
	}}}
}

// peekTool is a read-only fake the child can call.
type peekTool struct {
	calls int
}

func (p *peekTool) Name() string            { return "peek" }
func (p *peekTool) Description() string     { return "Peek at the workspace" }
func (p *peekTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (p *peekTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	p.calls++
	return models.OkResult("peek", "peeked", nil), nil
}

// scribbleTool is a writable fake that must never reach the child.
type scribbleTool struct{}

func (s *scribbleTool) Name() string            { return "scribble" }
func (s *scribbleTool) Description() string     { return "Write things" }
func (s *scribbleTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s *scribbleTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return models.OkResult("scribble", "wrote", nil), nil
}

func parentConfig() agent.Config {
	return agent.Config{
		ConversationID: "conv-parent",
		Provider:       "anthropic",
		Model:          "test-model",
		APIKey:         "key",
	}
}

func newTestRunner(t *testing.T, streamer provider.Streamer, registry *tools.Registry) *Runner {
	t.Helper()
	if registry == nil {
		registry = tools.NewRegistry()
		registry.RegisterWithCapabilities(&peekTool{}, tools.Capabilities{
			Source: tools.SourceBuiltin, ReadOnly: true,
		})
	}
	return NewRunner(parentConfig(), registry,
		WithAgentOptions(agent.WithStreamer(streamer)))
}

func TestRunUnsupportedType(t *testing.T) {
	r := newTestRunner(t, &scriptedStreamer{}, nil)

	result := r.Run(context.Background(), "review", "", "look around", nil)
	if result.Success {
		t.Fatal("expected error result")
	}
	if !strings.Contains(result.Error, "unsupported subagent type") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestRunNoModelConfigured(t *testing.T) {
	cfg := parentConfig()
	cfg.Model = ""
	r := NewRunner(cfg, tools.NewRegistry())

	result := r.Run(context.Background(), TypeExplore, "", "look around", nil)
	if result.Success || !strings.Contains(result.Error, "no subagent model") {
		t.Errorf("result = %+v", result)
	}
}

func TestRunNestedInvocationRejected(t *testing.T) {
	r := newTestRunner(t, &scriptedStreamer{}, nil)
	r.depth.Store(1)

	result := r.Run(context.Background(), TypeExplore, "", "look around", nil)
	if result.Success || !strings.Contains(result.Error, "cannot spawn") {
		t.Errorf("result = %+v", result)
	}
}

func TestRunNoReadOnlyTools(t *testing.T) {
	registry := tools.NewRegistry()
	registry.RegisterWithCapabilities(&scribbleTool{}, tools.Capabilities{
		Source: tools.SourceBuiltin, ReadOnly: false,
	})
	r := newTestRunner(t, &scriptedStreamer{}, registry)

	result := r.Run(context.Background(), TypeExplore, "", "look around", nil)
	if result.Success || !strings.Contains(result.Error, "no read-only tools") {
		t.Errorf("result = %+v", result)
	}
}

func TestRunExploreSuccess(t *testing.T) {
	peek := &peekTool{}
	registry := tools.NewRegistry()
	registry.RegisterWithCapabilities(peek, tools.Capabilities{
		Source: tools.SourceBuiltin, ReadOnly: true,
	})
	registry.RegisterWithCapabilities(&scribbleTool{}, tools.Capabilities{
		Source: tools.SourceBuiltin, ReadOnly: false,
	})

	streamer := &scriptedStreamer{turns: [][]*provider.Chunk{
		{toolChunk(0, "tc1", "peek", `{}`)},
		{textChunk("Found it")},
	}}
	r := newTestRunner(t, streamer, registry)

	var forwarded []models.StreamEvent
	result := r.Run(context.Background(), TypeExplore, "scan the repo", "what is in here?",
		func(ev models.StreamEvent) { forwarded = append(forwarded, ev) })

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Kind != TypeExplore || result.Text != "Found it" {
		t.Errorf("kind = %q, text = %q", result.Kind, result.Text)
	}
	if result.Data["summary"] != "Found it" || result.Data["subagent_type"] != TypeExplore {
		t.Errorf("data = %v", result.Data)
	}
	if result.Data["description"] != "scan the repo" {
		t.Errorf("description = %v", result.Data["description"])
	}
	if peek.calls != 1 {
		t.Errorf("peek called %d times", peek.calls)
	}

	names, ok := result.Meta["read_only_tools"].([]string)
	if !ok || len(names) != 1 || names[0] != "peek" {
		t.Errorf("read_only_tools = %v", result.Meta["read_only_tools"])
	}

	entries, ok := result.Data["trace"].([]*TraceEntry)
	if !ok {
		t.Fatalf("trace = %T", result.Data["trace"])
	}
	if result.Meta["trace_blocks"] != len(entries) {
		t.Errorf("trace_blocks = %v with %d entries", result.Meta["trace_blocks"], len(entries))
	}
	var call *TraceEntry
	for _, entry := range entries {
		if entry.Type == "tool_call" {
			call = entry
		}
	}
	if call == nil || call.Name != "peek" {
		t.Fatalf("trace = %+v", entries)
	}
	if call.Result == nil || call.Result.Text != "peeked" || call.IsError {
		t.Errorf("tool_call entry = %+v", call)
	}

	if len(forwarded) == 0 {
		t.Fatal("no events forwarded to the sink")
	}
	last := forwarded[len(forwarded)-1]
	if last.Type != models.EventComplete {
		t.Errorf("last forwarded event = %+v", last)
	}
}

func TestRunEmptyOutputFallsBack(t *testing.T) {
	streamer := &scriptedStreamer{turns: [][]*provider.Chunk{{textChunk("")}}}
	r := newTestRunner(t, streamer, nil)

	result := r.Run(context.Background(), TypeExplore, "", "look around", nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Text != "(no output)" || result.Data["summary"] != "(no output)" {
		t.Errorf("text = %q, summary = %v", result.Text, result.Data["summary"])
	}
}

func TestRunChildErrorKeepsTrace(t *testing.T) {
	streamer := &scriptedStreamer{turns: [][]*provider.Chunk{
		{textChunk("partial"), {Err: errors.New("stream blew up")}},
	}}
	r := newTestRunner(t, streamer, nil)

	result := r.Run(context.Background(), TypeExplore, "scan", "look around", nil)
	if result.Success {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Error, "stream blew up") {
		t.Errorf("error = %q", result.Error)
	}
	entries, ok := result.Data["trace"].([]*TraceEntry)
	if !ok || len(entries) == 0 {
		t.Fatalf("trace = %v", result.Data["trace"])
	}
	if entries[0].Type != "text" || entries[0].Content != "partial" {
		t.Errorf("trace entry = %+v", entries[0])
	}
	if result.Data["summary"] != "" {
		t.Errorf("summary = %v", result.Data["summary"])
	}
}

func TestRunSecondUseAfterCompletion(t *testing.T) {
	streamer := &scriptedStreamer{turns: [][]*provider.Chunk{
		{textChunk("one")},
		{textChunk("two")},
	}}
	r := newTestRunner(t, streamer, nil)

	if result := r.Run(context.Background(), TypeExplore, "", "first", nil); !result.Success {
		t.Fatalf("first run = %+v", result)
	}
	if result := r.Run(context.Background(), TypeExplore, "", "second", nil); !result.Success {
		t.Fatalf("second run = %+v", result)
	}
}
