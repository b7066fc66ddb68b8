package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/loopkit/loopd/pkg/models"
)

type echoTool struct {
	name   string
	result *models.ToolResult
	err    error
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "test tool" }
func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"value": {"type": "string"}},
		"required": ["value"],
		"additionalProperties": false
	}`)
}

func (t *echoTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	if t.err != nil {
		return nil, t.err
	}
	if t.result != nil {
		return t.result, nil
	}
	return models.OkResult(t.name, "ok", nil), nil
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if res.Success {
		t.Fatalf("unknown tool reported success")
	}
	if !strings.Contains(res.Error, "tool not found") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestRegistryValidatesParams(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})

	res := r.Execute(context.Background(), "echo", json.RawMessage(`{"value": 42}`))
	if res.Success {
		t.Fatalf("schema violation reported success")
	}
	if !strings.Contains(res.Error, "schema") {
		t.Errorf("Error = %q", res.Error)
	}

	res = r.Execute(context.Background(), "echo", json.RawMessage(`{"value": "hi"}`))
	if !res.Success {
		t.Fatalf("valid params rejected: %s", res.Error)
	}
}

func TestRegistryParamsSizeCap(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})

	huge := json.RawMessage(`{"value":"` + strings.Repeat("x", MaxToolParamsSize) + `"}`)
	res := r.Execute(context.Background(), "echo", huge)
	if res.Success {
		t.Fatalf("oversize params reported success")
	}
}

func TestRegistryBuiltinReadOnlyClassification(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"read", "grep", "shell", "write"} {
		r.Register(&echoTool{name: name})
	}

	for name, wantRO := range map[string]bool{
		"read": true, "grep": true, "shell": false, "write": false,
	} {
		caps, ok := r.CapabilitiesFor(name)
		if !ok {
			t.Fatalf("capabilities missing for %s", name)
		}
		if caps.ReadOnly != wantRO {
			t.Errorf("%s read_only = %v, want %v", name, caps.ReadOnly, wantRO)
		}
		if caps.Source != SourceBuiltin {
			t.Errorf("%s source = %q", name, caps.Source)
		}
	}
}

func TestRegistryReadOnlySubsetExcludes(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"read", "grep", "shell", "task"} {
		r.Register(&echoTool{name: name})
	}
	// task is not in the builtin read-only set, but exclude it anyway to
	// mirror subagent construction.
	subset := r.ReadOnlySubset("task")
	names := map[string]bool{}
	for _, tool := range subset {
		names[tool.Name()] = true
	}
	if !names["read"] || !names["grep"] {
		t.Errorf("read-only subset missing read/grep: %v", names)
	}
	if names["shell"] || names["task"] {
		t.Errorf("read-only subset leaked mutating tools: %v", names)
	}
}

func TestRegistryToolErrorBecomesEnvelope(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo", err: context.DeadlineExceeded})
	res := r.Execute(context.Background(), "echo", json.RawMessage(`{"value":"x"}`))
	if res.Success {
		t.Fatalf("tool error reported success")
	}
	if !strings.Contains(res.Error, "tool execution failed") {
		t.Errorf("Error = %q", res.Error)
	}
}
