package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeToolCaller struct {
	toolName string
	args     map[string]any
	result   *ToolCallResult
	err      error
}

func (f *fakeToolCaller) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	f.toolName = name
	f.args = arguments
	return f.result, f.err
}

func TestSafeToolNameSanitizes(t *testing.T) {
	used := make(map[string]struct{})
	name := safeToolName("git-hub", "search/repo", used)
	if name != "mcp_git_hub_search_repo" {
		t.Fatalf("expected sanitized name, got %q", name)
	}
}

func TestSafeToolNameDeduplicates(t *testing.T) {
	used := make(map[string]struct{})
	first := safeToolName("foo-bar", "baz", used)
	second := safeToolName("foo_bar", "baz", used)

	if first == second {
		t.Fatalf("expected unique name for duplicate tool, got %q", second)
	}
	if !strings.HasPrefix(second, first+"_") {
		t.Fatalf("expected duplicate name to include hash suffix, got %q", second)
	}
}

func TestSafeToolNameTruncates(t *testing.T) {
	used := make(map[string]struct{})
	serverID := strings.Repeat("server", 10)
	toolName := strings.Repeat("tool", 10)
	name := safeToolName(serverID, toolName, used)

	if len(name) > maxToolNameLen {
		t.Fatalf("expected name length <= %d, got %d (%q)", maxToolNameLen, len(name), name)
	}
	if !strings.HasSuffix(name, toolNameHash(serverID, toolName)) {
		t.Fatalf("expected truncated name to include hash suffix, got %q", name)
	}
}

func TestToolBridgeExecute(t *testing.T) {
	caller := &fakeToolCaller{
		result: &ToolCallResult{
			Content: []ToolResultContent{{Type: "text", Text: "ok"}},
		},
	}
	tool := &MCPTool{
		Name:        "do_thing",
		Description: "Does the thing",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"value":{"type":"string"}}}`),
	}
	bridge := NewToolBridge(caller, "server", tool, "mcp_server_do_thing")

	result, err := bridge.Execute(context.Background(), json.RawMessage(`{"value":"hi"}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success || result.Text != "ok" {
		t.Fatalf("result = %+v", result)
	}
	if result.Data["server"] != "server" || result.Data["tool"] != "do_thing" {
		t.Fatalf("data = %v", result.Data)
	}
	if caller.toolName != "do_thing" {
		t.Fatalf("expected remote call to %q, got %q", "do_thing", caller.toolName)
	}
	if caller.args["value"] != "hi" {
		t.Fatalf("expected arg value %q, got %v", "hi", caller.args["value"])
	}
}

func TestToolBridgeExecuteServerError(t *testing.T) {
	caller := &fakeToolCaller{
		result: &ToolCallResult{
			Content: []ToolResultContent{{Type: "text", Text: "tool blew up"}},
			IsError: true,
		},
	}
	bridge := NewToolBridge(caller, "server", &MCPTool{Name: "boom"}, "mcp_server_boom")

	result, err := bridge.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Success || result.Error != "tool blew up" {
		t.Fatalf("result = %+v", result)
	}
}

func TestToolBridgeExecuteTransportFailure(t *testing.T) {
	caller := &fakeToolCaller{err: errors.New("connection reset")}
	bridge := NewToolBridge(caller, "server", &MCPTool{Name: "boom"}, "mcp_server_boom")

	result, err := bridge.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "connection reset") {
		t.Fatalf("result = %+v", result)
	}
}

func TestToolBridgeName(t *testing.T) {
	tool := &MCPTool{Name: "search"}
	bridge := NewToolBridge(nil, "server", tool, "mcp_server_search")
	if bridge.Name() != "mcp_server_search" {
		t.Errorf("expected name 'mcp_server_search', got %q", bridge.Name())
	}
}

func TestToolBridgeDescription(t *testing.T) {
	tests := []struct {
		name        string
		tool        *MCPTool
		serverID    string
		wantContain string
	}{
		{
			name:        "with description",
			tool:        &MCPTool{Name: "search", Description: "Search for files"},
			serverID:    "server",
			wantContain: "Search for files",
		},
		{
			name:        "without description",
			tool:        &MCPTool{Name: "search"},
			serverID:    "server",
			wantContain: "MCP tool server.search",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := NewToolBridge(nil, tt.serverID, tt.tool, "mcp_server_search")
			desc := bridge.Description()
			if !strings.Contains(desc, tt.wantContain) {
				t.Errorf("expected description to contain %q, got %q", tt.wantContain, desc)
			}
		})
	}
}

func TestToolBridgeSchema(t *testing.T) {
	tests := []struct {
		name     string
		tool     *MCPTool
		expected string
	}{
		{
			name:     "with schema",
			tool:     &MCPTool{Name: "search", InputSchema: json.RawMessage(`{"type":"object"}`)},
			expected: `{"type":"object"}`,
		},
		{
			name:     "without schema",
			tool:     &MCPTool{Name: "search"},
			expected: `{"type":"object"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := NewToolBridge(nil, "server", tt.tool, "mcp_server_search")
			schema := bridge.Schema()
			if string(schema) != tt.expected {
				t.Errorf("expected schema %q, got %q", tt.expected, string(schema))
			}
		})
	}
}

func TestSanitizeToolPart(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"UPPER", "upper"},
		{"with-dash", "with_dash"},
		{"with.dot", "with_dot"},
		{"with/slash", "with_slash"},
		{"with space", "with_space"},
		{"  trimmed  ", "trimmed"},
		{"123numbers", "123numbers"},
		{"___", "tool"},
		{"", "tool"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeToolPart(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeToolPart(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatToolCallResult(t *testing.T) {
	tests := []struct {
		name     string
		result   *ToolCallResult
		wantText string
		wantErr  bool
	}{
		{
			name:     "nil result",
			result:   nil,
			wantText: "",
			wantErr:  false,
		},
		{
			name:     "empty content",
			result:   &ToolCallResult{Content: []ToolResultContent{}},
			wantText: "",
			wantErr:  false,
		},
		{
			name: "single text",
			result: &ToolCallResult{
				Content: []ToolResultContent{{Type: "text", Text: "hello"}},
			},
			wantText: "hello",
			wantErr:  false,
		},
		{
			name: "multiple text",
			result: &ToolCallResult{
				Content: []ToolResultContent{
					{Type: "text", Text: "line1"},
					{Type: "text", Text: "line2"},
				},
			},
			wantText: "line1\nline2",
			wantErr:  false,
		},
		{
			name: "error result",
			result: &ToolCallResult{
				Content: []ToolResultContent{{Type: "text", Text: "error message"}},
				IsError: true,
			},
			wantText: "error message",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := formatToolCallResult(tt.result)
			if text != tt.wantText {
				t.Errorf("formatToolCallResult() text = %q, want %q", text, tt.wantText)
			}
			if isErr != tt.wantErr {
				t.Errorf("formatToolCallResult() isError = %v, want %v", isErr, tt.wantErr)
			}
		})
	}
}
