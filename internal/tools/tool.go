// Package tools provides the uniform tool contract shared by every builtin
// and MCP-bridged tool: the execution interface, capability metadata, the
// registry, workspace path confinement, output truncation, and media
// detection.
package tools

import (
	"context"
	"encoding/json"

	"github.com/loopkit/loopd/pkg/models"
)

// Tool is the interface every executable agent tool implements.
//
// Execute returns the uniform result envelope. User-level failures (bad
// paths, missing files, invalid regexes, timeouts) are reported inside the
// envelope with Success=false; a non-nil Go error is reserved for
// programmer-level faults and treated as an internal failure by the
// registry.
type Tool interface {
	// Name returns the stable tool name used for LLM function calling.
	Name() string

	// Description returns the natural-language tool description placed in
	// the prompt catalogue.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters.
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// Source tags where a tool comes from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceMCP     Source = "mcp"
)

// Capabilities is the per-tool metadata attached once at registration and
// treated as immutable afterwards.
type Capabilities struct {
	Source   Source `json:"source"`
	ReadOnly bool   `json:"read_only"`

	// MCPServer identifies the owning server for MCP-bridged tools.
	MCPServer string `json:"mcp_server,omitempty"`
}

// readOnlyBuiltins is the fixed set of builtin tools that never mutate the
// workspace or the outside world.
var readOnlyBuiltins = map[string]bool{
	"read":       true,
	"list":       true,
	"glob":       true,
	"grep":       true,
	"web_fetch":  true,
	"web_search": true,
}

// BuiltinReadOnly reports whether the named builtin tool is read-only.
func BuiltinReadOnly(name string) bool {
	return readOnlyBuiltins[name]
}
