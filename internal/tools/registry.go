package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/loopkit/loopd/pkg/models"
)

// Parameter limits enforced before dispatch.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// Registry manages available tools with thread-safe registration, schema
// validation, and capability lookup. Capabilities are attached once at
// registration and never mutated.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	caps    map[string]Capabilities
	schemas map[string]*jsonschema.Schema

	logger  *slog.Logger
	metrics *Metrics
}

// RegistryOption customizes Registry construction.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector used for execution counters.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		caps:    make(map[string]Capabilities),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a builtin tool. Read-only classification comes from the
// fixed builtin set. An existing tool with the same name is replaced.
func (r *Registry) Register(tool Tool) {
	r.register(tool, Capabilities{
		Source:   SourceBuiltin,
		ReadOnly: BuiltinReadOnly(tool.Name()),
	})
}

// RegisterWithCapabilities adds a tool with explicit capabilities, used for
// MCP-bridged tools whose read-only flag is resolved by the bridge.
func (r *Registry) RegisterWithCapabilities(tool Tool, caps Capabilities) {
	r.register(tool, caps)
}

func (r *Registry) register(tool Tool, caps Capabilities) {
	name := tool.Name()

	var compiled *jsonschema.Schema
	if raw := tool.Schema(); len(raw) > 0 {
		var err error
		compiled, err = jsonschema.CompileString(name+".schema.json", string(raw))
		if err != nil {
			r.logger.Warn("tool schema does not compile; skipping validation",
				"tool", name, "error", err)
			compiled = nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	r.caps[name] = caps
	if compiled != nil {
		r.schemas[name] = compiled
	} else {
		delete(r.schemas, name)
	}
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.caps, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// CapabilitiesFor returns the capabilities attached to a tool.
func (r *Registry) CapabilitiesFor(name string) (Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.caps[name]
	return caps, ok
}

// List returns all registered tools in unspecified order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ReadOnlySubset returns the tools tagged read-only, excluding any names in
// the exclude list. Used to build subagent tool sets.
func (r *Registry) ReadOnlySubset(exclude ...string) []Tool {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for name, t := range r.tools {
		if skip[name] {
			continue
		}
		if r.caps[name].ReadOnly {
			out = append(out, t)
		}
	}
	return out
}

// Execute runs a tool by name. Every failure mode surfaces as a result
// envelope; Execute never returns a Go error to the agent loop.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) *models.ToolResult {
	if len(name) > MaxToolNameLength {
		return models.ErrorResult(name[:MaxToolNameLength], fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength))
	}
	if len(params) > MaxToolParamsSize {
		return models.ErrorResult(name, fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize))
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return models.ErrorResult(name, "tool not found: "+name)
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if schema != nil {
		var decoded any
		if err := json.Unmarshal(params, &decoded); err != nil {
			return r.finish(name, models.ErrorResult(name, fmt.Sprintf("invalid parameters: %v", err)))
		}
		if err := schema.Validate(decoded); err != nil {
			return r.finish(name, models.ErrorResult(name, fmt.Sprintf("parameters do not match schema: %v", err)))
		}
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		r.logger.Error("tool execution failed", "tool", name, "error", err)
		return r.finish(name, models.ErrorResult(name, fmt.Sprintf("tool execution failed: %v", err)))
	}
	if result == nil {
		return r.finish(name, models.ErrorResult(name, "tool returned no result"))
	}
	if result.Kind == "" {
		result.Kind = name
	}
	if result.Data == nil {
		result.Data = map[string]any{}
	}
	return r.finish(name, result)
}

func (r *Registry) finish(name string, result *models.ToolResult) *models.ToolResult {
	if r.metrics != nil {
		status := "success"
		if !result.Success {
			status = "error"
		}
		r.metrics.ToolExecutions.WithLabelValues(name, status).Inc()
	}
	return result
}
