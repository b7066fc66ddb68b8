// Package subagent runs bounded read-only child agents. The parent
// delegates an exploration prompt through the task tool; the child gets the
// parent's read-only tool subset, runs its own full agent loop, and returns
// a result carrying the final summary plus a replayable trace.
package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/loopkit/loopd/internal/agent"
	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// TypeExplore is the only supported subagent type.
const TypeExplore = "explore"

const explorePreamble = "You are a focused exploration agent. Answer the question below by " +
	"investigating with the read-only tools listed here. You cannot modify files or system " +
	"state. When you are done, reply with a concise summary of what you found.\n\nAvailable tools:\n"

// EventSink receives the child's stream events as they are produced.
type EventSink func(models.StreamEvent)

// Runner launches explore subagents on behalf of one parent conversation.
// A single depth counter rejects nested invocations: children never get a
// task tool, and even a bridged path back into Run fails while a child is
// in flight.
type Runner struct {
	cfg       agent.Config
	registry  *tools.Registry
	logger    *slog.Logger
	agentOpts []agent.Option

	depth atomic.Int32
}

// Option customizes Runner construction.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAgentOptions adds options passed through to every child agent. Tests
// use this to script the child's model stream.
func WithAgentOptions(opts ...agent.Option) Option {
	return func(r *Runner) {
		r.agentOpts = append(r.agentOpts, opts...)
	}
}

// NewRunner creates a runner for the given parent configuration and tool
// registry.
func NewRunner(cfg agent.Config, registry *tools.Registry, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches a subagent and blocks until it finishes. Failures of any
// kind come back inside the result envelope, never as a Go error.
func (r *Runner) Run(ctx context.Context, subagentType, description, prompt string, sink EventSink) *models.ToolResult {
	if subagentType != TypeExplore {
		return models.ErrorResult(TypeExplore,
			fmt.Sprintf("unsupported subagent type %q; only %q is available", subagentType, TypeExplore))
	}
	if r.cfg.SubagentModelName() == "" {
		return models.ErrorResult(TypeExplore, "no subagent model configured")
	}
	if !r.depth.CompareAndSwap(0, 1) {
		return models.ErrorResult(TypeExplore, "subagents cannot spawn further subagents")
	}
	defer r.depth.Store(0)

	subset := r.registry.ReadOnlySubset("task")
	if len(subset) == 0 {
		return models.ErrorResult(TypeExplore, "no read-only tools available for the subagent")
	}

	childRegistry := tools.NewRegistry(tools.WithLogger(r.logger))
	names := make([]string, 0, len(subset))
	byName := make(map[string]tools.Tool, len(subset))
	for _, tool := range subset {
		caps, _ := r.registry.CapabilitiesFor(tool.Name())
		childRegistry.RegisterWithCapabilities(tool, caps)
		names = append(names, tool.Name())
		byName[tool.Name()] = tool
	}
	sort.Strings(names)

	var catalogue strings.Builder
	catalogue.WriteString(explorePreamble)
	for _, name := range names {
		fmt.Fprintf(&catalogue, "- %s: %s\n", name, byName[name].Description())
	}

	childCfg := agent.Config{
		ConversationID: r.cfg.ConversationID + ":" + TypeExplore,
		Provider:       r.cfg.SubagentProviderName(),
		Model:          r.cfg.SubagentModelName(),
		APIKey:         r.cfg.SubagentKey(),
		EndpointURL:    r.cfg.SubagentEndpoint(),
		SystemPrompt:   catalogue.String(),
		MCPServers:     r.cfg.MCPServers,
		DeepThinking:   r.cfg.DeepThinking,
		ThinkingBudget: r.cfg.ThinkingBudget,
	}

	opts := append([]agent.Option{agent.WithLogger(r.logger)}, r.agentOpts...)
	child, err := agent.New(childCfg, childRegistry, opts...)
	if err != nil {
		return r.failure(nil, names, description, "creating subagent: "+err.Error())
	}

	r.logger.Info("subagent started",
		"conversation_id", childCfg.ConversationID,
		"model", childCfg.Model,
		"tools", len(names))

	events, err := child.HandleMessage(ctx, prompt)
	if err != nil {
		return r.failure(nil, names, description, "starting subagent: "+err.Error())
	}

	var tr trace
	var final string
	var errMsg string
	completed := false
	for ev := range events {
		if sink != nil {
			sink(ev)
		}
		tr.observe(ev)
		switch ev.Type {
		case models.EventComplete:
			completed = true
			if ev.Content != nil {
				final = *ev.Content
			}
		case models.EventError:
			errMsg = ev.Message
		}
	}

	if !completed {
		if errMsg == "" {
			errMsg = "subagent ended without completing"
		}
		r.logger.Warn("subagent failed",
			"conversation_id", childCfg.ConversationID, "error", errMsg)
		return r.failure(&tr, names, description, errMsg)
	}

	summary := final
	if strings.TrimSpace(summary) == "" {
		summary = "(no output)"
	}
	result := models.OkResult(TypeExplore, summary, map[string]any{
		"trace":         tr.Entries(),
		"summary":       summary,
		"subagent_type": TypeExplore,
		"description":   description,
	})
	result.WithMeta("trace_blocks", len(tr.Entries()))
	result.WithMeta("read_only_tools", names)
	return result
}

// failure builds an error result in the same envelope shape as success,
// with whatever trace exists embedded.
func (r *Runner) failure(tr *trace, names []string, description, message string) *models.ToolResult {
	entries := []*TraceEntry{}
	if tr != nil {
		entries = tr.Entries()
	}
	result := models.ErrorResult(TypeExplore, message)
	result.Data = map[string]any{
		"trace":         entries,
		"summary":       "",
		"subagent_type": TypeExplore,
		"description":   description,
	}
	result.WithMeta("trace_blocks", len(entries))
	result.WithMeta("read_only_tools", names)
	return result
}
