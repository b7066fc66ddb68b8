package session

import (
	"context"

	"github.com/loopkit/loopd/internal/agent"
	"github.com/loopkit/loopd/internal/provider"
	"github.com/loopkit/loopd/internal/subagent"
	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/internal/tools/fs"
	"github.com/loopkit/loopd/internal/tools/imagegen"
	"github.com/loopkit/loopd/internal/tools/question"
	"github.com/loopkit/loopd/internal/tools/shell"
	"github.com/loopkit/loopd/internal/tools/web"
	"github.com/loopkit/loopd/pkg/models"
)

// builtinOrder fixes the catalogue order presented to the model.
var builtinOrder = []string{
	"read", "write", "edit", "glob", "grep", "list",
	"shell", "code_interpreter",
	"web_fetch", "web_search",
	"image_generation", "question", "task",
}

// buildRegistry assembles the builtin tool set for one conversation. An
// empty tools_enabled list enables everything; otherwise only the named
// tools are registered. MCP tools are attached separately by the manager.
func (d *Dispatcher) buildRegistry(agentCfg agent.Config, broker *question.Broker) *tools.Registry {
	registry := tools.NewRegistry(tools.WithLogger(d.logger), tools.WithMetrics(d.cfg.Metrics))

	fsCfg := fs.Config{Workspace: d.cfg.Workspace}
	shellCfg := shell.Config{Workspace: d.cfg.Workspace}
	webCfg := web.Config{SearchEndpoint: d.cfg.SearchEndpoint}

	var backend imagegen.Backend
	if provider.FamilyFor(agentCfg.Provider) == provider.FamilyOpenAI && agentCfg.APIKey != "" {
		backend = imagegen.NewOpenAIBackend(agentCfg.APIKey, agentCfg.EndpointURL)
	}

	runner := subagent.NewRunner(agentCfg, registry,
		subagent.WithLogger(d.logger),
		subagent.WithAgentOptions(d.cfg.AgentOptions...))

	sink := func(ctx context.Context, q models.Questionnaire) error {
		d.emit(models.QuestionEvent(q))
		return nil
	}

	available := map[string]tools.Tool{
		"read":             fs.NewReadTool(fsCfg),
		"write":            fs.NewWriteTool(fsCfg),
		"edit":             fs.NewEditTool(fsCfg),
		"glob":             fs.NewGlobTool(fsCfg),
		"grep":             fs.NewGrepTool(fsCfg),
		"list":             fs.NewListTool(fsCfg),
		"shell":            shell.NewShellTool(shellCfg),
		"code_interpreter": shell.NewInterpreterTool(shellCfg),
		"web_fetch":        web.NewFetchTool(webCfg),
		"web_search":       web.NewSearchTool(webCfg),
		"image_generation": imagegen.NewTool(imagegen.Config{Workspace: d.cfg.Workspace, Backend: backend}),
		"question":         question.NewTool(question.Config{Broker: broker, Sink: sink}),
		"task":             subagent.NewTaskTool(runner, func(ev models.StreamEvent) { d.emit(ev) }),
	}

	enabled := make(map[string]bool, len(agentCfg.ToolsEnabled))
	for _, name := range agentCfg.ToolsEnabled {
		enabled[name] = true
	}

	for _, name := range builtinOrder {
		if len(enabled) > 0 && !enabled[name] {
			continue
		}
		registry.Register(available[name])
	}
	return registry
}
