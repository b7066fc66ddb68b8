// Package session glues the agent runtime to the control channel: it
// demuxes inbound init/user_message/cancel/answer messages, drives the
// agent loop, and serializes the resulting stream events back out.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loopkit/loopd/internal/agent"
	"github.com/loopkit/loopd/internal/mcp"
	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/internal/tools/question"
	"github.com/loopkit/loopd/pkg/models"
)

// Emitter delivers one outbound stream event to the control channel.
type Emitter func(models.StreamEvent)

// Config carries the per-process dispatcher dependencies. The per
// conversation pieces arrive with the init message.
type Config struct {
	Workspace tools.Workspace
	Logger    *slog.Logger
	Metrics   *tools.Metrics

	// SearchEndpoint overrides the web_search backend URL.
	SearchEndpoint string

	// AgentOptions are passed to every agent the dispatcher creates.
	// Tests use them to script the model stream.
	AgentOptions []agent.Option
}

// inbound is the union of all control-channel message shapes, discriminated
// by Type.
type inbound struct {
	Type string `json:"type"`

	// init
	ConversationID string           `json:"conversation_id"`
	Provider       string           `json:"provider"`
	Model          string           `json:"model"`
	APIKey         string           `json:"api_key"`
	EndpointURL    string           `json:"endpoint_url"`
	SystemPrompt   string           `json:"system_prompt"`
	ToolsEnabled   []string         `json:"tools_enabled"`
	MCPServers     []mcp.ServerSpec `json:"mcp_servers"`
	History        []models.Message `json:"history"`
	ThinkingBudget int              `json:"thinking_budget"`
	DeepThinking   bool             `json:"deep_thinking"`

	SubagentProvider    string `json:"subagent_provider"`
	SubagentModel       string `json:"subagent_model"`
	SubagentAPIKey      string `json:"subagent_api_key"`
	SubagentEndpointURL string `json:"subagent_endpoint_url"`

	// user_message
	Content string `json:"content"`

	// answer
	QuestionnaireID string          `json:"questionnaire_id"`
	Answers         []models.Answer `json:"answers"`
}

// Dispatcher owns one control-channel session: at most one agent, its tool
// registry, its MCP clients, and its pending questionnaires. Dispatch never
// returns an error; every failure becomes an error event and the session
// stays open.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	emit   Emitter

	mu       sync.Mutex
	agent    *agent.Agent
	registry *tools.Registry
	manager  *mcp.Manager
	broker   *question.Broker

	inFlight sync.WaitGroup
}

// NewDispatcher creates a dispatcher that emits outbound events through
// emit.
func NewDispatcher(cfg Config, emit Emitter) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		logger: logger.With("component", "session"),
		emit:   emit,
	}
}

// Dispatch handles one inbound control-channel message.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.emit(models.ErrorEvent(models.ErrCodeAgentError, fmt.Sprintf("malformed message: %v", err)))
		return
	}

	switch msg.Type {
	case "init":
		d.handleInit(ctx, &msg)
	case "user_message":
		d.handleUserMessage(ctx, &msg)
	case "cancel":
		d.handleCancel()
	case "answer":
		d.handleAnswer(&msg)
	default:
		d.emit(models.ErrorEvent(models.ErrCodeAgentError, fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// handleInit builds a fresh agent from the init payload. A repeated init
// replaces the previous conversation: the old MCP clients shut down before
// the new set is attached.
func (d *Dispatcher) handleInit(ctx context.Context, msg *inbound) {
	agentCfg := agent.Config{
		ConversationID: msg.ConversationID,
		Provider:       msg.Provider,
		Model:          msg.Model,
		APIKey:         msg.APIKey,
		EndpointURL:    msg.EndpointURL,
		SystemPrompt:   msg.SystemPrompt,
		ToolsEnabled:   msg.ToolsEnabled,
		MCPServers:     msg.MCPServers,
		History:        msg.History,
		ThinkingBudget: msg.ThinkingBudget,
		DeepThinking:   msg.DeepThinking,

		SubagentProvider:    msg.SubagentProvider,
		SubagentModel:       msg.SubagentModel,
		SubagentAPIKey:      msg.SubagentAPIKey,
		SubagentEndpointURL: msg.SubagentEndpointURL,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.agent != nil {
		d.agent.Cancel()
	}
	if d.manager != nil {
		d.manager.Shutdown()
		d.manager = nil
	}

	broker := question.NewBroker()
	registry := d.buildRegistry(agentCfg, broker)

	opts := append([]agent.Option{
		agent.WithLogger(d.logger),
		agent.WithMetrics(d.cfg.Metrics),
	}, d.cfg.AgentOptions...)
	a, err := agent.New(agentCfg, registry, opts...)
	if err != nil {
		d.emit(models.ErrorEvent(models.ErrCodeAgentError, fmt.Sprintf("init failed: %v", err)))
		return
	}

	manager := mcp.NewManager(registry, d.logger)
	if len(agentCfg.MCPServers) > 0 {
		if err := manager.Configure(ctx, agentCfg.MCPServers); err != nil {
			d.emit(models.ErrorEvent(models.ErrCodeAgentError, fmt.Sprintf("mcp configuration: %v", err)))
		}
	}

	d.agent = a
	d.registry = registry
	d.manager = manager
	d.broker = broker

	d.logger.Info("conversation initialized",
		"conversation_id", agentCfg.ConversationID,
		"provider", agentCfg.Provider,
		"model", agentCfg.Model,
		"tools", len(registry.List()))
}

func (d *Dispatcher) handleUserMessage(ctx context.Context, msg *inbound) {
	d.mu.Lock()
	a := d.agent
	d.mu.Unlock()

	if a == nil {
		d.emit(models.ErrorEvent(models.ErrCodeNotInitialized, "no conversation initialized"))
		return
	}

	events, err := a.HandleMessage(ctx, msg.Content)
	if err != nil {
		d.emit(models.ErrorEvent(models.ErrCodeAgentError, err.Error()))
		return
	}

	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		for ev := range events {
			d.emit(ev)
		}
	}()
}

// handleCancel stops the current generation. Cancelling with no agent or no
// in-flight turn is harmless.
func (d *Dispatcher) handleCancel() {
	d.mu.Lock()
	a := d.agent
	d.mu.Unlock()
	if a != nil {
		a.Cancel()
	}
}

// handleAnswer resolves a pending questionnaire. Answers for an unknown or
// already resolved questionnaire are ignored.
func (d *Dispatcher) handleAnswer(msg *inbound) {
	d.mu.Lock()
	broker := d.broker
	d.mu.Unlock()
	if broker == nil {
		return
	}
	if !broker.Submit(msg.QuestionnaireID, msg.Answers) {
		d.logger.Debug("duplicate answer ignored", "questionnaire_id", msg.QuestionnaireID)
	}
}

// Close cancels any in-flight turn, waits for its event forwarding to
// drain, and shuts the MCP clients down.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	a := d.agent
	manager := d.manager
	d.mu.Unlock()

	if a != nil {
		a.Cancel()
	}
	d.inFlight.Wait()
	if manager != nil {
		manager.Shutdown()
	}
}
