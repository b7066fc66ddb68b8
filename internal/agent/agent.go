// Package agent implements the agentic loop: it alternates between model
// streaming calls and tool executions until the model produces a turn with
// no tool calls, emitting stream events along the way.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/loopkit/loopd/internal/provider"
	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// MaxIterations bounds the model-call/tool-execution cycle for one user
// message.
const MaxIterations = 20

const defaultMaxTokens = 8192

// Agent owns one conversation: its history, its provider stream, and its
// tool registry. At most one message is streamed at a time.
type Agent struct {
	cfg      Config
	contract *provider.Contract
	streamer provider.Streamer
	registry *tools.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *tools.Metrics

	mu        sync.Mutex
	history   []models.Message
	streaming bool
	cancelRun context.CancelFunc
	cancelled atomic.Bool
}

// Option customizes Agent construction.
type Option func(*Agent)

// WithLogger sets the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracer sets the tracer used to span each handled message.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *tools.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithStreamer overrides the provider streamer. Tests use this to script
// model responses.
func WithStreamer(s provider.Streamer) Option {
	return func(a *Agent) { a.streamer = s }
}

// New creates an agent for one conversation. The history starts with the
// system prompt followed by any prior entries from the config.
func New(cfg Config, registry *tools.Registry, opts ...Option) (*Agent, error) {
	if cfg.ConversationID == "" {
		return nil, errors.New("agent: conversation id is required")
	}
	a := &Agent{
		cfg:      cfg,
		contract: provider.ContractFor(cfg.Provider),
		registry: registry,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("loopd"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.streamer == nil {
		streamer, err := provider.NewStreamer(cfg.Provider, provider.Options{
			APIKey:   cfg.APIKey,
			Endpoint: cfg.EndpointURL,
		})
		if err != nil {
			return nil, err
		}
		a.streamer = streamer
	}

	a.history = append(a.history, models.SystemMessage(cfg.systemPrompt()))
	a.history = append(a.history, cfg.History...)
	return a, nil
}

// Config returns the agent's immutable configuration.
func (a *Agent) Config() Config { return a.cfg }

// History returns a copy of the conversation history.
func (a *Agent) History() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Message, len(a.history))
	copy(out, a.history)
	return out
}

// Cancel stops the in-flight generation at the next event boundary.
// Cancelling an idle agent, or cancelling twice, is harmless.
func (a *Agent) Cancel() {
	a.cancelled.Store(true)
	a.mu.Lock()
	if a.cancelRun != nil {
		a.cancelRun()
	}
	a.mu.Unlock()
}

// HandleMessage drives one assistant turn for a user message. It appends
// the user message to history and returns the event stream for the turn;
// the channel closes when the turn ends. A second call while a turn is in
// flight fails.
func (a *Agent) HandleMessage(ctx context.Context, content string) (<-chan models.StreamEvent, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("agent: message content is empty")
	}

	a.mu.Lock()
	if a.streaming {
		a.mu.Unlock()
		return nil, errors.New("agent: a message is already streaming")
	}
	a.streaming = true
	a.cancelled.Store(false)
	runCtx, cancel := context.WithCancel(ctx)
	a.cancelRun = cancel
	a.history = append(a.history, models.UserMessage(content))
	a.mu.Unlock()

	events := make(chan models.StreamEvent)
	go a.run(runCtx, cancel, events)
	return events, nil
}

func (a *Agent) run(ctx context.Context, cancel context.CancelFunc, events chan<- models.StreamEvent) {
	defer func() {
		close(events)
		cancel()
		a.mu.Lock()
		a.streaming = false
		a.cancelRun = nil
		a.mu.Unlock()
	}()

	ctx, span := a.tracer.Start(ctx, "agent.handle_message",
		trace.WithAttributes(attribute.String("conversation.id", a.cfg.ConversationID)))
	defer span.End()

	var blocks []models.TurnBlock
	hasToolBlocks := false
	usage := models.TokenUsage{}

	for iteration := 0; iteration < MaxIterations; iteration++ {
		if a.cancelled.Load() {
			return
		}
		if a.metrics != nil {
			a.metrics.LoopIterations.Inc()
		}

		chunks, err := a.streamer.Stream(ctx, a.buildRequest())
		if err != nil {
			a.streamError(events, err)
			return
		}

		var full strings.Builder
		var pendingText strings.Builder
		var acc accumulator
		var streamErr error
		aborted := false

		for chunk := range chunks {
			if aborted || streamErr != nil {
				continue
			}
			if a.cancelled.Load() {
				aborted = true
				continue
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
				continue
			}
			if chunk.Content != "" {
				full.WriteString(chunk.Content)
				pendingText.WriteString(chunk.Content)
				events <- models.AssistantDeltaEvent(chunk.Content)
			}
			for _, block := range chunk.Blocks {
				for _, delta := range a.contract.ThinkingDeltas(block) {
					events <- models.ThinkingDeltaEvent(delta)
				}
			}
			for _, fragment := range chunk.ToolCalls {
				if acc.add(fragment) {
					if pendingText.Len() > 0 {
						blocks = append(blocks, models.TurnBlock{Type: "text", Content: pendingText.String()})
						pendingText.Reset()
					}
				}
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		}

		if streamErr != nil {
			a.streamError(events, streamErr)
			return
		}
		if aborted {
			return
		}
		if pendingText.Len() > 0 {
			blocks = append(blocks, models.TurnBlock{Type: "text", Content: pendingText.String()})
			pendingText.Reset()
		}

		calls := acc.completed()
		if len(calls) == 0 {
			a.appendHistory(models.AssistantMessage(full.String(), nil))
			if !hasToolBlocks {
				blocks = nil
			}
			events <- models.CompleteEvent(full.String(), blocks, usage)
			return
		}

		a.appendHistory(models.AssistantMessage(full.String(), calls))
		for _, call := range calls {
			if a.cancelled.Load() {
				return
			}
			blocks = append(blocks, models.TurnBlock{
				Type:  "tool_call",
				ID:    call.ID,
				Name:  call.Name,
				Input: call.Args,
			})
			hasToolBlocks = true

			events <- models.ToolCallEvent(call)
			result := a.registry.Execute(ctx, call.Name, callParams(call))
			events <- models.ToolResultEvent(call.ID, result)
			a.appendHistory(models.ToolMessage(result.ReplyContent(), call.ID))
		}
	}

	events <- models.ErrorEvent(models.ErrCodeMaxIterations,
		fmt.Sprintf("no final answer after %d iterations", MaxIterations))
}

func (a *Agent) streamError(events chan<- models.StreamEvent, err error) {
	if a.metrics != nil {
		a.metrics.StreamErrors.Inc()
	}
	if errors.Is(err, context.Canceled) {
		events <- models.ErrorEvent(models.ErrCodeCancelled, "generation cancelled")
		return
	}
	a.logger.Error("model stream failed",
		"conversation_id", a.cfg.ConversationID, "error", err)
	events <- models.ErrorEvent(models.ErrCodeAgentError, err.Error())
}

func (a *Agent) appendHistory(msg models.Message) {
	a.mu.Lock()
	a.history = append(a.history, msg)
	a.mu.Unlock()
}

// buildRequest snapshots the history, normalizes replayed content per the
// provider contract, and attaches the tool catalogue.
func (a *Agent) buildRequest() *provider.Request {
	a.mu.Lock()
	messages := make([]models.Message, len(a.history))
	copy(messages, a.history)
	a.mu.Unlock()

	for i := range messages {
		messages[i].Content = a.contract.NormalizeHistory(messages[i].Content)
	}

	req := &provider.Request{
		Model:          a.cfg.Model,
		System:         a.cfg.systemPrompt(),
		Messages:       messages,
		MaxTokens:      defaultMaxTokens,
		DeepThinking:   a.cfg.DeepThinking,
		ThinkingBudget: a.cfg.ThinkingBudget,
	}
	if req.ThinkingBudget <= 0 {
		req.ThinkingBudget = defaultMaxTokens
	}
	for _, tool := range a.registry.List() {
		req.Tools = append(req.Tools, provider.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	return req
}

func callParams(call models.ToolCall) json.RawMessage {
	if call.ArgsRaw != "" {
		return json.RawMessage(call.ArgsRaw)
	}
	encoded, err := json.Marshal(call.Args)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return encoded
}
