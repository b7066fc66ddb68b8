package agent

import (
	"github.com/loopkit/loopd/internal/mcp"
	"github.com/loopkit/loopd/pkg/models"
)

// defaultSystemPrompt is used when init supplies no system prompt.
const defaultSystemPrompt = "You are a capable software assistant working inside a sandboxed workspace. " +
	"Use the available tools to read, modify, and run code, and explain what you did."

// Config is the immutable per-conversation agent configuration. It is
// created once at init and never mutated afterwards.
type Config struct {
	ConversationID string

	Provider    string
	Model       string
	APIKey      string
	EndpointURL string

	SystemPrompt string
	ToolsEnabled []string
	MCPServers   []mcp.ServerSpec

	// History seeds the conversation with prior role/content entries.
	History []models.Message

	// Subagent overrides. Empty fields fall back to the parent values.
	SubagentProvider    string
	SubagentModel       string
	SubagentAPIKey      string
	SubagentEndpointURL string

	ThinkingBudget int
	DeepThinking   bool
}

// SubagentProviderName returns the provider the subagent should use.
func (c Config) SubagentProviderName() string {
	if c.SubagentProvider != "" {
		return c.SubagentProvider
	}
	return c.Provider
}

// SubagentModelName returns the model the subagent should use.
func (c Config) SubagentModelName() string {
	if c.SubagentModel != "" {
		return c.SubagentModel
	}
	return c.Model
}

// SubagentKey returns the API key the subagent should use.
func (c Config) SubagentKey() string {
	if c.SubagentAPIKey != "" {
		return c.SubagentAPIKey
	}
	return c.APIKey
}

// SubagentEndpoint returns the endpoint the subagent should use.
func (c Config) SubagentEndpoint() string {
	if c.SubagentEndpointURL != "" {
		return c.SubagentEndpointURL
	}
	return c.EndpointURL
}

func (c Config) systemPrompt() string {
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}
	return defaultSystemPrompt
}
