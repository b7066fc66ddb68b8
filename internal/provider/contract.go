// Package provider translates between the provider-agnostic agent core and
// each LLM backend's concrete quirks: token-budget parameter names,
// thinking/reasoning kwargs, streamed block shapes, and history hygiene.
package provider

import "strings"

// Family identifies which quirk set a provider belongs to.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGoogle    Family = "google"
	FamilyMistral   Family = "mistral"
	FamilyUnknown   Family = "unknown"
)

// FamilyFor maps a provider name to its family. Names are matched on the
// normalized lowercase form; unrecognized providers fall back to unknown.
func FamilyFor(provider string) Family {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai", "azure", "azure-openai":
		return FamilyOpenAI
	case "anthropic":
		return FamilyAnthropic
	case "google", "gemini", "vertex":
		return FamilyGoogle
	case "mistral":
		return FamilyMistral
	default:
		return FamilyUnknown
	}
}

// Capabilities is the static capability record for one provider family.
type Capabilities struct {
	TokenLimitParam        string
	SupportsReasoning      bool
	SupportsNativeThinking bool
	SupportsCacheHints     bool
}

var capabilityTable = map[Family]Capabilities{
	FamilyOpenAI:    {TokenLimitParam: "max_completion_tokens", SupportsReasoning: true},
	FamilyAnthropic: {TokenLimitParam: "max_tokens", SupportsNativeThinking: true, SupportsCacheHints: true},
	FamilyGoogle:    {TokenLimitParam: "max_output_tokens", SupportsNativeThinking: true},
	FamilyMistral:   {TokenLimitParam: "max_tokens"},
}

var genericCapabilities = Capabilities{TokenLimitParam: "max_tokens"}

// CapabilitiesFor returns the capability record for a provider, falling back
// to the generic record for unknown providers.
func CapabilitiesFor(provider string) Capabilities {
	if caps, ok := capabilityTable[FamilyFor(provider)]; ok {
		return caps
	}
	return genericCapabilities
}

// Contract carries the per-family translation rules.
type Contract struct {
	family Family
	caps   Capabilities
}

// ContractFor builds the contract for a provider name.
func ContractFor(provider string) *Contract {
	return &Contract{family: FamilyFor(provider), caps: CapabilitiesFor(provider)}
}

// Family returns the provider family the contract serves.
func (c *Contract) Family() Family { return c.family }

// Capabilities returns the static capability record.
func (c *Contract) Capabilities() Capabilities { return c.caps }

// BudgetKwargs renders the token budget under the family's parameter name.
func (c *Contract) BudgetKwargs(budget int) map[string]any {
	return map[string]any{c.caps.TokenLimitParam: budget}
}

// ThinkingKwargs extends the budget kwargs with the family's thinking or
// reasoning configuration.
func (c *Contract) ThinkingKwargs(budget int) map[string]any {
	kwargs := c.BudgetKwargs(budget)
	switch c.family {
	case FamilyOpenAI:
		if c.caps.SupportsReasoning {
			kwargs["reasoning"] = map[string]any{"effort": "high", "summary": "auto"}
		}
	case FamilyAnthropic:
		kwargs["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": maxInt(budget-1, 0),
		}
	case FamilyGoogle:
		kwargs["thinking_budget"] = maxInt(budget-1, 0)
	}
	return kwargs
}

// ThinkingDeltas extracts thinking text from a streamed content block. The
// default handles {type: thinking}; OpenAI additionally unpacks reasoning
// blocks with summary segments.
func (c *Contract) ThinkingDeltas(block map[string]any) []string {
	var deltas []string
	switch block["type"] {
	case "thinking":
		if s, ok := block["thinking"].(string); ok && s != "" {
			deltas = append(deltas, s)
		}
	case "reasoning":
		if c.family != FamilyOpenAI {
			return nil
		}
		if summary, ok := block["summary"].([]any); ok {
			for _, entry := range summary {
				if m, ok := entry.(map[string]any); ok {
					if s, ok := m["text"].(string); ok && s != "" {
						deltas = append(deltas, s)
					}
				}
			}
		}
		if s, ok := block["reasoning"].(string); ok && s != "" {
			deltas = append(deltas, s)
		}
	}
	return deltas
}

// TextDelta extracts the text of a {type: text} block, empty otherwise.
func (c *Contract) TextDelta(block map[string]any) string {
	if block["type"] == "text" {
		if s, ok := block["text"].(string); ok {
			return s
		}
	}
	return ""
}

// NormalizeHistory scrubs persisted message content before it is replayed to
// the provider. Non-list content passes through unchanged. Lists drop empty
// text and thinking blocks; for OpenAI, server-owned identifier keys are
// stripped recursively because sending them back invalidates replay.
func (c *Contract) NormalizeHistory(content any) any {
	list, ok := content.([]any)
	if !ok {
		return content
	}
	out := make([]any, 0, len(list))
	for _, entry := range list {
		block, ok := entry.(map[string]any)
		if !ok {
			out = append(out, entry)
			continue
		}
		if emptyBlock(block, "text") || emptyBlock(block, "thinking") {
			continue
		}
		if c.family == FamilyOpenAI {
			entry = stripServerIDs(block)
		}
		out = append(out, entry)
	}
	return out
}

func emptyBlock(block map[string]any, kind string) bool {
	if block["type"] != kind {
		return false
	}
	s, ok := block[kind].(string)
	return ok && s == ""
}

var serverIDKeys = []string{"id", "item_id", "response_id"}

var serverIDPrefixes = []string{"rs_", "resp_", "msg_", "item_"}

// stripServerIDs removes server-owned identifier keys at any depth. Only
// string values carrying a known prefix are removed; other values under the
// same key names are preserved.
func stripServerIDs(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if isServerID(key, val) {
				continue
			}
			out[key] = stripServerIDs(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			out[i] = stripServerIDs(entry)
		}
		return out
	default:
		return value
	}
}

func isServerID(key string, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	matched := false
	for _, k := range serverIDKeys {
		if key == k {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, prefix := range serverIDPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
