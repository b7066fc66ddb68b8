package mcp

import (
	"log/slog"
	"strings"
)

// separators are the prefixes under which MCP servers commonly namespace
// their tool names.
var separators = []string{"__", ".", ":", "/"}

// SplitToolName splits a possibly namespaced tool name into server prefix
// and short name. The prefix is empty when the name carries no separator.
func SplitToolName(name string) (server, short string) {
	for _, sep := range separators {
		if idx := strings.Index(name, sep); idx > 0 {
			return name[:idx], name[idx+len(sep):]
		}
	}
	return "", name
}

// ToolMeta is the discovery-time description of one MCP tool: its advertised
// name and the raw metadata map the server attached to it.
type ToolMeta struct {
	Name string

	// Server is the owning server identity when the server states it in
	// metadata. Empty when only the name prefix can identify it.
	Server string

	// Metadata is the tool object as advertised, including any annotations.
	Metadata map[string]any
}

// ServerIdentity returns the server a tool belongs to: stated metadata
// first, then the tool name prefix.
func (m ToolMeta) ServerIdentity() string {
	if m.Server != "" {
		return m.Server
	}
	server, _ := SplitToolName(m.Name)
	return server
}

// ShortName returns the tool name without its server prefix.
func (m ToolMeta) ShortName() string {
	_, short := SplitToolName(m.Name)
	return short
}

// metadataReadOnlyKeys are checked in order on the tool's own metadata.
var metadataReadOnlyKeys = []string{"read_only", "readOnly", "readonly", "readOnlyHint"}

// ResolveReadOnly classifies an MCP tool as read-only. The chain is:
// the owning server's explicit override for the tool's short name; then an
// override key present in exactly one server's map (logged, since this
// matches by name alone); then the tool's own metadata; then false.
// An override key present in several servers' maps is ambiguous and is
// never guessed from.
func ResolveReadOnly(specs []ServerSpec, meta ToolMeta, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	short := meta.ShortName()
	identity := meta.ServerIdentity()

	for _, spec := range specs {
		if spec.Name != identity {
			continue
		}
		if raw, ok := spec.ReadOnlyOverrides[short]; ok {
			if verdict, ok := parseOverride(raw); ok {
				return verdict
			}
		}
	}

	matches := 0
	var unique any
	var uniqueServer string
	for _, spec := range specs {
		if raw, ok := spec.ReadOnlyOverrides[short]; ok {
			matches++
			unique = raw
			uniqueServer = spec.Name
		}
	}
	switch {
	case matches == 1:
		if verdict, ok := parseOverride(unique); ok {
			logger.Warn("resolved read-only override by globally unique tool name",
				"tool", meta.Name, "override_server", uniqueServer)
			return verdict
		}
	case matches > 1:
		logger.Warn("read-only override ambiguous across servers; ignoring",
			"tool", meta.Name, "servers", matches)
	}

	for _, key := range metadataReadOnlyKeys {
		if raw, ok := meta.Metadata[key]; ok {
			if verdict, ok := parseOverride(raw); ok {
				return verdict
			}
		}
	}
	if annotations, ok := meta.Metadata["annotations"].(map[string]any); ok {
		if raw, ok := annotations["readOnlyHint"]; ok {
			if verdict, ok := parseOverride(raw); ok {
				return verdict
			}
		}
	}
	return false
}

// parseOverride interprets an override value. Booleans pass through; the
// strings 1/true/yes and 0/false/no are accepted case-insensitively.
func parseOverride(raw any) (verdict, ok bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true, true
		case "0", "false", "no":
			return false, true
		}
	}
	return false, false
}
