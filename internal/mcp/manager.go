package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loopkit/loopd/internal/tools"
)

// toolListChangedMethod is the server notification that invalidates the
// bridged tool set.
const toolListChangedMethod = "notifications/tools/list_changed"

// Manager owns the MCP connections of one agent and bridges discovered
// tools into its registry. Configure replaces the whole server set; the
// old clients are shut down before the new ones come up. Each connected
// server gets a watcher that re-bridges its tools when the server reports
// a tool list change.
type Manager struct {
	registry *tools.Registry
	logger   *slog.Logger

	mu         sync.Mutex
	specs      []ServerSpec
	clients    map[string]*Client
	registered map[string][]string

	watchers sync.WaitGroup
}

// NewManager creates a manager that registers bridged tools into registry.
func NewManager(registry *tools.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		registry:   registry,
		logger:     logger.With("component", "mcp"),
		clients:    make(map[string]*Client),
		registered: make(map[string][]string),
	}
}

// Configure connects the given servers and registers their tools. A server
// that fails validation or connection is logged and skipped; the remaining
// servers still come up. The first error is returned for diagnostics.
func (m *Manager) Configure(ctx context.Context, specs []ServerSpec) error {
	m.Shutdown()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs = specs

	var firstErr error
	fail := func(spec ServerSpec, msg string, err error) {
		m.logger.Error(msg, "server", spec.Name, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	for i := range specs {
		spec := specs[i]
		if err := spec.Validate(); err != nil {
			fail(spec, "invalid MCP server spec", err)
			continue
		}

		client := NewClient(&spec, m.logger)
		if err := client.Connect(ctx); err != nil {
			fail(spec, "failed to connect to MCP server", err)
			continue
		}
		m.clients[spec.Name] = client
		m.bridgeLocked(spec.Name, client)

		m.logger.Info("MCP server bridged",
			"server", spec.Name,
			"name", client.ServerInfo().Name,
			"tools", len(m.registered[spec.Name]))

		m.watchers.Add(1)
		go m.watchEvents(spec.Name, client)
	}
	return firstErr
}

// bridgeLocked replaces the registered tools of one server with the
// client's current tool list. Caller holds m.mu.
func (m *Manager) bridgeLocked(server string, client *Client) {
	for _, name := range m.registered[server] {
		m.registry.Unregister(name)
	}
	delete(m.registered, server)

	used := make(map[string]struct{})
	for _, names := range m.registered {
		for _, name := range names {
			used[name] = struct{}{}
		}
	}

	discovered := append([]*MCPTool(nil), client.Tools()...)
	sort.Slice(discovered, func(a, b int) bool {
		return discovered[a].Name < discovered[b].Name
	})
	spec := client.Spec()
	for _, remote := range discovered {
		m.registerTool(*spec, client, remote, used)
	}
}

// registerTool bridges one remote tool into the registry under a safe
// name. Caller holds m.mu.
func (m *Manager) registerTool(spec ServerSpec, caller ToolCaller, remote *MCPTool, used map[string]struct{}) {
	metadata := make(map[string]any, len(remote.Annotations)+1)
	for k, v := range remote.Annotations {
		metadata[k] = v
	}
	if remote.Annotations != nil {
		metadata["annotations"] = remote.Annotations
	}
	meta := ToolMeta{
		Name:     remote.Name,
		Server:   spec.Name,
		Metadata: metadata,
	}

	name := safeToolName(spec.Name, remote.Name, used)
	bridge := NewToolBridge(caller, spec.Name, remote, name)
	m.registry.RegisterWithCapabilities(bridge, tools.Capabilities{
		Source:    tools.SourceMCP,
		ReadOnly:  ResolveReadOnly(m.specs, meta, m.logger),
		MCPServer: spec.Name,
	})
	m.registered[spec.Name] = append(m.registered[spec.Name], name)
}

// watchEvents consumes server notifications until the client's transport
// closes its channel. A tools/list_changed notification refreshes the
// cached list and re-bridges the server's tools.
func (m *Manager) watchEvents(server string, client *Client) {
	defer m.watchers.Done()

	for notif := range client.Events() {
		if notif.Method != toolListChangedMethod {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := client.RefreshTools(ctx)
		cancel()
		if err != nil {
			m.logger.Warn("failed to refresh tools after list change",
				"server", server, "error", err)
			continue
		}

		m.mu.Lock()
		// Skip if a reconfigure replaced this client in the meantime.
		if m.clients[server] != client {
			m.mu.Unlock()
			continue
		}
		m.bridgeLocked(server, client)
		count := len(m.registered[server])
		m.mu.Unlock()

		m.logger.Info("MCP tools re-bridged", "server", server, "tools", count)
	}
}

// Shutdown closes every client and unregisters the bridged tools. Safe to
// call on an unconfigured manager, and more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := m.clients
	registered := m.registered
	m.clients = make(map[string]*Client)
	m.registered = make(map[string][]string)
	m.specs = nil
	m.mu.Unlock()

	for name, client := range clients {
		if err := client.Close(); err != nil {
			m.logger.Warn("failed to close MCP client", "server", name, "error", err)
		}
	}
	for _, names := range registered {
		for _, name := range names {
			m.registry.Unregister(name)
		}
	}
	m.watchers.Wait()
}

// Client returns the client for a specific server.
func (m *Manager) Client(name string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, exists := m.clients[name]
	return client, exists
}

// RegisteredTools returns the names of the bridged tools in sorted order.
func (m *Manager) RegisteredTools() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, names := range m.registered {
		out = append(out, names...)
	}
	sort.Strings(out)
	return out
}
