package mcp

import (
	"context"
	"testing"
	"time"
)

func TestNewTransportStdio(t *testing.T) {
	spec := &ServerSpec{
		Name:      "test",
		Transport: TransportStdio,
		Command:   "echo",
	}

	transport := NewTransport(spec)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	_, ok := transport.(*StdioTransport)
	if !ok {
		t.Error("expected StdioTransport")
	}
}

func TestNewTransportHTTP(t *testing.T) {
	spec := &ServerSpec{
		Name:      "test",
		Transport: TransportHTTP,
		URL:       "https://example.com/mcp",
	}

	transport := NewTransport(spec)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	_, ok := transport.(*HTTPTransport)
	if !ok {
		t.Error("expected HTTPTransport")
	}
}

func TestNewTransportDefault(t *testing.T) {
	spec := &ServerSpec{
		Name:    "test",
		Command: "echo",
		// No transport type specified, should default to stdio
	}

	transport := NewTransport(spec)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	_, ok := transport.(*StdioTransport)
	if !ok {
		t.Error("expected StdioTransport as default")
	}
}

func TestNewStdioTransport(t *testing.T) {
	spec := &ServerSpec{
		Name:    "test-stdio",
		Command: "mcp-server",
		Args:    []string{"--config", "test.yaml"},
		Env:     map[string]string{"DEBUG": "true"},
		WorkDir: "/tmp",
		Timeout: 30 * time.Second,
	}

	transport := NewStdioTransport(spec)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if transport.spec != spec {
		t.Error("expected spec to be set")
	}
	if transport.inflight == nil {
		t.Error("expected inflight map to be initialized")
	}
	if transport.events == nil {
		t.Error("expected events channel to be initialized")
	}
}

func TestStdioTransportDispatch(t *testing.T) {
	transport := NewStdioTransport(&ServerSpec{Name: "test", Command: "echo"})

	waiter := make(chan *JSONRPCResponse, 1)
	transport.mu.Lock()
	transport.inflight[7] = waiter
	transport.mu.Unlock()

	transport.dispatch([]byte(`{"jsonrpc":"2.0","id":7,"result":{}}`))
	select {
	case resp := <-waiter:
		if id, ok := responseID(resp.ID); !ok || id != 7 {
			t.Errorf("response id = %v", resp.ID)
		}
	default:
		t.Fatal("response not routed to in-flight call")
	}

	transport.dispatch([]byte(`{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`))
	select {
	case notif := <-transport.events:
		if notif.Method != "notifications/tools/list_changed" {
			t.Errorf("notification method = %q", notif.Method)
		}
	default:
		t.Fatal("notification not routed to events channel")
	}
}

func TestStdioTransportConnected(t *testing.T) {
	transport := NewStdioTransport(&ServerSpec{Name: "test", Command: "echo"})

	if transport.Connected() {
		t.Error("expected Connected() to return false before Connect()")
	}
}

func TestStdioTransportEvents(t *testing.T) {
	transport := NewStdioTransport(&ServerSpec{Name: "test", Command: "echo"})

	events := transport.Events()
	if events == nil {
		t.Error("expected non-nil events channel")
	}
}

func TestNewHTTPTransport(t *testing.T) {
	spec := &ServerSpec{
		Name:    "test-http",
		URL:     "https://mcp.example.com/api",
		Headers: map[string]string{"Authorization": "Bearer token"},
		Timeout: 60 * time.Second,
	}

	transport := NewHTTPTransport(spec)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if transport.spec != spec {
		t.Error("expected spec to be set")
	}
	if transport.events == nil {
		t.Error("expected events channel to be initialized")
	}
}

func TestHTTPTransportDefaultTimeout(t *testing.T) {
	transport := NewHTTPTransport(&ServerSpec{Name: "test", URL: "https://mcp.example.com"})

	if transport.client.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", transport.client.Timeout)
	}
}

func TestHTTPTransportCustomTimeout(t *testing.T) {
	spec := &ServerSpec{
		Name:    "test",
		URL:     "https://mcp.example.com",
		Timeout: 60 * time.Second,
	}

	transport := NewHTTPTransport(spec)

	if transport.client.Timeout != 60*time.Second {
		t.Errorf("expected timeout 60s, got %v", transport.client.Timeout)
	}
}

func TestHTTPTransportConnected(t *testing.T) {
	transport := NewHTTPTransport(&ServerSpec{Name: "test", URL: "https://mcp.example.com"})

	if transport.Connected() {
		t.Error("expected Connected() to return false before Connect()")
	}
}

func TestStdioTransportConnectNoCommand(t *testing.T) {
	transport := NewStdioTransport(&ServerSpec{Name: "test"})

	err := transport.Connect(context.Background())
	if err == nil {
		t.Error("expected error for missing command")
	}
}

func TestHTTPTransportConnectNoURL(t *testing.T) {
	transport := NewHTTPTransport(&ServerSpec{Name: "test", Transport: TransportHTTP})

	err := transport.Connect(context.Background())
	if err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestStdioTransportCallNotConnected(t *testing.T) {
	transport := NewStdioTransport(&ServerSpec{Name: "test", Command: "echo"})

	_, err := transport.Call(context.Background(), "test", nil)
	if err == nil {
		t.Error("expected error when not connected")
	}
}

func TestHTTPTransportCallNotConnected(t *testing.T) {
	transport := NewHTTPTransport(&ServerSpec{Name: "test", URL: "https://mcp.example.com"})

	_, err := transport.Call(context.Background(), "test", nil)
	if err == nil {
		t.Error("expected error when not connected")
	}
}

func TestStdioTransportNotifyNotConnected(t *testing.T) {
	transport := NewStdioTransport(&ServerSpec{Name: "test", Command: "echo"})

	err := transport.Notify(context.Background(), "test", nil)
	if err == nil {
		t.Error("expected error when not connected")
	}
}

func TestHTTPTransportNotifyNotConnected(t *testing.T) {
	transport := NewHTTPTransport(&ServerSpec{Name: "test", URL: "https://mcp.example.com"})

	err := transport.Notify(context.Background(), "test", nil)
	if err == nil {
		t.Error("expected error when not connected")
	}
}
