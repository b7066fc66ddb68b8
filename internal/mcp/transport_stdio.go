package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// defaultCallTimeout bounds a Call when the server spec sets no timeout.
const defaultCallTimeout = 30 * time.Second

// stdioLineLimit caps one stdout line (1MB).
const stdioLineLimit = 1 << 20

// StdioTransport speaks line-delimited JSON-RPC with a spawned server over
// its stdin and stdout. Responses are matched to in-flight calls by id;
// id-less messages surface on the notification channel, which closes when
// the process side of the pipe does.
type StdioTransport struct {
	spec   *ServerSpec
	logger *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	// writeMu serializes stdin writes so concurrent calls cannot
	// interleave lines.
	writeMu sync.Mutex

	mu       sync.Mutex
	inflight map[int64]chan *JSONRPCResponse

	nextID    atomic.Int64
	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	events    chan *JSONRPCNotification
	wg        sync.WaitGroup
}

// NewStdioTransport creates a stdio transport for the given server spec.
func NewStdioTransport(spec *ServerSpec) *StdioTransport {
	return &StdioTransport{
		spec:     spec,
		logger:   slog.Default().With("mcp_server", spec.Name, "transport", "stdio"),
		inflight: make(map[int64]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 100),
		done:     make(chan struct{}),
	}
}

// Connect spawns the server process and starts the stdout and stderr pumps.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if t.spec.Command == "" {
		return fmt.Errorf("command is required for stdio transport")
	}

	cmd := exec.CommandContext(ctx, t.spec.Command, t.spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range t.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = t.spec.WorkDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.connected.Store(true)
	t.logger.Info("started MCP server process",
		"command", t.spec.Command,
		"pid", cmd.Process.Pid)

	t.wg.Add(2)
	go t.readLoop(stdout)
	go t.drainStderr(stderr)
	return nil
}

// Close kills the server process and waits for the pumps to stop. Safe to
// call more than once.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		close(t.done)
		if t.stdin != nil {
			t.stdin.Close()
		}
		if t.cmd != nil && t.cmd.Process != nil {
			t.cmd.Process.Kill()
		}
		t.wg.Wait()
	})
	return nil
}

// Call sends a request and waits for the matching response.
func (t *StdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = encoded
	}

	waiter := make(chan *JSONRPCResponse, 1)
	t.mu.Lock()
	t.inflight[id] = waiter
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.inflight, id)
		t.mu.Unlock()
	}()

	if err := t.writeLine(req); err != nil {
		return nil, err
	}

	timeout := t.spec.Timeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}
	select {
	case resp := <-waiter:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-t.done:
		return nil, fmt.Errorf("transport closed")
	}
}

// Notify sends a notification; no response is expected.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = encoded
	}
	return t.writeLine(notif)
}

func (t *StdioTransport) writeLine(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Events returns the server notification channel. It closes when the
// process stops writing.
func (t *StdioTransport) Events() <-chan *JSONRPCNotification {
	return t.events
}

// Connected reports whether the transport is usable.
func (t *StdioTransport) Connected() bool {
	return t.connected.Load()
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	defer t.wg.Done()
	defer close(t.events)
	defer t.connected.Store(false)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, stdioLineLimit), stdioLineLimit)
	for scanner.Scan() {
		select {
		case <-t.done:
			return
		default:
		}
		if line := scanner.Bytes(); len(line) > 0 {
			t.dispatch(line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Error("stdout scanner error", "error", err)
	}
}

// dispatch routes one JSON-RPC message. Messages carrying an id answer an
// in-flight call; the rest are server notifications.
func (t *StdioTransport) dispatch(line []byte) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(line, &resp); err == nil && resp.ID != nil {
		id, ok := responseID(resp.ID)
		if !ok {
			t.logger.Warn("unexpected response id type", "id", resp.ID)
			return
		}
		t.mu.Lock()
		waiter := t.inflight[id]
		delete(t.inflight, id)
		t.mu.Unlock()
		if waiter != nil {
			waiter <- &resp
		}
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal(line, &notif); err != nil || notif.Method == "" {
		return
	}
	select {
	case t.events <- &notif:
	default:
		t.logger.Warn("notification channel full, dropping", "method", notif.Method)
	}
}

// responseID narrows a decoded JSON-RPC id to int64. Decoded JSON numbers
// arrive as float64.
func responseID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func (t *StdioTransport) drainStderr(stderr io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			t.logger.Debug("server stderr", "message", line)
		}
	}
}
