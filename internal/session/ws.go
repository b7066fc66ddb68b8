package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loopkit/loopd/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsSendBuffer      = 64
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
)

// outboundFrame is a serialized StreamEvent plus a monotonic sequence
// number, so the backend can detect gaps and reorder on reconnect.
type outboundFrame struct {
	event models.StreamEvent
	seq   int64
}

// MarshalJSON merges the seq key into the event's own payload. The event
// serializes itself with a fixed per-type key set, so the frame cannot be a
// plain embedded struct.
func (f outboundFrame) MarshalJSON() ([]byte, error) {
	encoded, err := json.Marshal(f.event)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return nil, err
	}
	payload["seq"] = f.seq
	return json.Marshal(payload)
}

// ClientConfig configures the control-channel connection.
type ClientConfig struct {
	// URL is the backend websocket endpoint (BACKEND_WS_URL).
	URL string

	// Token authenticates the container (CONTAINER_TOKEN), sent as a
	// bearer token on the dial request.
	Token string

	Logger     *slog.Logger
	Dispatcher Config
}

// Client dials the backend control channel and pumps messages between the
// websocket and a Dispatcher.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	send   chan []byte
	seq    atomic.Int64
}

// NewClient creates a control-channel client.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "ws"),
		send:   make(chan []byte, wsSendBuffer),
	}
}

// Run dials the backend and serves the session until ctx ends or the
// connection drops.
func (c *Client) Run(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial control channel: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dispatcher := NewDispatcher(c.cfg.Dispatcher, c.emitEvent)
	defer dispatcher.Close()

	go c.writeLoop(ctx, conn)

	conn.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	c.logger.Info("control channel connected", "url", c.cfg.URL)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read control channel: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		dispatcher.Dispatch(ctx, data)
	}
}

// emitEvent frames and enqueues one stream event. A full send buffer drops
// the event rather than stalling the agent loop.
func (c *Client) emitEvent(ev models.StreamEvent) {
	data, err := json.Marshal(outboundFrame{event: ev, seq: c.seq.Add(1)})
	if err != nil {
		c.logger.Error("marshal outbound event", "type", ev.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full; dropping event", "type", ev.Type)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("write control channel", "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
