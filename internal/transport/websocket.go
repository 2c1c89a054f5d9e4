package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statcode-ai/mcpclient/internal/logger"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

// WebSocket is the websocket transport. A single instance supports
// repeated connect/disconnect cycles; each cycle owns a fresh connection
// and read pump.
type WebSocket struct {
	cfg      Config
	log      *logger.Logger
	handlers handlers

	mu        sync.Mutex
	conn      *websocket.Conn
	stop      chan struct{}
	wg        sync.WaitGroup
	connected atomic.Bool
	closing   atomic.Bool
	closed    atomic.Bool
}

// NewWebSocket creates a websocket transport for cfg.
func NewWebSocket(cfg Config, log *logger.Logger) *WebSocket {
	if log == nil {
		log = logger.Global()
	}
	return &WebSocket{
		cfg: cfg,
		log: log.WithPrefix("ws"),
	}
}

// Connect dials the endpoint and starts the read and ping pumps.
func (t *WebSocket) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return protocol.NewConnectionError("transport is closed")
	}
	if t.connected.Load() {
		return protocol.NewConnectionError("already connected")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  t.cfg.connectTimeout(),
		EnableCompression: t.cfg.Compression,
	}
	if t.cfg.TLS != nil {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: t.cfg.TLS.InsecureSkipVerify}
	}

	header := http.Header{}
	if t.cfg.Authentication != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Authentication)
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.Endpoint, header)
	if err != nil {
		return protocol.NewConnectionError(
			fmt.Sprintf("websocket dial %s: %v", t.cfg.Endpoint, err))
	}

	t.mu.Lock()
	t.conn = conn
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	t.closing.Store(false)
	t.connected.Store(true)

	t.wg.Add(2)
	go t.readPump(conn)
	go t.pingPump(conn, stop)

	t.handlers.connect()
	t.log.Debug("connected to %s", t.cfg.Endpoint)
	return nil
}

// readPump reads wire messages until the connection dies. It owns the
// disconnect notification for its connection.
func (t *WebSocket) readPump(conn *websocket.Conn) {
	defer t.wg.Done()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.teardown(conn, err)
			return
		}

		resp, perr := protocol.ParseResponse(data)
		if perr != nil {
			t.log.Warn("dropping unparseable message: %v", perr)
			t.handlers.error(perr)
			continue
		}
		t.handlers.message(resp)
	}
}

// pingPump keeps the connection alive; the server's pongs extend the read
// deadline in the pong handler above.
func (t *WebSocket) pingPump(conn *websocket.Conn, stop chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// teardown runs once per connection, from the read pump.
func (t *WebSocket) teardown(conn *websocket.Conn, err error) {
	t.mu.Lock()
	current := t.conn == conn
	if current {
		t.conn = nil
		if t.stop != nil {
			close(t.stop)
			t.stop = nil
		}
	}
	t.mu.Unlock()

	if !current {
		return
	}
	t.connected.Store(false)
	_ = conn.Close()

	if t.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		t.handlers.disconnect(nil)
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		t.log.Warn("connection lost: %v", err)
	}
	t.handlers.disconnect(err)
}

// IsConnected reports whether the transport has a live connection.
func (t *WebSocket) IsConnected() bool {
	return t.connected.Load()
}

// Send serializes the request and writes it as a single text frame.
func (t *WebSocket) Send(req *protocol.Request) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || !t.connected.Load() {
		return protocol.NewConnectionError("transport not connected")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	// Gorilla connections support one concurrent writer; serialize here
	// rather than in every caller.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return protocol.NewConnectionError("transport not connected")
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if werr := t.conn.WriteMessage(websocket.TextMessage, data); werr != nil {
		return protocol.NewConnectionError(fmt.Sprintf("websocket write: %v", werr))
	}
	return nil
}

// Disconnect performs a best-effort close handshake and tears the
// connection down. It never fails.
func (t *WebSocket) Disconnect() {
	t.closing.Store(true)

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	t.wg.Wait()
}

// Close releases all resources; the transport cannot be reused.
func (t *WebSocket) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.Disconnect()
	return nil
}

// OnMessage registers the inbound message handler.
func (t *WebSocket) OnMessage(fn func(*protocol.Response)) { t.handlers.setMessage(fn) }

// OnConnect registers the connection-established handler.
func (t *WebSocket) OnConnect(fn func()) { t.handlers.setConnect(fn) }

// OnDisconnect registers the connection-lost handler.
func (t *WebSocket) OnDisconnect(fn func(error)) { t.handlers.setDisconnect(fn) }

// OnError registers the transport error handler.
func (t *WebSocket) OnError(fn func(error)) { t.handlers.setError(fn) }
