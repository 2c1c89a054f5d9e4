// Package transport defines the capability contract the client engine
// requires from a wire transport, and provides WebSocket and HTTP
// implementations of it. The engine owns exactly one transport instance
// at a time and never reaches past this interface.
package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/statcode-ai/mcpclient/internal/logger"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

// Transport is the capability contract a wire implementation satisfies.
// Connect failures and send failures surface as connection errors;
// Disconnect is best-effort and never fails.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Send(req *protocol.Request) error

	OnMessage(handler func(*protocol.Response))
	OnConnect(handler func())
	OnDisconnect(handler func(reason error))
	OnError(handler func(err error))

	// Close releases all resources. The transport is not usable
	// afterwards.
	Close() error
}

// TLSConfig carries the TLS knobs recognized in transport configuration.
type TLSConfig struct {
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// Config describes how to reach the server.
type Config struct {
	// Type selects the implementation: "websocket" or "http".
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
	// TimeoutMs bounds connection establishment. Zero means 10s.
	TimeoutMs int `json:"timeout_ms,omitempty"`
	// RetryAttempts bounds transport-internal connect retries (HTTP
	// health probe). Request-level retries are a client concern.
	RetryAttempts int  `json:"retry_attempts,omitempty"`
	Compression   bool `json:"compression,omitempty"`
	// Authentication is an opaque credential attached as a bearer
	// token. The client never interprets it.
	Authentication string     `json:"authentication,omitempty"`
	TLS            *TLSConfig `json:"tls,omitempty"`
}

const defaultConnectTimeout = 10 * time.Second

func (c Config) connectTimeout() time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return defaultConnectTimeout
}

// New builds a transport for the configured type.
func New(cfg Config, log *logger.Logger) (Transport, error) {
	switch strings.ToLower(cfg.Type) {
	case "websocket", "ws", "wss":
		return NewWebSocket(cfg, log), nil
	case "http", "https":
		return NewHTTP(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}
}

// handlers is the callback set shared by transport implementations. All
// invocations tolerate unset handlers.
type handlers struct {
	mu           sync.RWMutex
	onMessage    func(*protocol.Response)
	onConnect    func()
	onDisconnect func(error)
	onError      func(error)
}

func (h *handlers) setMessage(fn func(*protocol.Response)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

func (h *handlers) setConnect(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = fn
}

func (h *handlers) setDisconnect(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = fn
}

func (h *handlers) setError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = fn
}

func (h *handlers) message(resp *protocol.Response) {
	h.mu.RLock()
	fn := h.onMessage
	h.mu.RUnlock()
	if fn != nil {
		fn(resp)
	}
}

func (h *handlers) connect() {
	h.mu.RLock()
	fn := h.onConnect
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *handlers) disconnect(reason error) {
	h.mu.RLock()
	fn := h.onDisconnect
	h.mu.RUnlock()
	if fn != nil {
		fn(reason)
	}
}

func (h *handlers) error(err error) {
	h.mu.RLock()
	fn := h.onError
	h.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
