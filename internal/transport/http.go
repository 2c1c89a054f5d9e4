package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/statcode-ai/mcpclient/internal/logger"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

// HTTP is the request/response transport: every Send POSTs one request
// and delivers the decoded response through the message handler before
// returning. Connect probes the server's health endpoint.
type HTTP struct {
	cfg       Config
	log       *logger.Logger
	client    *http.Client
	handlers  handlers
	connected atomic.Bool
	closed    atomic.Bool
}

// NewHTTP creates an HTTP transport for cfg.
func NewHTTP(cfg Config, log *logger.Logger) *HTTP {
	if log == nil {
		log = logger.Global()
	}

	httpTransport := &http.Transport{}
	if cfg.TLS != nil {
		httpTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}
	}

	return &HTTP{
		cfg: cfg,
		log: log.WithPrefix("http"),
		client: &http.Client{
			Timeout:   cfg.connectTimeout(),
			Transport: httpTransport,
		},
	}
}

func (t *HTTP) healthURL() string {
	return strings.TrimSuffix(t.cfg.Endpoint, "/") + "/health"
}

// Connect verifies the endpoint is reachable via its health route. The
// probe is retried up to RetryAttempts times before giving up.
func (t *HTTP) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return protocol.NewConnectionError("transport is closed")
	}
	if t.connected.Load() {
		return protocol.NewConnectionError("already connected")
	}

	attempts := t.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return protocol.NewConnectionError(ctx.Err().Error())
			case <-time.After(time.Duration(i) * 250 * time.Millisecond):
			}
		}
		if lastErr = t.probe(ctx); lastErr == nil {
			t.connected.Store(true)
			t.handlers.connect()
			t.log.Debug("connected to %s", t.cfg.Endpoint)
			return nil
		}
	}
	return protocol.NewConnectionError(
		fmt.Sprintf("health probe %s: %v", t.healthURL(), lastErr))
}

func (t *HTTP) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.healthURL(), nil)
	if err != nil {
		return err
	}
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// IsConnected reports whether the health probe succeeded and the
// transport has not been disconnected since.
func (t *HTTP) IsConnected() bool {
	return t.connected.Load()
}

// Send POSTs the request and feeds the decoded response to the message
// handler. Delivery is synchronous: by the time Send returns without
// error, the correlation table has already seen the response.
func (t *HTTP) Send(req *protocol.Request) error {
	if !t.connected.Load() {
		return protocol.NewConnectionError("transport not connected")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	t.authorize(httpReq)

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		t.handlers.error(err)
		return protocol.NewConnectionError(fmt.Sprintf("post %s: %v", t.cfg.Endpoint, err))
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		t.handlers.error(err)
		return protocol.NewConnectionError(fmt.Sprintf("read response body: %v", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		terr := &protocol.Error{
			Code:    protocol.CodeTransportError,
			Type:    "TransportError",
			Message: fmt.Sprintf("http status %d", httpResp.StatusCode),
		}
		t.handlers.error(terr)
		return terr
	}

	resp, perr := protocol.ParseResponse(data)
	if perr != nil {
		t.handlers.error(perr)
		return perr
	}

	t.handlers.message(resp)
	return nil
}

func (t *HTTP) authorize(req *http.Request) {
	if t.cfg.Authentication != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Authentication)
	}
}

// Disconnect drops the logical connection. Never fails.
func (t *HTTP) Disconnect() {
	if !t.connected.Swap(false) {
		return
	}
	t.client.CloseIdleConnections()
	t.handlers.disconnect(nil)
}

// Close releases all resources; the transport cannot be reused.
func (t *HTTP) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.Disconnect()
	return nil
}

// OnMessage registers the inbound message handler.
func (t *HTTP) OnMessage(fn func(*protocol.Response)) { t.handlers.setMessage(fn) }

// OnConnect registers the connection-established handler.
func (t *HTTP) OnConnect(fn func()) { t.handlers.setConnect(fn) }

// OnDisconnect registers the connection-lost handler.
func (t *HTTP) OnDisconnect(fn func(error)) { t.handlers.setDisconnect(fn) }

// OnError registers the transport error handler.
func (t *HTTP) OnError(fn func(error)) { t.handlers.setError(fn) }
