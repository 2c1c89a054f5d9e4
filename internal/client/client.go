package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/statcode-ai/mcpclient/internal/config"
	"github.com/statcode-ai/mcpclient/internal/contextstore"
	"github.com/statcode-ai/mcpclient/internal/eventbus"
	"github.com/statcode-ai/mcpclient/internal/logger"
	"github.com/statcode-ai/mcpclient/internal/pending"
	"github.com/statcode-ai/mcpclient/internal/protocol"
	"github.com/statcode-ai/mcpclient/internal/transport"
)

// State represents the current state of the client connection
type State int32

const (
	// StateDisconnected indicates the client is not connected
	StateDisconnected State = iota
	// StateConnecting indicates the client is attempting to connect
	StateConnecting
	// StateConnected indicates the client is connected
	StateConnected
	// StateReconnecting indicates the client is attempting to reconnect
	StateReconnecting
	// StateError indicates connect or reconnect failed terminally
	StateError
	// StateClosed indicates the client has been closed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// serverInfoMethod is the reserved method probed after every successful
// connect. Failure to answer it is logged, never fatal.
const serverInfoMethod = "server.info"

// pingMethod is the reserved liveness method.
const pingMethod = "ping"

// ReconnectInfo is the payload of reconnecting events.
type ReconnectInfo struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// Client is an MCP v2 protocol client instance. Each instance owns its
// transport, correlation table, context store, and event bus; instances
// are independent and individually disposable.
type Client struct {
	cfg      *config.Config
	tr       transport.Transport
	bus      *eventbus.Bus
	pending  *pending.Table
	contexts *contextstore.Store
	cache    *responseCache
	log      *logger.Logger

	clientID string
	state    atomic.Int32
	closing  atomic.Bool

	// reconnectMu serializes reconnect loops so a flapping transport
	// cannot spawn more than one.
	reconnectMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	startTime      time.Time
	requestsTotal  atomic.Int64
	responsesTotal atomic.Int64
	errorsTotal    atomic.Int64
}

// New creates a client and its transport from cfg.
func New(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	tr, err := transport.New(cfg.Transport, log)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(cfg, tr, log)
}

// NewWithTransport creates a client around an existing transport. Used
// by tests and by callers bringing their own wire implementation.
func NewWithTransport(cfg *config.Config, tr transport.Transport, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		var err error
		if log, err = newLogger(cfg); err != nil {
			return nil, err
		}
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	bus := eventbus.New(log)
	c := &Client{
		cfg:       cfg,
		tr:        tr,
		bus:       bus,
		pending:   pending.New(log),
		contexts:  contextstore.New(cfg.DefaultContext, bus),
		log:       log.WithPrefix("client"),
		clientID:  clientID,
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	c.state.Store(int32(StateDisconnected))

	if cfg.EnableCaching {
		c.cache = newResponseCache(defaultCacheSize)
	}

	tr.OnMessage(c.handleMessage)
	tr.OnConnect(func() { c.log.Debug("transport connected") })
	tr.OnDisconnect(c.handleDisconnect)
	tr.OnError(c.handleTransportError)

	return c, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if !cfg.EnableLogging {
		return logger.New(logger.LevelNone, "", "")
	}
	return logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogPath, "mcp")
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// IsConnected reports whether requests can currently be issued.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.tr.IsConnected()
}

// Subscribe registers an event handler; the returned function removes
// it.
func (c *Client) Subscribe(t eventbus.Type, h eventbus.Handler) (unsubscribe func()) {
	return c.bus.Subscribe(t, h)
}

// Context returns a deep copy of the current session context.
func (c *Client) Context() *protocol.Context {
	return c.contexts.Snapshot()
}

// UpdateContext shallow-merges partial into the session context and
// emits a contextUpdate event.
func (c *Client) UpdateContext(partial *protocol.Context) {
	c.contexts.Update(partial)
}

// Connect establishes the transport connection. Valid from the
// disconnected and error states; a closed client cannot reconnect.
func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case StateClosed:
		return protocol.NewConnectionError("client is closed")
	case StateConnected, StateConnecting, StateReconnecting:
		return protocol.NewConnectionError("already connected")
	}

	c.setState(StateConnecting)
	if err := c.tr.Connect(ctx); err != nil {
		c.setState(StateError)
		c.bus.Emit(eventbus.Error, err)
		return err
	}

	c.setState(StateConnected)
	c.bus.Emit(eventbus.Connected, c.cfg.Transport.Endpoint)
	c.log.Info("connected to %s", c.cfg.Transport.Endpoint)

	go c.fetchServerInfo()
	return nil
}

// Disconnect gracefully closes the connection. Every outstanding request
// fails with a connection error, so no caller hangs across the
// disconnect.
func (c *Client) Disconnect() error {
	if c.State() == StateClosed {
		return nil
	}

	c.closing.Store(true)
	defer c.closing.Store(false)

	c.tr.Disconnect()
	c.pending.RejectAll(protocol.NewConnectionError("client disconnected"))
	c.purgeCache()
	c.setState(StateDisconnected)
	c.bus.Emit(eventbus.Disconnected, nil)
	c.log.Info("disconnected")
	return nil
}

// Close shuts the client down permanently and releases transport
// resources. The closed state is terminal.
func (c *Client) Close() error {
	if c.State() == StateClosed {
		return nil
	}

	c.closing.Store(true)
	c.setState(StateClosed)
	c.closeOnce.Do(func() { close(c.done) })

	err := c.tr.Close()
	c.pending.RejectAll(protocol.NewConnectionError("client closed"))
	c.purgeCache()
	c.log.Info("closed")
	return err
}

// handleMessage is the transport's inbound delivery callback.
func (c *Client) handleMessage(resp *protocol.Response) {
	c.bus.Emit(eventbus.Message, resp)

	if resp.ID == "" {
		// Server notification, not a reply.
		c.log.Debug("server notification received")
		return
	}
	if !c.pending.Resolve(resp.ID, resp) {
		c.log.Warn("response for unknown request id %s ignored", resp.ID)
	}
}

// handleTransportError surfaces transport faults to passive observers
// regardless of whether any caller is awaiting.
func (c *Client) handleTransportError(err error) {
	c.incrErrors()
	c.bus.Emit(eventbus.Error, err)
	c.log.Warn("transport error: %v", err)
}

// handleDisconnect drives the failure path for an unexpected transport
// drop: flush every pending request, then either start reconnecting or
// settle in disconnected.
func (c *Client) handleDisconnect(reason error) {
	if c.closing.Load() || c.State() == StateClosed {
		// User-driven teardown; Disconnect/Close own the bookkeeping.
		return
	}

	c.bus.Emit(eventbus.Disconnected, reason)
	c.pending.RejectAll(protocol.NewConnectionError("connection lost"))
	c.purgeCache()

	if c.cfg.Reconnect.Enabled && c.cfg.Reconnect.MaxAttempts > 0 {
		c.setState(StateReconnecting)
		go c.reconnectLoop()
		return
	}
	c.setState(StateDisconnected)
}

// reconnectLoop retries the connection as a bounded loop. The attempt
// counter is loop-local, so a later disconnect starts over from the
// first backoff step.
func (c *Client) reconnectLoop() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	maxAttempts := c.cfg.Reconnect.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.closing.Load() || c.State() == StateClosed {
			return
		}

		delay := backoffDelay(c.cfg.Reconnect, attempt)
		c.bus.Emit(eventbus.Reconnecting, ReconnectInfo{
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Delay:       delay,
		})
		c.log.Info("reconnect attempt %d/%d in %s", attempt, maxAttempts, delay)

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(c.cfg.Transport.TimeoutMs)*time.Millisecond+defaultDialSlack)
		err := c.tr.Connect(ctx)
		cancel()

		if err == nil {
			c.setState(StateConnected)
			c.bus.Emit(eventbus.Connected, c.cfg.Transport.Endpoint)
			c.log.Info("reconnected to %s", c.cfg.Transport.Endpoint)
			go c.fetchServerInfo()
			return
		}
		c.log.Warn("reconnect attempt %d/%d failed: %v", attempt, maxAttempts, err)
	}

	c.setState(StateError)
	err := protocol.NewConnectionError("max reconnection attempts reached")
	c.bus.Emit(eventbus.Error, err)
	c.log.Error("%v", err)
}

const defaultDialSlack = 5 * time.Second

// backoffDelay computes the wait before reconnect attempt n (1-based):
// backoffMs * 2^(n-1) when exponential, a constant backoffMs otherwise.
func backoffDelay(cfg config.ReconnectConfig, attempt int) time.Duration {
	base := time.Duration(cfg.BackoffMs) * time.Millisecond
	if !cfg.Exponential || attempt <= 1 {
		return base
	}
	return base * time.Duration(1<<uint(attempt-1))
}

// fetchServerInfo probes the reserved server-info method after connect.
// Best effort: failure is logged and the connection stays up.
func (c *Client) fetchServerInfo() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := c.Request(ctx, serverInfoMethod, nil, &CallOptions{Timeout: 5 * time.Second})
	if err != nil {
		c.log.Debug("server info fetch failed: %v", err)
		return
	}
	c.bus.Emit(eventbus.ServerInfo, result)
}

func (c *Client) purgeCache() {
	if c.cache != nil {
		c.cache.purge()
	}
}

func (c *Client) incrRequests() {
	if c.cfg.EnableMetrics {
		c.requestsTotal.Add(1)
	}
}

func (c *Client) incrResponses() {
	if c.cfg.EnableMetrics {
		c.responsesTotal.Add(1)
	}
}

func (c *Client) incrErrors() {
	if c.cfg.EnableMetrics {
		c.errorsTotal.Add(1)
	}
}
