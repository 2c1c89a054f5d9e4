package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/statcode-ai/mcpclient/internal/eventbus"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

// CallOptions tune a single request. The zero value inherits the client
// defaults.
type CallOptions struct {
	// Timeout overrides the client-wide request timeout.
	Timeout time.Duration

	// Priority overrides the default normal priority.
	Priority protocol.Priority

	// Retry re-issues the request on connection and timeout errors.
	// Off unless set; server-reported errors are never retried.
	Retry *protocol.RetryPolicy

	// Context replaces the session context snapshot attached to the
	// request.
	Context *protocol.Context

	// Cache serves a repeated identical call from the response cache.
	// Only meaningful for idempotent methods; requires the
	// enable_caching config gate.
	Cache bool
}

func (o *CallOptions) timeout(defaultMs int) time.Duration {
	if o != nil && o.Timeout > 0 {
		return o.Timeout
	}
	return time.Duration(defaultMs) * time.Millisecond
}

// Request issues method with params and blocks until a response, a
// timeout, a disconnect, or ctx cancellation. Returns the result payload
// on success and the server's protocol error verbatim on failure.
func (c *Client) Request(ctx context.Context, method string, params interface{}, opts *CallOptions) (json.RawMessage, error) {
	var policy *protocol.RetryPolicy
	var key string
	if opts != nil {
		policy = opts.Retry
		if opts.Cache && c.cache != nil {
			if k, ok := cacheKey(method, params); ok {
				key = k
				if result, hit := c.cache.get(key); hit {
					return result, nil
				}
			}
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := c.doRequest(ctx, method, params, opts)
		if err == nil {
			if key != "" {
				c.cache.put(key, result)
			}
			return result, nil
		}
		lastErr = err

		if policy == nil || attempt >= policy.MaxRetries || !protocol.Retryable(err) {
			return nil, lastErr
		}

		delay := retryDelay(policy, attempt)
		c.log.Debug("retrying %s after %s (attempt %d/%d): %v",
			method, delay, attempt+1, policy.MaxRetries, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, protocol.NewConnectionError("client closed")
		case <-time.After(delay):
		}
	}
}

// retryDelay computes the wait after failed attempt n (0-based).
func retryDelay(policy *protocol.RetryPolicy, attempt int) time.Duration {
	base := time.Duration(policy.BackoffMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	if !policy.Exponential || attempt == 0 {
		return base
	}
	return base * time.Duration(1<<uint(attempt))
}

// doRequest performs one attempt: build, enrich, validate, register,
// send, await. Each attempt gets a fresh request id so a late response
// to a failed attempt can never satisfy its retry.
func (c *Client) doRequest(ctx context.Context, method string, params interface{}, opts *CallOptions) (json.RawMessage, error) {
	if c.State() != StateConnected {
		return nil, protocol.NewConnectionError("client not connected")
	}

	req, err := c.buildRequest(method, params, opts)
	if err != nil {
		return nil, err
	}

	timeout := opts.timeout(c.cfg.RequestTimeout())
	ch, err := c.pending.Register(req.ID, timeout)
	if err != nil {
		return nil, err
	}

	c.incrRequests()
	c.bus.Emit(eventbus.Request, req)

	if err := c.tr.Send(req); err != nil {
		c.pending.Cancel(req.ID)
		c.incrErrors()
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			c.incrErrors()
			c.bus.Emit(eventbus.Error, res.Err)
			return nil, res.Err
		}
		return c.acceptResponse(res.Response)
	case <-ctx.Done():
		c.pending.Cancel(req.ID)
		return nil, ctx.Err()
	}
}

// buildRequest assembles and enriches a wire request: session context
// snapshot, client identity, per-call priority, timeout and retry policy
// in metadata.
func (c *Client) buildRequest(method string, params interface{}, opts *CallOptions) (*protocol.Request, error) {
	req, err := protocol.NewRequest(method, params)
	if err != nil {
		return nil, err
	}

	if opts != nil && opts.Context != nil {
		req.Context = opts.Context.Clone()
	} else {
		req.Context = c.contexts.Snapshot()
	}

	req.Metadata.Source = c.clientID
	req.Metadata.TimeoutMs = int(opts.timeout(c.cfg.RequestTimeout()) / time.Millisecond)
	if req.Context != nil {
		req.Metadata.SessionID = req.Context.SessionID
	}
	if opts != nil {
		if opts.Priority != "" {
			req.Metadata.Priority = opts.Priority
		}
		req.Metadata.RetryPolicy = opts.Retry
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// acceptResponse applies a correlated response: merge its context
// fragment, bump counters, emit the response or error event, and unwrap
// the payload.
func (c *Client) acceptResponse(resp *protocol.Response) (json.RawMessage, error) {
	if resp.Error != nil {
		c.incrErrors()
		c.bus.Emit(eventbus.Error, resp.Error)
		return nil, resp.Error
	}

	if resp.Context != nil {
		c.contexts.MergeFromResponse(resp.Context)
	}

	c.incrResponses()
	c.bus.Emit(eventbus.Response, resp)
	return resp.Result, nil
}

// Notify sends a fire-and-forget request: no correlation entry is
// created and no response is awaited.
func (c *Client) Notify(method string, params interface{}) error {
	if c.State() != StateConnected {
		return protocol.NewConnectionError("client not connected")
	}

	req, err := c.buildRequest(method, params, nil)
	if err != nil {
		return err
	}

	c.incrRequests()
	c.bus.Emit(eventbus.Request, req)

	if err := c.tr.Send(req); err != nil {
		c.incrErrors()
		return err
	}
	return nil
}

// Ping measures the round trip to the server via the reserved ping
// method.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.Request(ctx, pingMethod, nil, nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
