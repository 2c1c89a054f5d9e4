package client

import (
	"context"
	"encoding/json"

	"github.com/statcode-ai/mcpclient/internal/protocol"
)

// StreamChunk is one element of a streaming result. A chunk carries
// either data or the terminal error, never both.
type StreamChunk struct {
	Data json.RawMessage
	Err  error
}

// Stream issues a streaming request. The server is asked to stream via
// the reserved "stream" parameter; an array result is delivered one
// element per chunk in order, any other result as a single chunk. The
// channel is closed after the final chunk. Cancelling ctx stops
// delivery.
func (c *Client) Stream(ctx context.Context, method string, params interface{}, opts *CallOptions) (<-chan StreamChunk, error) {
	if c.State() != StateConnected {
		return nil, protocol.NewConnectionError("client not connected")
	}
	if method == "" {
		return nil, protocol.NewValidationError("method must not be empty")
	}

	marked, err := markStreaming(params)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)

		result, err := c.Request(ctx, method, marked, opts)
		if err != nil {
			emitChunk(ctx, ch, StreamChunk{Err: err})
			return
		}

		for _, data := range splitChunks(result) {
			if !emitChunk(ctx, ch, StreamChunk{Data: data}) {
				return
			}
		}
	}()
	return ch, nil
}

func emitChunk(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// splitChunks breaks an array result into its elements; any other
// payload is one chunk.
func splitChunks(result json.RawMessage) []json.RawMessage {
	if len(result) == 0 {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(result, &elems); err == nil && result[firstByteIdx(result)] == '[' {
		return elems
	}
	return []json.RawMessage{result}
}

func firstByteIdx(data json.RawMessage) int {
	for i, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return i
		}
	}
	return 0
}

// markStreaming injects the reserved stream flag into the request
// parameters, preserving existing object fields.
func markStreaming(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage(`{"stream":true}`), nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, protocol.NewValidationError("failed to encode params: " + err.Error())
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Non-object params are wrapped rather than rejected.
		fields = map[string]json.RawMessage{"value": data}
	}
	fields["stream"] = json.RawMessage("true")
	return json.Marshal(fields)
}
