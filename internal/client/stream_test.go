package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statcode-ai/mcpclient/internal/protocol"
)

// arrayReply answers streaming-capable methods with a fixed chunk list.
func arrayReply(result string) func(*protocol.Request) *protocol.Response {
	return func(req *protocol.Request) *protocol.Response {
		if req.Method == serverInfoMethod {
			return echoReply(req)
		}
		return &protocol.Response{ID: req.ID, Result: json.RawMessage(result)}
	}
}

func collectChunks(t *testing.T, ch <-chan StreamChunk) []StreamChunk {
	t.Helper()
	var chunks []StreamChunk
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-time.After(2 * time.Second):
			t.Fatal("stream did not complete")
		}
	}
}

func TestStreamArrayResult(t *testing.T) {
	c, tr := newTestClient(t, nil)
	tr.reply = arrayReply(`["a","b","c"]`)
	connect(t, c)

	ch, err := c.Stream(context.Background(), "tokens.generate", map[string]string{"prompt": "hi"}, nil)
	require.NoError(t, err)

	chunks := collectChunks(t, ch)
	require.Len(t, chunks, 3)
	assert.JSONEq(t, `"a"`, string(chunks[0].Data))
	assert.JSONEq(t, `"b"`, string(chunks[1].Data))
	assert.JSONEq(t, `"c"`, string(chunks[2].Data))
	for _, chunk := range chunks {
		assert.NoError(t, chunk.Err)
	}
}

func TestStreamMarksRequest(t *testing.T) {
	c, tr := newTestClient(t, nil)
	tr.reply = arrayReply(`[]`)
	connect(t, c)

	ch, err := c.Stream(context.Background(), "tokens.generate", map[string]string{"prompt": "hi"}, nil)
	require.NoError(t, err)
	collectChunks(t, ch)

	sent := tr.sentByMethod("tokens.generate")
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"prompt":"hi","stream":true}`, string(sent[0].Params))
}

func TestStreamSingleResult(t *testing.T) {
	c, tr := newTestClient(t, nil)
	tr.reply = arrayReply(`{"answer":42}`)
	connect(t, c)

	ch, err := c.Stream(context.Background(), "compute", nil, nil)
	require.NoError(t, err)

	chunks := collectChunks(t, ch)
	require.Len(t, chunks, 1)
	assert.JSONEq(t, `{"answer":42}`, string(chunks[0].Data))
}

func TestStreamError(t *testing.T) {
	c, tr := newTestClient(t, nil)
	tr.reply = func(req *protocol.Request) *protocol.Response {
		if req.Method == serverInfoMethod {
			return echoReply(req)
		}
		return &protocol.Response{
			ID:    req.ID,
			Error: &protocol.Error{Code: protocol.CodeInternalError, Type: "InternalError", Message: "boom"},
		}
	}
	connect(t, c)

	ch, err := c.Stream(context.Background(), "compute", nil, nil)
	require.NoError(t, err)

	chunks := collectChunks(t, ch)
	require.Len(t, chunks, 1)
	require.Error(t, chunks[0].Err)

	var pe *protocol.Error
	require.ErrorAs(t, chunks[0].Err, &pe)
	assert.Equal(t, protocol.CodeInternalError, pe.Code)
}

func TestStreamWhileDisconnected(t *testing.T) {
	c, _ := newTestClient(t, nil)

	_, err := c.Stream(context.Background(), "compute", nil, nil)
	require.Error(t, err)
	assert.True(t, protocol.IsConnectionError(err))
}

func TestStreamCancellation(t *testing.T) {
	c, tr := newTestClient(t, nil)
	tr.reply = arrayReply(`["a","b","c","d"]`)
	connect(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Stream(ctx, "tokens.generate", nil, nil)
	require.NoError(t, err)

	// Take one chunk, then stop consuming.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no first chunk")
	}
	cancel()

	// The producer must shut down and close the channel.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel not closed after cancellation")
		}
	}
}
