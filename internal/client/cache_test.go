package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statcode-ai/mcpclient/internal/config"
)

func TestCachedRequestSkipsWire(t *testing.T) {
	c, tr := newTestClient(t, func(cfg *config.Config) { cfg.EnableCaching = true })
	connect(t, c)

	opts := &CallOptions{Cache: true}
	first, err := c.Request(context.Background(), "tools.list", map[string]string{"filter": "all"}, opts)
	require.NoError(t, err)

	second, err := c.Request(context.Background(), "tools.list", map[string]string{"filter": "all"}, opts)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Len(t, tr.sentByMethod("tools.list"), 1, "second call must be served from cache")

	// Different params are a different cache entry.
	_, err = c.Request(context.Background(), "tools.list", map[string]string{"filter": "none"}, opts)
	require.NoError(t, err)
	assert.Len(t, tr.sentByMethod("tools.list"), 2)
}

func TestCacheRequiresConfigGate(t *testing.T) {
	c, tr := newTestClient(t, func(cfg *config.Config) { cfg.EnableCaching = false })
	connect(t, c)

	opts := &CallOptions{Cache: true}
	for i := 0; i < 2; i++ {
		_, err := c.Request(context.Background(), "tools.list", nil, opts)
		require.NoError(t, err)
	}
	assert.Len(t, tr.sentByMethod("tools.list"), 2, "caching off means every call hits the wire")
}

func TestCacheOptInPerCall(t *testing.T) {
	c, tr := newTestClient(t, func(cfg *config.Config) { cfg.EnableCaching = true })
	connect(t, c)

	for i := 0; i < 2; i++ {
		_, err := c.Request(context.Background(), "tools.list", nil, nil)
		require.NoError(t, err)
	}
	assert.Len(t, tr.sentByMethod("tools.list"), 2, "calls not marked cacheable bypass the cache")
}

func TestCachePurgedOnDisconnect(t *testing.T) {
	c, tr := newTestClient(t, func(cfg *config.Config) { cfg.EnableCaching = true })
	connect(t, c)

	opts := &CallOptions{Cache: true}
	_, err := c.Request(context.Background(), "tools.list", nil, opts)
	require.NoError(t, err)

	require.NoError(t, c.Disconnect())
	connect(t, c)

	_, err = c.Request(context.Background(), "tools.list", nil, opts)
	require.NoError(t, err)
	assert.Len(t, tr.sentByMethod("tools.list"), 2, "a new connection starts with an empty cache")
}
