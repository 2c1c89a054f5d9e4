package contextstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statcode-ai/mcpclient/internal/eventbus"
	"github.com/statcode-ai/mcpclient/internal/logger"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

func newTestBus() *eventbus.Bus {
	log, _ := logger.New(logger.LevelNone, "", "")
	return eventbus.New(log)
}

func TestSnapshotIsolation(t *testing.T) {
	store := New(&protocol.Context{
		SessionID: "sess-1",
		Environment: &protocol.Environment{
			Platform:     "linux",
			Capabilities: []string{"tools"},
		},
	}, nil)

	snap := store.Snapshot()
	snap.SessionID = "mutated"
	snap.Environment.Platform = "mutated"
	snap.Environment.Capabilities[0] = "mutated"

	fresh := store.Snapshot()
	assert.Equal(t, "sess-1", fresh.SessionID)
	assert.Equal(t, "linux", fresh.Environment.Platform)
	assert.Equal(t, []string{"tools"}, fresh.Environment.Capabilities)
}

func TestNilInitialContext(t *testing.T) {
	store := New(nil, nil)
	snap := store.Snapshot()
	require.NotNil(t, snap)
	assert.Empty(t, snap.SessionID)
}

func TestUpdateMerges(t *testing.T) {
	store := New(&protocol.Context{SessionID: "sess-1", Workspace: "/a"}, nil)

	store.Update(&protocol.Context{Workspace: "/b", UserID: "user-1"})

	snap := store.Snapshot()
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, "/b", snap.Workspace)
	assert.Equal(t, "user-1", snap.UserID)
}

func TestUpdateEmitsEvent(t *testing.T) {
	bus := newTestBus()
	store := New(nil, bus)

	var events []eventbus.Event
	bus.Subscribe(eventbus.ContextUpdate, func(ev eventbus.Event) {
		events = append(events, ev)
	})

	store.Update(&protocol.Context{SessionID: "sess-2"})

	require.Len(t, events, 1)
	payload, ok := events[0].Payload.(*protocol.Context)
	require.True(t, ok)
	assert.Equal(t, "sess-2", payload.SessionID)
}

func TestMergeFromResponsePreservesUnknownFields(t *testing.T) {
	store := New(nil, nil)

	var fragment protocol.Context
	require.NoError(t, json.Unmarshal([]byte(`{
		"sessionId": "sess-3",
		"serverAssigned": {"quota": 5}
	}`), &fragment))

	store.MergeFromResponse(&fragment)

	snap := store.Snapshot()
	assert.Equal(t, "sess-3", snap.SessionID)
	require.Contains(t, snap.Extra, "serverAssigned")
	assert.JSONEq(t, `{"quota": 5}`, string(snap.Extra["serverAssigned"]))
}

func TestUpdateWithNil(t *testing.T) {
	store := New(&protocol.Context{SessionID: "sess-1"}, nil)
	store.Update(nil)
	assert.Equal(t, "sess-1", store.Snapshot().SessionID)
}
