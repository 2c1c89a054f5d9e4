package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/statcode-ai/mcpclient/internal/logger"
)

func newTestBus() *Bus {
	log, _ := logger.New(logger.LevelNone, "", "")
	return New(log)
}

func TestSubscriptionOrder(t *testing.T) {
	bus := newTestBus()

	var order []int
	bus.Subscribe(Connected, func(Event) { order = append(order, 1) })
	bus.Subscribe(Connected, func(Event) { order = append(order, 2) })
	bus.Subscribe(Connected, func(Event) { order = append(order, 3) })

	bus.Emit(Connected, nil)
	bus.Emit(Connected, nil)

	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, order)
}

func TestTypeIsolation(t *testing.T) {
	bus := newTestBus()

	var connected, disconnected int
	bus.Subscribe(Connected, func(Event) { connected++ })
	bus.Subscribe(Disconnected, func(Event) { disconnected++ })

	bus.Emit(Connected, nil)
	bus.Emit(Connected, nil)
	bus.Emit(Disconnected, nil)

	assert.Equal(t, 2, connected)
	assert.Equal(t, 1, disconnected)
}

func TestPanicIsolation(t *testing.T) {
	bus := newTestBus()

	var survived bool
	bus.Subscribe(Error, func(Event) { panic("broken handler") })
	bus.Subscribe(Error, func(Event) { survived = true })

	assert.NotPanics(t, func() { bus.Emit(Error, "payload") })
	assert.True(t, survived, "handler after the panicking one must still run")
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var first, second int
	unsub := bus.Subscribe(Response, func(Event) { first++ })
	bus.Subscribe(Response, func(Event) { second++ })

	bus.Emit(Response, nil)
	unsub()
	bus.Emit(Response, nil)
	unsub() // second call is a no-op

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestEventPayload(t *testing.T) {
	bus := newTestBus()

	var got Event
	bus.Subscribe(Message, func(ev Event) { got = ev })
	bus.Emit(Message, "hello")

	assert.Equal(t, Message, got.Type)
	assert.Equal(t, "hello", got.Payload)
	assert.False(t, got.Timestamp.IsZero())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "contextUpdate", ContextUpdate.String())
	assert.Equal(t, "serverInfo", ServerInfo.String())
	assert.Equal(t, "unknown", Type(99).String())
}
