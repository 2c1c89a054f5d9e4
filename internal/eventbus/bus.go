// Package eventbus provides the typed fan-out channel for client
// lifecycle and message events. Event types form a closed set; handlers
// for a given type run synchronously in subscription order on the
// emitting goroutine, and a panicking handler never prevents the
// remaining handlers from running.
package eventbus

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/statcode-ai/mcpclient/internal/logger"
)

// Type identifies an event variant.
type Type int

const (
	// Connected fires after a transport connection is established
	Connected Type = iota
	// Disconnected fires when the transport connection is lost or closed
	Disconnected
	// Reconnecting fires before each reconnection attempt
	Reconnecting
	// Error fires for transport and protocol failures
	Error
	// Message fires for every inbound wire message
	Message
	// Request fires when a request is handed to the transport
	Request
	// Response fires when a successful response resolves a request
	Response
	// ContextUpdate fires when the context store changes
	ContextUpdate
	// ServerInfo fires when server information is fetched after connect
	ServerInfo
)

func (t Type) String() string {
	switch t {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case Error:
		return "error"
	case Message:
		return "message"
	case Request:
		return "request"
	case Response:
		return "response"
	case ContextUpdate:
		return "contextUpdate"
	case ServerInfo:
		return "serverInfo"
	default:
		return "unknown"
	}
}

// Event is an ephemeral record delivered to subscribers and then dropped.
type Event struct {
	Type      Type
	Payload   interface{}
	Timestamp time.Time
}

// Handler receives events for a subscribed type.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers per type. The underlying
// asaskevich/EventBus dispatches one topic per event type; the Bus keeps
// its own ordered subscriber registry because EventBus identifies
// handlers by code pointer, which every wrapper closure here would share.
type Bus struct {
	bus evbus.Bus
	log *logger.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[Type][]subscription
}

// New creates an event bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Global()
	}
	b := &Bus{
		bus:  evbus.New(),
		log:  log.WithPrefix("events"),
		subs: make(map[Type][]subscription),
	}
	for t := Connected; t <= ServerInfo; t++ {
		topic := t.String()
		eventType := t
		if err := b.bus.Subscribe(topic, func(ev Event) {
			b.dispatch(eventType, ev)
		}); err != nil {
			b.log.Error("subscribe topic %s failed: %v", topic, err)
		}
	}
	return b
}

// Emit delivers an event to every subscriber of its type, in subscription
// order, on the calling goroutine. Slow subscribers slow the emitting
// path; this is the one synchronous contract point of the client.
func (b *Bus) Emit(t Type, payload interface{}) {
	b.bus.Publish(t.String(), Event{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a handler for an event type and returns the
// function that removes it again. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(t Type, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, sub := range list {
			if sub.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) dispatch(t Type, ev Event) {
	b.mu.Lock()
	list := make([]subscription, len(b.subs[t]))
	copy(list, b.subs[t])
	b.mu.Unlock()

	for _, sub := range list {
		b.invoke(t, sub.handler, ev)
	}
}

// invoke isolates handler panics so one broken subscriber cannot starve
// the rest or crash the emitter.
func (b *Bus) invoke(t Type, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler for %s panicked: %v", t, r)
		}
	}()
	h(ev)
}
