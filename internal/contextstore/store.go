// Package contextstore owns the session context attached to outgoing
// requests. Reads hand out deep copies, so a caller can never observe a
// context mutated mid-flight, and writes go through a single merge path.
package contextstore

import (
	"sync"

	"github.com/statcode-ai/mcpclient/internal/eventbus"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

// Store holds the current session context.
type Store struct {
	mu  sync.RWMutex
	ctx *protocol.Context
	bus *eventbus.Bus
}

// New creates a store seeded with initial, which may be nil. The bus
// receives a contextUpdate event for every mutation; a nil bus disables
// events.
func New(initial *protocol.Context, bus *eventbus.Bus) *Store {
	ctx := initial.Clone()
	if ctx == nil {
		ctx = &protocol.Context{}
	}
	return &Store{ctx: ctx, bus: bus}
}

// Snapshot returns a deep copy of the current context. The caller may
// mutate it freely without affecting the store.
func (s *Store) Snapshot() *protocol.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.Clone()
}

// Update shallow-merges partial into the stored context and emits a
// contextUpdate event.
func (s *Store) Update(partial *protocol.Context) {
	s.merge(partial)
}

// MergeFromResponse merges a context fragment carried by a response. Same
// merge path as Update; invoked by the request engine after a successful
// response.
func (s *Store) MergeFromResponse(fragment *protocol.Context) {
	s.merge(fragment)
}

func (s *Store) merge(fragment *protocol.Context) {
	if fragment == nil {
		return
	}

	s.mu.Lock()
	// Clone the fragment so later caller-side mutation cannot reach the
	// stored value.
	s.ctx.Merge(fragment.Clone())
	snapshot := s.ctx.Clone()
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Emit(eventbus.ContextUpdate, snapshot)
	}
}
