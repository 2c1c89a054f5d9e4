// Package pending implements the correlation table that turns
// asynchronous response delivery into waitable results. Every in-flight
// request owns exactly one entry; an entry is resolved, rejected, timed
// out, or flushed exactly once.
package pending

import (
	"fmt"
	"sync"
	"time"

	"github.com/statcode-ai/mcpclient/internal/logger"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

// Result is the terminal outcome of a pending request. Exactly one of
// Response and Err is set.
type Result struct {
	Response *protocol.Response
	Err      error
}

type entry struct {
	ch    chan Result
	timer *time.Timer
}

// Table tracks in-flight requests by correlation id.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     *logger.Logger
}

// New creates an empty table.
func New(log *logger.Logger) *Table {
	if log == nil {
		log = logger.Global()
	}
	return &Table{
		entries: make(map[string]*entry),
		log:     log.WithPrefix("pending"),
	}
}

// Register creates an entry for id and returns the channel its outcome
// will arrive on. The channel receives exactly one Result. A timeout of
// zero disables the timer. Registering a live id is an error.
func (t *Table) Register(id string, timeout time.Duration) (<-chan Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("request id %s already in flight", id)
	}

	e := &entry{ch: make(chan Result, 1)}
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			t.reject(id, protocol.NewTimeoutError(
				fmt.Sprintf("no response within %s", timeout)))
		})
	}
	t.entries[id] = e
	return e.ch, nil
}

// Resolve completes the entry for id with a response. Returns false when
// no entry is live for the id, which callers log and otherwise ignore: a
// late response for a timed-out or flushed request is not a fault.
func (t *Table) Resolve(id string, resp *protocol.Response) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.ch <- Result{Response: resp}
	return true
}

// Reject fails the entry for id. Returns false when no entry is live.
func (t *Table) Reject(id string, err error) bool {
	return t.reject(id, err)
}

// Cancel removes the entry for id without delivering an outcome. Used
// when the caller gives up on its own (context cancellation, failed
// send).
func (t *Table) Cancel(id string) {
	t.remove(id)
}

// RejectAll fails every outstanding entry with err and empties the
// table. Safe to call repeatedly; a second call finds nothing to flush.
func (t *Table) RejectAll(err error) {
	t.mu.Lock()
	flushed := t.entries
	t.entries = make(map[string]*entry)
	t.mu.Unlock()

	for id, e := range flushed {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.ch <- Result{Err: err}
		t.log.Debug("flushed pending request %s: %v", id, err)
	}
}

// Len returns the number of in-flight entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) reject(id string, err error) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.ch <- Result{Err: err}
	return true
}

// remove detaches the entry for id under the lock and stops its timer.
// After remove returns, no other path can deliver to the entry, which is
// what makes resolution at-most-once.
func (t *Table) remove(id string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e
}
