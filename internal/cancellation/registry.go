// Package cancellation tracks in-flight requests so that a client disconnect can abort
// the matching backend call or stream.
//
// The Registry is an explicitly owned value: create one per process (or per test) and
// inject it into the components that dispatch or observe requests. Entries follow a
// create-on-dispatch, signal-on-disconnect, delete-on-completion lifecycle.
package cancellation

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateID is returned when a request id is registered while a previous entry
// with the same id is still live.
var ErrDuplicateID = errors.New("request id already registered")

// Registry maps request ids to cancellation signals. All methods are safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Entry is the cancellation signal of one in-flight request.
type Entry struct {
	id       string
	registry *Registry

	done       chan struct{}
	cancelOnce sync.Once
	releaseOne sync.Once
}

// Register creates the entry for id. The caller owns the entry and must call Release
// once the request has completed, whatever the outcome.
func (r *Registry) Register(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("request id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	e := &Entry{
		id:       id,
		registry: r,
		done:     make(chan struct{}),
	}
	r.entries[id] = e
	return e, nil
}

// Cancel signals the entry registered under id. It reports whether a live entry was
// found. Cancelling twice, or cancelling an unknown id, is a no-op.
func (r *Registry) Cancel(id string) bool {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	e.cancel()
	return true
}

// IsCancelled reports whether the live entry for id has been signalled.
// Returns false once the entry has been released.
func (r *Registry) IsCancelled(id string) bool {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	return ok && e.Cancelled()
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ID returns the request id the entry was registered under.
func (e *Entry) ID() string {
	return e.id
}

// Done returns a channel that is closed when the request is cancelled.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// Cancelled reports whether the entry has been signalled.
func (e *Entry) Cancelled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Release removes the entry from its registry. Only the first call has an effect.
func (e *Entry) Release() {
	e.releaseOne.Do(func() {
		r := e.registry
		r.mu.Lock()
		defer r.mu.Unlock()

		// A later registration under the same id owns the slot now.
		if cur, ok := r.entries[e.id]; ok && cur == e {
			delete(r.entries, e.id)
		}
	})
}

func (e *Entry) cancel() {
	e.cancelOnce.Do(func() { close(e.done) })
}
