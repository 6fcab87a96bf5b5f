package monitor

import (
	"context"
	"sort"
	"sync"
)

// handle is the cancellation side of one running check loop.
type handle struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry maps target ids to the handle of their single active loop.
// Cancelled loops stay in draining until they exit, so a later Replace for
// the same id still waits for them.
type Registry struct {
	mu       sync.Mutex
	loops    map[string]*handle
	draining map[string]*handle
	gen      uint64
}

func NewRegistry() *Registry {
	return &Registry{
		loops:    make(map[string]*handle),
		draining: make(map[string]*handle),
	}
}

// Replace registers a fresh handle for id, cancelling whatever was there.
// The returned channel is closed once the superseded loop has exited; it is
// nil when no loop for id is running or winding down.
func (r *Registry) Replace(id string, cancel context.CancelFunc) (*handle, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prevDone <-chan struct{}
	if prev, ok := r.loops[id]; ok {
		prev.cancel()
		prevDone = prev.done
	} else if prev, ok := r.draining[id]; ok {
		prevDone = prev.done
	}
	// The new handle is not done before prevDone, so it supersedes the entry.
	delete(r.draining, id)
	r.gen++
	h := &handle{gen: r.gen, cancel: cancel, done: make(chan struct{})}
	r.loops[id] = h
	return h, prevDone
}

// Remove cancels and drops the handle for id. It reports whether one existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.loops[id]
	if !ok {
		return false
	}
	r.retire(id, h)
	return true
}

// RemoveIf drops id only while h is still the registered handle, so a loop
// unregistering itself can never evict its replacement.
func (r *Registry) RemoveIf(id string, h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.loops[id]
	if !ok || cur != h {
		return false
	}
	r.retire(id, h)
	return true
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loops[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loops)
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.loops))
	for id := range r.loops {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Drain cancels every loop and empties the registry.
func (r *Registry) Drain() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.loops)
	for id, h := range r.loops {
		r.retire(id, h)
	}
	return n
}

// Draining reports whether a cancelled loop for id has not exited yet.
func (r *Registry) Draining(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.draining[id]
	return ok
}

// retire cancels h and parks it in draining until its loop exits.
// Callers hold r.mu.
func (r *Registry) retire(id string, h *handle) {
	h.cancel()
	delete(r.loops, id)
	r.draining[id] = h
	go r.forget(id, h)
}

func (r *Registry) forget(id string, h *handle) {
	<-h.done
	r.mu.Lock()
	if r.draining[id] == h {
		delete(r.draining, id)
	}
	r.mu.Unlock()
}
