// SPDX-License-Identifier: MIT

package omx

import "sync"

// EventCallback receives asynchronous events published by a component.
type EventCallback func(Event)

// Registry is the callback-cycle-avoidance mechanism described in spec.md's
// design notes: rather than give a component a live pointer back to the
// controller (and risk a cyclic ownership graph), the controller registers
// a callback under an integer key, and the framework only ever holds that
// key. The registry holds the callback by an ordinary (strong) reference,
// so a callback bound to a controller (a method value) keeps that
// controller reachable until it is unregistered.
//
// A Registry is not process-wide: each controller.Controller constructs its
// own with NewRegistry and passes it to its own NewFramework, so one
// Registry holds the callback of one session only and no instance is shared
// between sessions. It is never a package-level singleton.
type Registry struct {
	mu      sync.Mutex
	next    int
	entries map[int]EventCallback
}

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]EventCallback)}
}

// Register records cb under a freshly allocated key and returns it.
func (r *Registry) Register(cb EventCallback) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	key := r.next
	r.entries[key] = cb
	return key
}

// Unregister removes the callback for key, if any.
func (r *Registry) Unregister(key int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Dispatch invokes the callback registered under key with ev. Events for an
// unregistered (e.g. already torn down) key are silently dropped: spec.md
// §4.1 permits framework-originated events to arrive out of phase without
// fault.
func (r *Registry) Dispatch(key int, ev Event) {
	r.mu.Lock()
	cb, ok := r.entries[key]
	r.mu.Unlock()
	if ok {
		cb(ev)
	}
}
