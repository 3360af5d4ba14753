// SPDX-License-Identifier: MIT

package util

import (
	"fmt"
	"sync"

	"github.com/tomtom215/playgraph/internal/omx"
)

// ResourceTracker tracks live component handles and tunnels for cleanup
// verification.
//
// This is CRITICAL for preventing resource leaks in 24/7 operation. A
// playback graph's handle count must return to zero whenever every session
// reaches the unloaded state, and every tunnel opened during graph assembly
// must be torn down in the reverse order before its endpoints are freed.
//
// Tracked resources:
//   - Component handles (omx.Handle)
//   - Tunnels between two component ports
//   - Named resources (locks, connections, etc.)
//
// Example:
//
//	tracker := NewResourceTracker()
//
//	h, _ := framework.GetHandle("source", "audio_source.file", 1, key)
//	tracker.TrackHandle("source", h)
//	defer tracker.UntrackHandle("source")
//
//	if leaked := tracker.LeakedResources(); len(leaked) > 0 {
//	    log.Fatalf("resource leak: %v", leaked)
//	}
type ResourceTracker struct {
	mu        sync.Mutex
	handles   map[string]omx.Handle
	tunnels   map[string]struct{}
	resources map[string]interface{} // Named resources (locks, etc.)
}

// NewResourceTracker creates a new resource tracker.
func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{
		handles:   make(map[string]omx.Handle),
		tunnels:   make(map[string]struct{}),
		resources: make(map[string]interface{}),
	}
}

// TrackHandle registers a component handle for tracking.
func (rt *ResourceTracker) TrackHandle(name string, h omx.Handle) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.handles[name] = h
}

// UntrackHandle unregisters a component handle.
func (rt *ResourceTracker) UntrackHandle(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.handles, name)
}

// TrackTunnel registers an open tunnel for tracking.
func (rt *ResourceTracker) TrackTunnel(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.tunnels[name] = struct{}{}
}

// UntrackTunnel unregisters a tunnel.
func (rt *ResourceTracker) UntrackTunnel(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.tunnels, name)
}

// TrackResource registers a named resource for tracking.
func (rt *ResourceTracker) TrackResource(name string, resource interface{}) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.resources[name] = resource
}

// UntrackResource unregisters a named resource.
func (rt *ResourceTracker) UntrackResource(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.resources, name)
}

// LeakedResources returns names of all resources still being tracked.
//
// In tests, this should return an empty slice once a graph has fully torn
// down to the unloaded state.
func (rt *ResourceTracker) LeakedResources() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var leaked []string

	for name := range rt.handles {
		leaked = append(leaked, fmt.Sprintf("handle:%s", name))
	}

	for name := range rt.tunnels {
		leaked = append(leaked, fmt.Sprintf("tunnel:%s", name))
	}

	for name := range rt.resources {
		leaked = append(leaked, fmt.Sprintf("resource:%s", name))
	}

	return leaked
}

// CleanupAll reports every resource still tracked as an error.
//
// The tracker has no reference to the omx.Framework that owns a handle or
// tunnel, so it cannot free them itself — freeing is the controller's
// responsibility during its own teardown path. This is a best-effort report
// for emergency shutdown diagnostics, not an active cleanup.
func (rt *ResourceTracker) CleanupAll() []error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var errs []error

	for name := range rt.handles {
		errs = append(errs, fmt.Errorf("handle %s not freed", name))
		delete(rt.handles, name)
	}

	for name := range rt.tunnels {
		errs = append(errs, fmt.Errorf("tunnel %s not torn down", name))
		delete(rt.tunnels, name)
	}

	for name := range rt.resources {
		errs = append(errs, fmt.Errorf("resource %s not cleaned up", name))
		delete(rt.resources, name)
	}

	return errs
}

// Count returns the total number of tracked resources.
func (rt *ResourceTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.handles) + len(rt.tunnels) + len(rt.resources)
}

// HandleCount returns the number of tracked component handles.
func (rt *ResourceTracker) HandleCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.handles)
}

// TunnelCount returns the number of tracked tunnels.
func (rt *ResourceTracker) TunnelCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.tunnels)
}

// ResourceCount returns the number of tracked named resources.
func (rt *ResourceTracker) ResourceCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.resources)
}
