package util

import (
	"testing"

	"github.com/tomtom215/playgraph/internal/omx"
)

// TestResourceTrackerHandles verifies component handle tracking.
func TestResourceTrackerHandles(t *testing.T) {
	tracker := NewResourceTracker()

	if count := tracker.HandleCount(); count != 0 {
		t.Errorf("Initial HandleCount = %d, want 0", count)
	}

	tracker.TrackHandle("source", omx.Handle(1))

	if count := tracker.HandleCount(); count != 1 {
		t.Errorf("HandleCount after track = %d, want 1", count)
	}

	tracker.UntrackHandle("source")

	if count := tracker.HandleCount(); count != 0 {
		t.Errorf("HandleCount after untrack = %d, want 0", count)
	}
}

// TestResourceTrackerTunnels verifies tunnel tracking.
func TestResourceTrackerTunnels(t *testing.T) {
	tracker := NewResourceTracker()

	if count := tracker.TunnelCount(); count != 0 {
		t.Errorf("Initial TunnelCount = %d, want 0", count)
	}

	tracker.TrackTunnel("source->decoder")

	if count := tracker.TunnelCount(); count != 1 {
		t.Errorf("TunnelCount after track = %d, want 1", count)
	}

	tracker.UntrackTunnel("source->decoder")

	if count := tracker.TunnelCount(); count != 0 {
		t.Errorf("TunnelCount after untrack = %d, want 0", count)
	}
}

// TestResourceTrackerGeneric verifies generic resource tracking.
func TestResourceTrackerGeneric(t *testing.T) {
	tracker := NewResourceTracker()

	if count := tracker.ResourceCount(); count != 0 {
		t.Errorf("Initial ResourceCount = %d, want 0", count)
	}

	resource := "some-lock"
	tracker.TrackResource("lock-1", resource)

	if count := tracker.ResourceCount(); count != 1 {
		t.Errorf("ResourceCount after track = %d, want 1", count)
	}

	tracker.UntrackResource("lock-1")

	if count := tracker.ResourceCount(); count != 0 {
		t.Errorf("ResourceCount after untrack = %d, want 0", count)
	}
}

// TestResourceTrackerLeaks verifies leak detection.
func TestResourceTrackerLeaks(t *testing.T) {
	tracker := NewResourceTracker()

	if leaked := tracker.LeakedResources(); len(leaked) != 0 {
		t.Errorf("Initial leaks = %v, want empty", leaked)
	}

	tracker.TrackHandle("decoder", omx.Handle(42))
	tracker.TrackTunnel("decoder->renderer")
	tracker.TrackResource("leaked-lock", "lock")

	leaked := tracker.LeakedResources()
	if len(leaked) != 3 {
		t.Errorf("Leaked resources = %d, want 3", len(leaked))
	}

	hasHandle := false
	hasTunnel := false
	hasResource := false
	for _, name := range leaked {
		switch name {
		case "handle:decoder":
			hasHandle = true
		case "tunnel:decoder->renderer":
			hasTunnel = true
		case "resource:leaked-lock":
			hasResource = true
		}
	}

	if !hasHandle {
		t.Error("Leaked resources should include 'handle:decoder'")
	}
	if !hasTunnel {
		t.Error("Leaked resources should include 'tunnel:decoder->renderer'")
	}
	if !hasResource {
		t.Error("Leaked resources should include 'resource:leaked-lock'")
	}
}

// TestResourceTrackerCleanupAll verifies cleanup reporting.
func TestResourceTrackerCleanupAll(t *testing.T) {
	tracker := NewResourceTracker()

	tracker.TrackHandle("source", omx.Handle(1))
	tracker.TrackHandle("decoder", omx.Handle(2))
	tracker.TrackTunnel("source->decoder")
	tracker.TrackResource("lock", "some-lock")

	if count := tracker.Count(); count != 4 {
		t.Errorf("Total resources = %d, want 4", count)
	}

	errs := tracker.CleanupAll()

	if len(errs) != 4 {
		t.Errorf("Cleanup errors = %d, want 4 (nothing can be auto-freed)", len(errs))
	}

	if count := tracker.Count(); count != 0 {
		t.Errorf("Resources after cleanup = %d, want 0", count)
	}
}

// TestResourceTrackerCount verifies total count across resource kinds.
func TestResourceTrackerCount(t *testing.T) {
	tracker := NewResourceTracker()

	if count := tracker.Count(); count != 0 {
		t.Errorf("Initial count = %d, want 0", count)
	}

	tracker.TrackHandle("source", omx.Handle(1))
	tracker.TrackTunnel("source->decoder")
	tracker.TrackResource("lock", "lock")

	if count := tracker.Count(); count != 3 {
		t.Errorf("Total count = %d, want 3", count)
	}

	if count := tracker.HandleCount(); count != 1 {
		t.Errorf("HandleCount = %d, want 1", count)
	}
	if count := tracker.TunnelCount(); count != 1 {
		t.Errorf("TunnelCount = %d, want 1", count)
	}
	if count := tracker.ResourceCount(); count != 1 {
		t.Errorf("ResourceCount = %d, want 1", count)
	}
}

// TestResourceTrackerConcurrency verifies thread safety.
func TestResourceTrackerConcurrency(t *testing.T) {
	tracker := NewResourceTracker()
	const numGoroutines = 100

	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			tracker.TrackResource("resource", id)
			tracker.UntrackResource("resource")
			done <- true
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	// Due to concurrent overwrites on the same key, the final count might
	// be 0 or 1 depending on interleaving.
	if count := tracker.Count(); count > 1 {
		t.Errorf("Final count = %d, want 0 or 1 (concurrent overwrites allowed)", count)
	}
}

// TestResourceTrackerUntrackNonexistent verifies untracking nonexistent resources.
func TestResourceTrackerUntrackNonexistent(t *testing.T) {
	tracker := NewResourceTracker()

	tracker.UntrackHandle("nonexistent")
	tracker.UntrackTunnel("nonexistent")
	tracker.UntrackResource("nonexistent")

	if count := tracker.Count(); count != 0 {
		t.Errorf("Count after untracking nonexistent = %d, want 0", count)
	}
}

// TestResourceTrackerMultipleSameKey verifies overwriting with same key.
func TestResourceTrackerMultipleSameKey(t *testing.T) {
	tracker := NewResourceTracker()

	tracker.TrackHandle("key", omx.Handle(1))
	tracker.TrackHandle("key", omx.Handle(2))

	if count := tracker.HandleCount(); count != 1 {
		t.Errorf("HandleCount = %d, want 1 (overwrite)", count)
	}

	tracker.UntrackHandle("key")

	if count := tracker.HandleCount(); count != 0 {
		t.Errorf("HandleCount after untrack = %d, want 0", count)
	}
}

// BenchmarkResourceTrackerTrack measures tracking performance.
func BenchmarkResourceTrackerTrack(b *testing.B) {
	tracker := NewResourceTracker()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.TrackResource("resource", i)
		tracker.UntrackResource("resource")
	}
}

// BenchmarkResourceTrackerLeakedResources measures leak detection performance.
func BenchmarkResourceTrackerLeakedResources(b *testing.B) {
	tracker := NewResourceTracker()

	for i := 0; i < 100; i++ {
		tracker.TrackResource("resource-"+string(rune('a'+i%26)), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tracker.LeakedResources()
	}
}
