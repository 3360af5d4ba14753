// SPDX-License-Identifier: MIT

package ops

import (
	"errors"
	"testing"

	"github.com/tomtom215/playgraph/internal/omx"
)

// fakeDriver is a synchronous stand-in for *omx.Framework: every command
// completes immediately and is recorded, rather than dispatched through a
// goroutine and a registry, so ops tests don't need to wait on channels.
type fakeDriver struct {
	next      uint64
	states    map[omx.Handle]omx.State
	ports     map[omx.Handle]map[int]bool
	formats   map[omx.Handle]map[int]omx.PortFormat
	tunnels   []omx.Tunnel
	failNames map[string]error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		states:  make(map[omx.Handle]omx.State),
		ports:   make(map[omx.Handle]map[int]bool),
		formats: make(map[omx.Handle]map[int]omx.PortFormat),
	}
}

func (d *fakeDriver) GetHandle(name, role string, portCount int, callbackKey int) (omx.Handle, error) {
	if d.failNames != nil {
		if err, ok := d.failNames[name]; ok {
			return 0, err
		}
	}
	d.next++
	h := omx.Handle(d.next)
	d.states[h] = omx.StateLoaded
	d.ports[h] = make(map[int]bool)
	d.formats[h] = make(map[int]omx.PortFormat)
	return h, nil
}

func (d *fakeDriver) FreeHandle(h omx.Handle) error {
	delete(d.states, h)
	return nil
}

func (d *fakeDriver) SendCommand(h omx.Handle, cmd omx.Command, param int) error {
	switch cmd {
	case omx.CmdSetState:
		d.states[h] = omx.State(param)
	case omx.CmdPortDisable:
		d.ports[h][param] = false
	case omx.CmdPortEnable:
		d.ports[h][param] = true
	}
	return nil
}

func (d *fakeDriver) SetupTunnel(outH omx.Handle, outPort int, inH omx.Handle, inPort int) error {
	d.tunnels = append(d.tunnels, omx.Tunnel{OutHandle: outH, OutPort: outPort, InHandle: inH, InPort: inPort})
	return nil
}

func (d *fakeDriver) SetPortFormat(h omx.Handle, port int, dir omx.PortDirection, format omx.PortFormat) error {
	d.formats[h][port] = format
	return nil
}

func (d *fakeDriver) GetPortFormat(h omx.Handle, port int) (omx.PortFormat, error) {
	return d.formats[h][port], nil
}

func (d *fakeDriver) ComponentState(h omx.Handle) (omx.State, error) {
	return d.states[h], nil
}

func (d *fakeDriver) PortEnabled(h omx.Handle, port int) (bool, error) {
	return d.ports[h][port], nil
}

func newTestOps(t *testing.T, strategy Strategy) (*Ops, *fakeDriver) {
	t.Helper()
	d := newFakeDriver()
	o := New(d, strategy, 1, nil, nil)
	return o, d
}

func TestDoLoadBuildsPipelineHandles(t *testing.T) {
	o, d := newTestOps(t, NewLocalStrategy())
	o.DoLoad()
	if o.HandleCount() != 3 {
		t.Fatalf("HandleCount = %d, want 3", o.HandleCount())
	}
	if len(d.states) != 3 {
		t.Fatalf("driver has %d components, want 3", len(d.states))
	}
}

func TestLoaded2IdleDrainsLedgerOnArrival(t *testing.T) {
	o, d := newTestOps(t, NewLocalStrategy())
	o.DoLoad()
	o.DoLoaded2Idle()

	for i, h := range o.handles {
		complete := o.IsTransComplete(h, omx.StateIdle)
		if i < len(o.handles)-1 && complete {
			t.Fatalf("ledger reported complete after %d of %d arrivals", i+1, len(o.handles))
		}
		if i == len(o.handles)-1 && !complete {
			t.Fatal("ledger should be complete after the last arrival")
		}
	}
	for _, h := range o.handles {
		if d.states[h] != omx.StateIdle {
			t.Fatalf("component %s not idle", o.h2n[h])
		}
	}
}

func TestIsTransCompleteIgnoresUnrelatedArrival(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoLoad()
	o.DoLoaded2Idle()

	if o.IsTransComplete(omx.Handle(9999), omx.StateIdle) {
		t.Fatal("unrelated handle should not complete the ledger")
	}
	if o.transitions.Len() != len(o.handles) {
		t.Fatalf("ledger drained by unrelated arrival: len=%d", o.transitions.Len())
	}
}

func TestDisableEnableTunnelPortLedger(t *testing.T) {
	o, d := newTestOps(t, NewLocalStrategy())
	o.DoLoad()
	o.DoDisableTunnel(0)

	out, in := o.handles[0], o.handles[1]
	if o.IsPortDisablingComplete(out, 1) {
		t.Fatal("should not be complete after only one port arrival")
	}
	if !o.IsPortDisablingComplete(in, 0) {
		t.Fatal("should be complete after both port arrivals")
	}
	if d.ports[out][1] || d.ports[in][0] {
		t.Fatal("ports should be disabled")
	}

	o.DoEnableTunnel(0)
	o.IsPortEnablingComplete(out, 1)
	if !o.IsPortEnablingComplete(in, 0) {
		t.Fatal("enabling should be complete after both port arrivals")
	}
}

func TestLastOpSucceededReflectsRecordedError(t *testing.T) {
	o, d := newTestOps(t, NewLocalStrategy())
	if !o.LastOpSucceeded() {
		t.Fatal("fresh Ops should report success")
	}
	d.failNames = map[string]error{"source": ErrInsufficientResources}
	o.DoLoad()
	if o.LastOpSucceeded() {
		t.Fatal("failed load should clear LastOpSucceeded")
	}
	if !o.IsFatalError() {
		t.Fatal("insufficient resources should be classified fatal")
	}
}

func TestIsLastEOSIdentifiesRenderer(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoLoad()
	renderer := o.handles[len(o.handles)-1]
	decoder := o.handles[0]
	if !o.IsLastEOS(renderer) {
		t.Fatal("renderer should be the last-EOS component")
	}
	if o.IsLastEOS(decoder) {
		t.Fatal("source component should not be the last-EOS component")
	}
}

func TestDoStoreSkipClampsToPlaylistBounds(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoStoreConfig(&Playlist{Items: []Track{{URI: "a"}, {URI: "b"}, {URI: "c"}}})

	o.DoStoreSkip(1)
	if o.position != 1 {
		t.Fatalf("position = %d, want 1", o.position)
	}
	o.DoStoreSkip(5)
	if o.position != 2 {
		t.Fatalf("position = %d, want clamped to 2", o.position)
	}
	o.DoStoreSkip(-10)
	if o.position != 0 {
		t.Fatalf("position = %d, want clamped to 0", o.position)
	}
}

// TestIsEndOfPlayLastTrackIsNotOvershoot covers a 2-track playlist at
// position 0: skip(+1) lands exactly on the last track, an entirely
// ordinary skip, and must not be confused with skipping past the end.
func TestIsEndOfPlayLastTrackIsNotOvershoot(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoStoreConfig(&Playlist{Items: []Track{{URI: "a"}, {URI: "b"}}})
	if o.IsEndOfPlay() {
		t.Fatal("should not be end of play at position 0 of 2")
	}

	o.DoStoreSkip(1)
	if o.position != 1 {
		t.Fatalf("position = %d, want 1", o.position)
	}
	if o.IsEndOfPlay() {
		t.Fatal("landing on the last track is an ordinary skip, not end of play")
	}

	o.DoStorePosition(1)
	if o.IsEndOfPlay() {
		t.Fatal("an explicit move to the last track is an ordinary position, not end of play")
	}
}

// TestIsEndOfPlayOnOvershoot covers skipping or jumping past the last
// track: the unclamped target fell outside [0, len) before DoStoreSkip/
// DoStorePosition clamped it back into range, which IsEndOfPlay must still
// see even though the stored position itself looks like an ordinary index.
func TestIsEndOfPlayOnOvershoot(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoStoreConfig(&Playlist{Items: []Track{{URI: "a"}, {URI: "b"}}})

	o.DoStoreSkip(5)
	if o.position != 1 {
		t.Fatalf("position = %d, want clamped to 1", o.position)
	}
	if !o.IsEndOfPlay() {
		t.Fatal("skipping past the last track should be end of play")
	}

	o.DoStoreConfig(&Playlist{Items: []Track{{URI: "a"}, {URI: "b"}}})
	o.DoStorePosition(9)
	if !o.IsEndOfPlay() {
		t.Fatal("moving to an out-of-range position should be end of play")
	}
}

func TestDoToggleMuteSavesAndRestoresVolume(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoVolume(0.7)
	o.DoToggleMute()
	if !o.muted {
		t.Fatal("should be muted")
	}
	o.DoToggleMute()
	if o.muted {
		t.Fatal("should be unmuted")
	}
	if o.volume != 0.7 {
		t.Fatalf("volume = %v, want restored 0.7", o.volume)
	}
}

func TestContainerStrategySkipAppliesNewSourceURI(t *testing.T) {
	o, d := newTestOps(t, NewContainerStrategy(GraphContainer))
	o.DoStoreConfig(&Playlist{Items: []Track{{URI: "uri-a"}, {URI: "uri-b"}}})
	o.DoLoad()
	o.DoStoreSkip(1)
	o.DoSkip()

	format := d.formats[o.handles[0]][0]
	if format.Details["uri"] != "uri-b" {
		t.Fatalf("source format uri = %q, want uri-b", format.Details["uri"])
	}
}

func TestDoDestroyGraphFreesAllHandles(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoLoad()
	if o.HandleCount() != 3 {
		t.Fatalf("HandleCount before destroy = %d", o.HandleCount())
	}
	o.DoDestroyGraph()
	if o.HandleCount() != 0 {
		t.Fatalf("HandleCount after destroy = %d, want 0", o.HandleCount())
	}
}

func TestLocalStrategySkipIsANoop(t *testing.T) {
	o, _ := newTestOps(t, NewLocalStrategy())
	o.DoLoad()
	if err := o.strategy.Skip(o); err != nil {
		t.Fatalf("local strategy skip should not error: %v", err)
	}
}

func TestContainerStrategyRecoversFromStreamCorrupt(t *testing.T) {
	s := NewContainerStrategy(GraphContainer)
	if s.IsFatalError(ErrStreamCorrupt) {
		t.Fatal("stream-corrupt should be recoverable for a container graph")
	}
	if !s.IsFatalError(ErrInsufficientResources) {
		t.Fatal("insufficient resources should remain fatal for a container graph")
	}
}

func TestRecordErrorClassifiesInternalErrors(t *testing.T) {
	o, _ := newTestOps(t, NewContainerStrategy(GraphContainer))
	o.DoLoad()
	o.DoSkip() // no track stored: should record an internal error
	if !errors.Is(o.LastError(), ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", o.LastError())
	}
	if !o.IsInternalError() {
		t.Fatal("IsInternalError should be true")
	}
	if o.IsFatalError() {
		t.Fatal("an internal error should not be classified fatal")
	}
}
