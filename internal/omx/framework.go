// SPDX-License-Identifier: MIT

package omx

import (
	"fmt"
	"sync"
)

// component is a simulated framework component instance.
type component struct {
	mu          sync.Mutex
	name        string
	role        string
	state       State
	ports       map[int]*Port
	callbackKey int
}

// Framework simulates the small slice of an OpenMAX IL-style component
// framework the controller depends on: component creation/destruction,
// SendCommand-driven state and port transitions, tunnel setup, and the
// EventHandler callback path. It is the out-of-scope external collaborator
// from spec.md §1, modeled only through its consumed/produced interface.
//
// A Framework is never a package-level singleton: it is constructed
// explicitly and passed to ops/controller constructors.
type Framework struct {
	registry *Registry

	mu         sync.Mutex
	handles    map[Handle]*component
	nextHandle uint64
	tunnels    []Tunnel
}

// NewFramework creates a Framework backed by the given callback registry.
func NewFramework(registry *Registry) *Framework {
	return &Framework{
		registry: registry,
		handles:  make(map[Handle]*component),
	}
}

// GetHandle creates a component instance with portCount input/output ports
// (indices 0..portCount-1, direction assigned by the caller via
// SetPortFormat) and associates it with the callback registered under
// callbackKey.
func (f *Framework) GetHandle(name, role string, portCount int, callbackKey int) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextHandle++
	h := Handle(f.nextHandle)

	ports := make(map[int]*Port, portCount)
	for i := 0; i < portCount; i++ {
		ports[i] = &Port{Index: i, Enabled: false}
	}

	f.handles[h] = &component{
		name:        name,
		role:        role,
		state:       StateLoaded,
		ports:       ports,
		callbackKey: callbackKey,
	}
	return h, nil
}

// FreeHandle destroys a component instance. Freeing an unknown handle is a
// no-op error, matching OMX_FreeHandle's behavior on a stale handle.
func (f *Framework) FreeHandle(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.handles[h]; !ok {
		return fmt.Errorf("omx: free unknown handle %d", h)
	}
	delete(f.handles, h)
	return nil
}

func (f *Framework) lookup(h Handle) (*component, error) {
	f.mu.Lock()
	c, ok := f.handles[h]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("omx: unknown handle %d", h)
	}
	return c, nil
}

// SendCommand issues a command to a component. State and port transitions
// complete asynchronously: the framework posts the corresponding event to
// the component's registered callback from a separate goroutine, mirroring
// the real framework's callback-on-arbitrary-thread behavior (spec.md §5).
func (f *Framework) SendCommand(h Handle, cmd Command, param int) error {
	c, err := f.lookup(h)
	if err != nil {
		return err
	}

	switch cmd {
	case CmdSetState:
		target := State(param)
		go f.completeSetState(h, c, target)
	case CmdPortDisable:
		go f.completePortCommand(h, c, param, false, EventPortDisabled)
	case CmdPortEnable:
		go f.completePortCommand(h, c, param, true, EventPortEnabled)
	case CmdFlush:
		// Flush completes synchronously from the framework's point of view;
		// no event is required for the controller to proceed.
	default:
		return fmt.Errorf("omx: unsupported command %s", cmd)
	}
	return nil
}

func (f *Framework) completeSetState(h Handle, c *component, target State) {
	c.mu.Lock()
	c.state = target
	cbKey := c.callbackKey
	c.mu.Unlock()

	f.registry.Dispatch(cbKey, Event{Kind: EventTransComplete, Handle: h, State: target})
}

func (f *Framework) completePortCommand(h Handle, c *component, port int, enabled bool, kind EventKind) {
	c.mu.Lock()
	if p, ok := c.ports[port]; ok {
		p.Enabled = enabled
	}
	cbKey := c.callbackKey
	c.mu.Unlock()

	f.registry.Dispatch(cbKey, Event{Kind: kind, Handle: h, Port: port})
}

// SetupTunnel records a tunnel between two component ports. It does not by
// itself enable either port; enabling is driven by explicit SendCommand
// calls, per spec.md's tunnel invariant.
func (f *Framework) SetupTunnel(outH Handle, outPort int, inH Handle, inPort int) error {
	if _, err := f.lookup(outH); err != nil {
		return err
	}
	if _, err := f.lookup(inH); err != nil {
		return err
	}
	f.mu.Lock()
	f.tunnels = append(f.tunnels, Tunnel{OutHandle: outH, OutPort: outPort, InHandle: inH, InPort: inPort})
	f.mu.Unlock()
	return nil
}

// SetPortFormat sets a port's negotiated format (the OMX_SetParameter /
// OMX_SetConfig path collapsed into one call for this model).
func (f *Framework) SetPortFormat(h Handle, port int, dir PortDirection, format PortFormat) error {
	c, err := f.lookup(h)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.ports[port]
	if !ok {
		return fmt.Errorf("omx: unknown port %d on handle %d", port, h)
	}
	p.Dir = dir
	p.Format = format
	return nil
}

// GetPortFormat returns a port's current negotiated format.
func (f *Framework) GetPortFormat(h Handle, port int) (PortFormat, error) {
	c, err := f.lookup(h)
	if err != nil {
		return PortFormat{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.ports[port]
	if !ok {
		return PortFormat{}, fmt.Errorf("omx: unknown port %d on handle %d", port, h)
	}
	return p.Format, nil
}

// ComponentState returns a component's current lifecycle state.
func (f *Framework) ComponentState(h Handle) (State, error) {
	c, err := f.lookup(h)
	if err != nil {
		return StateLoaded, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

// PortEnabled reports whether a port is currently enabled.
func (f *Framework) PortEnabled(h Handle, port int) (bool, error) {
	c, err := f.lookup(h)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.ports[port]
	if !ok {
		return false, fmt.Errorf("omx: unknown port %d on handle %d", port, h)
	}
	return p.Enabled, nil
}

// EmptyThisBuffer and FillThisBuffer are stubs: actual media buffer flow is
// out of scope for the playback graph controller (spec.md §1); only the
// control-plane events they can indirectly trigger (EOS, errors) matter
// here, and tests inject those directly via the registry.

// EmptyThisBuffer requests a component consume an input buffer.
func (f *Framework) EmptyThisBuffer(h Handle, port int) error {
	if _, err := f.lookup(h); err != nil {
		return err
	}
	return nil
}

// FillThisBuffer requests a component produce an output buffer.
func (f *Framework) FillThisBuffer(h Handle, port int) error {
	if _, err := f.lookup(h); err != nil {
		return err
	}
	return nil
}

// HandleCount returns the number of live component handles. The
// diagnostics live-handle check reads ops.Ops.HandleCount instead; this
// framework-side count is used by the omx tests.
func (f *Framework) HandleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}
