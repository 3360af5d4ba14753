// SPDX-License-Identifier: MIT

// Package ops implements the operations layer: the catalog of do_* actions
// and is_*/last_* predicates the playback FSM invokes, plus the
// expected-transition ledgers that let those predicates tell a multi-step
// pipeline operation apart from a still-in-flight one. Grounded on
// tizgraphops.hpp (the operation/predicate catalog and ledger fields) and on
// the teacher's stream.Manager (mutex-protected mutable session state,
// structured logging on every state change).
package ops

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tomtom215/playgraph/internal/omx"
)

// Ops holds the mutable state of one playback session: the component
// pipeline, the playlist and cursor, the expected-transition ledgers, and
// the last recorded error. Every do_* method and predicate is a method on
// Ops; the FSM never manipulates this state directly (spec.md §4.2).
//
// Ops is driven from a single goroutine (the owning controller's event
// loop); the mutex below guards only the fields a concurrently-running
// health/diagnostics reader may observe (Metrics, LastError).
type Ops struct {
	mu sync.Mutex

	driver      Driver
	strategy    Strategy
	callbackKey int
	logger      *slog.Logger
	notifier    Notifier

	compNames []string
	compRoles []string
	handles   []omx.Handle
	h2n       map[omx.Handle]string

	transitions     *transitionLedger
	portTransitions *portLedger

	playlist         *Playlist
	position         int
	overshotEnd      bool
	jump             int
	destinationState omx.State
	volume           float64
	muted            bool
	savedVolume      float64
	duration         time.Duration
	metadata         map[string]string

	lastErr       error
	lastErrFatal  bool
	internalError bool
	endOfPlay     bool
}

// New constructs an Ops for one playback session. callbackKey must already
// be registered by the owning controller against its event queue; every
// component handle the session creates shares it.
func New(driver Driver, strategy Strategy, callbackKey int, logger *slog.Logger, notifier Notifier) *Ops {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Ops{
		driver:          driver,
		strategy:        strategy,
		callbackKey:     callbackKey,
		logger:          logger,
		notifier:        notifier,
		transitions:     newTransitionLedger(),
		portTransitions: newPortLedger(),
		jump:            1,
		volume:          1.0,
		metadata:        make(map[string]string),
	}
}

func (o *Ops) recordError(err error, context string) {
	o.mu.Lock()
	o.lastErr = err
	o.lastErrFatal = o.strategy.IsFatalError(err)
	o.internalError = errors.Is(err, ErrInternal)
	o.mu.Unlock()
	o.logger.Error("ops error", "context", context, "err", err, "fatal", o.lastErrFatal)
}

// LastError returns the most recently recorded error, or nil.
func (o *Ops) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// HandleCount reports the number of component handles currently held,
// for internal/diagnostics' live-handle invariant check.
func (o *Ops) HandleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, h := range o.handles {
		if h != 0 {
			n++
		}
	}
	return n
}

// Handles returns a copy of the pipeline's component handles, in
// source-to-sink order; a component not yet loaded appears as a zero
// handle. Used by tests that need to address a specific component.
func (o *Ops) Handles() []omx.Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]omx.Handle, len(o.handles))
	copy(out, o.handles)
	return out
}

// ExpectedHandleCount reports the pipeline length the strategy's component
// list would build once loaded, for internal/diagnostics' live-handle
// invariant check (spec.md §8).
func (o *Ops) ExpectedHandleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.compNames)
}

// LedgerEmpty reports whether both expected-transition ledgers are fully
// drained: no component-state arrival and no port-enable/disable completion
// is still outstanding.
func (o *Ops) LedgerEmpty() bool {
	return o.transitions.Empty() && o.portTransitions.emptyOf(true) && o.portTransitions.emptyOf(false)
}

// TransitionLedgerLen reports the number of distinct outstanding
// component-state expectations, for diagnostics detail messages.
func (o *Ops) TransitionLedgerLen() int { return o.transitions.Len() }

// PortLedgerLen reports the number of distinct outstanding port-transition
// expectations, for diagnostics detail messages.
func (o *Ops) PortLedgerLen() int { return o.portTransitions.Len() }

// --- load / configure / idle2exe -------------------------------------------

// DoLoad builds the pipeline by asking the strategy for its component list
// and acquiring a handle for each.
func (o *Ops) DoLoad() {
	names, roles := o.strategy.Components()
	o.compNames, o.compRoles = names, roles
	if err := buildPipeline(o, names, roles); err != nil {
		return
	}
	o.logger.Info("pipeline loaded", "graph", o.strategy.Kind(), "components", names)
}

// DoLoadComp loads a single component by pipeline index (used by the
// auto-detecting composite, which only needs the source component before
// the rest of the graph is known).
func (o *Ops) DoLoadComp(i int) {
	names, roles := o.strategy.Components()
	if i >= len(names) {
		o.recordError(fmt.Errorf("%w: component index %d out of range", ErrInternal, i), "load_comp")
		return
	}
	if o.h2n == nil {
		o.compNames, o.compRoles = names, roles
		o.handles = make([]omx.Handle, len(names))
		o.h2n = make(map[omx.Handle]string, len(names))
	}
	if o.handles[i] != 0 {
		return
	}
	h, err := o.driver.GetHandle(names[i], roles[i], 2, o.callbackKey)
	if err != nil {
		o.recordError(err, "load_comp "+names[i])
		return
	}
	o.handles[i] = h
	o.h2n[h] = names[i]
}

// DoAckLoaded notifies that the Loaded state has been reached.
func (o *Ops) DoAckLoaded() {
	o.notifier.OnLoaded()
}

// DoStoreConfig records the playlist to be played.
func (o *Ops) DoStoreConfig(playlist *Playlist) {
	o.playlist = playlist
	o.position = 0
	o.overshotEnd = false
}

// DoEnableAutoDetection asks the source component to probe the incoming
// stream's format; completion arrives as an omx_format_detected_evt or
// omx_port_settings_evt.
func (o *Ops) DoEnableAutoDetection(compIdx, portIdx int) {
	if compIdx >= len(o.handles) {
		o.recordError(fmt.Errorf("%w: component index %d out of range", ErrInternal, compIdx), "enable_auto_detection")
		return
	}
	if err := o.driver.SendCommand(o.handles[compIdx], omx.CmdPortEnable, portIdx); err != nil {
		o.recordError(err, "enable_auto_detection")
	}
}

// DoDisableCompPorts disables port portIdx of component compIdx and records
// the expected port-disabled arrival. Used by the auto-detecting composite
// before the rest of the graph exists, so unlike DoDisableTunnel there is
// only one component's one port to wait on, not a tunnel pair.
func (o *Ops) DoDisableCompPorts(compIdx, portIdx int) {
	if compIdx < 0 || compIdx >= len(o.handles) {
		o.recordError(fmt.Errorf("%w: component index %d out of range", ErrInternal, compIdx), "disable_comp_ports")
		return
	}
	h := o.handles[compIdx]
	o.portTransitions.Clear()
	o.portTransitions.AddExpected(h, portIdx, false)
	if err := o.driver.SendCommand(h, omx.CmdPortDisable, portIdx); err != nil {
		o.recordError(err, "disable_comp_ports")
	}
}

// DoSetup finishes building the remainder of the pipeline once the source's
// format has been detected: the remaining components are loaded and tunnels
// wired between every adjacent pair.
func (o *Ops) DoSetup() {
	for i := 1; i < len(o.compNames); i++ {
		if o.handles[i] != 0 {
			continue
		}
		h, err := o.driver.GetHandle(o.compNames[i], o.compRoles[i], 2, o.callbackKey)
		if err != nil {
			o.recordError(err, "setup "+o.compNames[i])
			return
		}
		o.handles[i] = h
		o.h2n[h] = o.compNames[i]
	}
	for i := 0; i < len(o.handles)-1; i++ {
		o.DoSetupTunnel(i)
	}
}

// DoSetupTunnel wires tunnel i between component i's output and component
// i+1's input.
func (o *Ops) DoSetupTunnel(i int) {
	if i < 0 || i >= len(o.handles)-1 {
		o.recordError(fmt.Errorf("%w: tunnel index %d out of range", ErrInternal, i), "setup_tunnel")
		return
	}
	if err := o.driver.SetupTunnel(o.handles[i], 1, o.handles[i+1], 0); err != nil {
		o.recordError(err, "setup_tunnel")
	}
}

// DoConfigure asks the strategy to run its stream-probing hook.
func (o *Ops) DoConfigure() {
	if err := o.strategy.ProbeHook(o); err != nil {
		o.recordError(err, "configure")
	}
}

// DoConfigureComp is the single-component variant used while only the
// source component exists (auto-detecting composite).
func (o *Ops) DoConfigureComp(i int) {
	o.DoConfigure()
}

// DoLoaded2Idle transitions every component from Loaded to Idle and records
// the expected arrivals on the transition ledger.
func (o *Ops) DoLoaded2Idle() {
	o.transitions.Clear()
	for _, h := range o.handles {
		o.transitions.AddExpected(h, omx.StateIdle)
		if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateIdle)); err != nil {
			o.recordError(err, "loaded2idle")
		}
	}
}

// DoLoaded2IdleComp is the single-component variant for the auto-detecting
// composite.
func (o *Ops) DoLoaded2IdleComp(i int) {
	if i >= len(o.handles) {
		return
	}
	h := o.handles[i]
	o.transitions.Clear()
	o.transitions.AddExpected(h, omx.StateIdle)
	if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateIdle)); err != nil {
		o.recordError(err, "loaded2idle_comp")
	}
}

// DoIdle2Exe transitions every component from Idle to Executing.
func (o *Ops) DoIdle2Exe() {
	o.transitions.Clear()
	for _, h := range o.handles {
		o.transitions.AddExpected(h, omx.StateExecuting)
		if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateExecuting)); err != nil {
			o.recordError(err, "idle2exe")
		}
	}
}

// DoIdle2ExeComp is the single-component variant for the auto-detecting
// composite.
func (o *Ops) DoIdle2ExeComp(i int) {
	if i >= len(o.handles) {
		return
	}
	h := o.handles[i]
	o.transitions.Clear()
	o.transitions.AddExpected(h, omx.StateExecuting)
	if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateExecuting)); err != nil {
		o.recordError(err, "idle2exe_comp")
	}
}

// --- tunnel disable/enable/reconfigure --------------------------------------

// DoDisableTunnel disables both ports of tunnel i and records the expected
// port-disabled arrivals.
func (o *Ops) DoDisableTunnel(i int) {
	if i < 0 || i >= len(o.handles)-1 {
		o.recordError(fmt.Errorf("%w: tunnel index %d out of range", ErrInternal, i), "disable_tunnel")
		return
	}
	o.portTransitions.Clear()
	out, in := o.handles[i], o.handles[i+1]
	o.portTransitions.AddExpected(out, 1, false)
	o.portTransitions.AddExpected(in, 0, false)
	if err := o.driver.SendCommand(out, omx.CmdPortDisable, 1); err != nil {
		o.recordError(err, "disable_tunnel")
	}
	if err := o.driver.SendCommand(in, omx.CmdPortDisable, 0); err != nil {
		o.recordError(err, "disable_tunnel")
	}
}

// DoEnableTunnel enables both ports of tunnel i and records the expected
// port-enabled arrivals.
func (o *Ops) DoEnableTunnel(i int) {
	if i < 0 || i >= len(o.handles)-1 {
		o.recordError(fmt.Errorf("%w: tunnel index %d out of range", ErrInternal, i), "enable_tunnel")
		return
	}
	o.portTransitions.Clear()
	out, in := o.handles[i], o.handles[i+1]
	o.portTransitions.AddExpected(out, 1, true)
	o.portTransitions.AddExpected(in, 0, true)
	if err := o.driver.SendCommand(out, omx.CmdPortEnable, 1); err != nil {
		o.recordError(err, "enable_tunnel")
	}
	if err := o.driver.SendCommand(in, omx.CmdPortEnable, 0); err != nil {
		o.recordError(err, "enable_tunnel")
	}
}

// DoReconfigureTunnel delegates to the strategy's format-propagation logic.
func (o *Ops) DoReconfigureTunnel(i int) {
	if err := o.strategy.ReconfigureTunnel(o, i); err != nil {
		o.recordError(err, "reconfigure_tunnel")
	}
}

// --- playback control --------------------------------------------------------

// DoAckExecd notifies that the Executing state has been reached.
func (o *Ops) DoAckExecd() {
	o.notifier.OnExecuting()
}

// DoStartProgressDisplay begins progress reporting for the current track.
func (o *Ops) DoStartProgressDisplay() {
	o.notifier.OnProgress(o.position, 0)
}

// DoStopProgressDisplay stops progress reporting.
func (o *Ops) DoStopProgressDisplay() {}

// DoIncreaseProgressDisplay advances the reported elapsed time by one timer
// tick (spec.md's timer_evt self-loop on executing).
func (o *Ops) DoIncreaseProgressDisplay() {
	o.mu.Lock()
	o.duration += time.Second
	elapsed := o.duration
	o.mu.Unlock()
	o.notifier.OnProgress(o.position, elapsed)
}

// DoRetrieveMetadata refreshes the cached metadata for the current track.
func (o *Ops) DoRetrieveMetadata() {
	o.mu.Lock()
	o.duration = 0
	o.mu.Unlock()
	if err := o.strategy.ProbeHook(o); err != nil {
		o.recordError(err, "retrieve_metadata")
		return
	}
	o.notifier.OnMetadata(o.metadata)
}

// DoMute reapplies the current mute/volume state to the renderer component
// after a graph change, since OMX components reset audio config on
// reconfiguration.
func (o *Ops) DoMute() {
	if o.muted {
		o.notifier.OnVolume(0)
		return
	}
	o.notifier.OnVolume(o.volume)
}

// DoExe2Pause requests every component transition to Pause.
func (o *Ops) DoExe2Pause() {
	o.transitions.Clear()
	for _, h := range o.handles {
		o.transitions.AddExpected(h, omx.StatePause)
		if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StatePause)); err != nil {
			o.recordError(err, "exe2pause")
		}
	}
}

// DoAckPaused notifies that the Pause state has been reached.
func (o *Ops) DoAckPaused() { o.notifier.OnPaused() }

// DoPause2Exe requests every component transition back to Executing.
func (o *Ops) DoPause2Exe() {
	o.transitions.Clear()
	for _, h := range o.handles {
		o.transitions.AddExpected(h, omx.StateExecuting)
		if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateExecuting)); err != nil {
			o.recordError(err, "pause2exe")
		}
	}
}

// DoAckResumed notifies that playback resumed.
func (o *Ops) DoAckResumed() { o.notifier.OnResumed() }

// DoPause2Idle requests every component transition from Pause to Idle.
func (o *Ops) DoPause2Idle() {
	o.transitions.Clear()
	for _, h := range o.handles {
		o.transitions.AddExpected(h, omx.StateIdle)
		if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateIdle)); err != nil {
			o.recordError(err, "pause2idle")
		}
	}
}

// DoRecordDestination records the state the graph is ultimately headed for
// (used by stop_evt, which routes pause through idle on its way to
// unloaded).
func (o *Ops) DoRecordDestination(s omx.State) {
	o.mu.Lock()
	o.destinationState = s
	o.mu.Unlock()
}

// --- teardown ----------------------------------------------------------------

// DoExe2Idle requests every component transition to Idle from Executing,
// tolerating components that are already idle or have failed.
func (o *Ops) DoExe2Idle() {
	o.transitions.Clear()
	for _, h := range o.handles {
		o.transitions.AddExpected(h, omx.StateIdle)
		if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateIdle)); err != nil {
			o.recordError(err, "exe2idle")
		}
	}
}

// DoIdle2Loaded requests every component transition to Loaded from Idle.
func (o *Ops) DoIdle2Loaded() {
	o.transitions.Clear()
	for _, h := range o.handles {
		o.transitions.AddExpected(h, omx.StateLoaded)
		if err := o.driver.SendCommand(h, omx.CmdSetState, int(omx.StateLoaded)); err != nil {
			o.recordError(err, "idle2loaded")
		}
	}
}

// DoTearDownTunnels drops the recorded tunnel bookkeeping. The framework
// itself tears tunnels down implicitly when components free their handles.
func (o *Ops) DoTearDownTunnels() {
	o.transitions.Clear()
	o.portTransitions.Clear()
}

// DoDestroyGraph frees every component handle.
func (o *Ops) DoDestroyGraph() {
	for _, h := range o.handles {
		if err := o.driver.FreeHandle(h); err != nil {
			o.logger.Warn("free handle failed", "handle", h, "err", err)
		}
	}
	o.handles = nil
	o.h2n = nil
	o.notifier.OnUnloaded()
}

// DoError notifies that the graph errored out.
func (o *Ops) DoError() {
	o.mu.Lock()
	err := o.lastErr
	o.mu.Unlock()
	o.notifier.OnError(err, "playback error")
}

// DoEndOfPlay notifies that the playlist has been fully played.
func (o *Ops) DoEndOfPlay() {
	o.mu.Lock()
	o.endOfPlay = true
	o.mu.Unlock()
	o.notifier.OnEndOfPlay()
}

// DoRecordFatalError records a component-originated error and classifies
// it. Per spec.md §4.1's Open Question, fatality is always decided by
// consulting the strategy rather than inferred generically.
func (o *Ops) DoRecordFatalError(h omx.Handle, err error, port int) {
	o.recordError(err, fmt.Sprintf("component %s port %d", o.h2n[h], port))
}

// --- playlist navigation -----------------------------------------------------

// DoSeek sets the reported elapsed time of the current track to position
// (an offset in seconds) and reports it through OnProgress; no command is
// sent to the components. Unlike DoStorePosition/DoSkip, it does not move
// the playlist cursor: it addresses a point inside the track currently
// playing.
func (o *Ops) DoSeek(position int) {
	o.mu.Lock()
	o.duration = time.Duration(position) * time.Second
	o.mu.Unlock()
	o.notifier.OnProgress(o.position, time.Duration(position)*time.Second)
}

// DoStorePosition moves the playlist cursor directly to pos.
func (o *Ops) DoStorePosition(pos int) {
	o.mu.Lock()
	o.position, o.overshotEnd = o.clampPosition(pos)
	o.mu.Unlock()
}

// DoStoreSkip advances the playlist cursor by jump tracks (negative jump
// skips backward).
func (o *Ops) DoStoreSkip(jump int) {
	o.mu.Lock()
	o.jump = jump
	o.position, o.overshotEnd = o.clampPosition(o.position + jump)
	o.mu.Unlock()
}

// clampPosition clamps next into the playlist's valid index range and
// reports whether next actually fell outside [0, len) before clamping: a
// landing exactly on the last track is a valid position, not an overshoot,
// so IsEndOfPlay must consult this flag rather than re-derive it from the
// already-clamped result. Caller must hold o.mu.
func (o *Ops) clampPosition(next int) (clamped int, overshot bool) {
	if o.playlist == nil {
		return next, false
	}
	if next < 0 {
		return 0, true
	}
	if n := o.playlist.Len(); n > 0 && next >= n {
		return n - 1, true
	}
	return next, false
}

// DoSkip asks the strategy to splice in the track at the new cursor
// position.
func (o *Ops) DoSkip() {
	if err := o.strategy.Skip(o); err != nil {
		o.recordError(err, "skip")
	}
}

// DoPrintPlaylist logs the current playlist; a session driver normally
// surfaces this over its own interface rather than via the Notifier.
func (o *Ops) DoPrintPlaylist() {
	if o.playlist == nil {
		return
	}
	for i, t := range o.playlist.Items {
		o.logger.Info("playlist item", "position", i, "uri", t.URI, "title", t.Title)
	}
}

// DoAddPlaylist appends tracks to the current playlist.
func (o *Ops) DoAddPlaylist(items []Track) {
	if o.playlist == nil {
		o.playlist = &Playlist{}
	}
	o.playlist.Items = append(o.playlist.Items, items...)
}

// --- volume -------------------------------------------------------------------

// DoVolumeStep adjusts the volume by step percentage points (-100..100).
func (o *Ops) DoVolumeStep(step int) {
	o.mu.Lock()
	o.volume = clamp01(o.volume + float64(step)/100.0)
	v := o.volume
	o.mu.Unlock()
	o.notifier.OnVolume(v)
}

// DoVolume sets the volume directly (0.0..1.0).
func (o *Ops) DoVolume(v float64) {
	o.mu.Lock()
	o.volume = clamp01(v)
	vv := o.volume
	o.mu.Unlock()
	o.notifier.OnVolume(vv)
}

// DoToggleMute flips the mute flag in response to a mute_evt, saving or
// restoring the pre-mute volume.
func (o *Ops) DoToggleMute() {
	o.mu.Lock()
	if o.muted {
		o.muted = false
		v := o.savedVolume
		o.mu.Unlock()
		o.notifier.OnVolume(v)
		return
	}
	o.savedVolume = o.volume
	o.muted = true
	o.mu.Unlock()
	o.notifier.OnVolume(0)
}

// DoRestoreVolume restores the volume saved before a mute.
func (o *Ops) DoRestoreVolume() {
	o.mu.Lock()
	o.muted = false
	v := o.savedVolume
	o.mu.Unlock()
	o.notifier.OnVolume(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- predicates ----------------------------------------------------------------

// IsTransComplete drains the expected arrival (h, s) from the transition
// ledger, if present, and reports whether the ledger is now fully drained.
func (o *Ops) IsTransComplete(h omx.Handle, s omx.State) bool {
	o.transitions.Arrive(h, s)
	return o.transitions.Empty()
}

// IsPortDisablingComplete drains the expected port-disabled arrival and
// reports whether every port disable this round has completed.
func (o *Ops) IsPortDisablingComplete(h omx.Handle, port int) bool {
	o.portTransitions.Arrive(h, port, false)
	return o.portTransitions.emptyOf(false)
}

// IsPortEnablingComplete drains the expected port-enabled arrival and
// reports whether every port enable this round has completed.
func (o *Ops) IsPortEnablingComplete(h omx.Handle, port int) bool {
	o.portTransitions.Arrive(h, port, true)
	return o.portTransitions.emptyOf(true)
}

// LastOpSucceeded reports whether no error has been recorded: any recorded
// error, fatal or not, makes it false.
func (o *Ops) LastOpSucceeded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr == nil
}

// IsEndOfPlay reports whether the playlist has been fully consumed: either
// DoEndOfPlay already recorded a real end-of-play event, or the last
// DoStoreSkip/DoStorePosition computed a target that fell outside the
// playlist (before the first track or past the last) before being clamped
// into range. Landing exactly on the last track
// is an ordinary position, not an overshoot, so this must not be
// re-derived from the clamped position itself.
func (o *Ops) IsEndOfPlay() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.endOfPlay || o.overshotEnd
}

// IsFatalError reports whether the last recorded error is fatal to the
// whole graph.
func (o *Ops) IsFatalError() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr != nil && o.lastErrFatal
}

// ClassifyFatal reports whether err would be fatal to the whole graph,
// without recording it. Guards on an incoming omx_err event classify the
// event's own error this way, since the event hasn't been recorded onto
// Ops yet at guard-evaluation time (the do_record_fatal_error action that
// records it only runs after the guard has already picked this row).
func (o *Ops) ClassifyFatal(err error) bool {
	return o.strategy.IsFatalError(err)
}

// IsInternalError reports whether the last recorded error originated inside
// ops itself rather than from the framework.
func (o *Ops) IsInternalError() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.internalError
}

// IsLastEOS reports whether h is the final (renderer) component in the
// pipeline, distinguishing an end-of-stream event that should restart
// progress display from one that should be ignored (spec.md §9's Open
// Question, resolved in DESIGN.md).
func (o *Ops) IsLastEOS(h omx.Handle) bool {
	return len(o.handles) > 0 && h == o.handles[len(o.handles)-1]
}

// IsFirstComponent reports whether h is the source (first) component.
func (o *Ops) IsFirstComponent(h omx.Handle) bool {
	return len(o.handles) > 0 && h == o.handles[0]
}

// IsLastComponent reports whether h is the renderer (last) component.
func (o *Ops) IsLastComponent(h omx.Handle) bool {
	return o.IsLastEOS(h)
}

// IsDestinationState reports whether s matches the recorded destination
// state from DoRecordDestination.
func (o *Ops) IsDestinationState(s omx.State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destinationState == s
}
