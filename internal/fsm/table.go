// SPDX-License-Identifier: MIT

package fsm

import (
	"log/slog"

	"github.com/tomtom215/playgraph/internal/omx"
	"github.com/tomtom215/playgraph/internal/ops"
)

// Build wires the complete playback graph transition table against o and
// returns a Machine ready to Dispatch events. Grounded on
// tizspotifygraphfsm.hpp's top-level table and its four composite
// sub-machines (auto_detecting, updating_graph, reconfiguring_graph,
// skipping); every composite's internal states are namespaced
// "<composite>/<substate>" on this package's single flat Machine (spec.md
// §9's data-driven-table design note).
//
// Tunnel and component indices the original templates specialize per call
// site (e.g. do_disable_tunnel<0>) are always 0 here too: every composite
// operates on the tunnel or component identified by the event that drove it
// into the composite, and this graph's simplified shape only ever has one
// such tunnel/component in flight at a time.
func Build(o *ops.Ops, logger *slog.Logger) *Machine {
	m := NewMachine(StateInited, logger)

	// --- top level: inited -> loaded ---------------------------------------
	m.AddTransition(Transition{
		From: StateInited, Event: EventLoad, To: StateLoaded,
		Actions: []Action{
			func(ev Event) { o.DoLoadComp(0) },
			func(ev Event) { o.DoAckLoaded() },
		},
	})

	// --- top level: loaded -> auto_detecting -------------------------------
	m.AddTransition(Transition{
		From: StateLoaded, Event: EventExecute, To: StateAutoDetectingDisablingPorts,
		Guard: func(ev Event) bool { return o.LastOpSucceeded() },
		Actions: []Action{
			func(ev Event) {
				if len(ev.Items) > 0 {
					o.DoStoreConfig(&ops.Playlist{Items: ev.Items})
				}
			},
			func(ev Event) { o.DoEnableAutoDetection(0, 0) },
		},
	})

	// --- auto_detecting composite -------------------------------------------
	// disabling_comp_ports/awaiting_port_disabled mirror updating_graph's
	// initial/awaiting-disabled pair below: the entry actions configure the
	// lone component and send its port-disable command, and only a real
	// omx_port_disabled_evt (not a bare eventless fall-through) advances past
	// awaiting_port_disabled.
	m.AddTransition(Transition{
		From: StateAutoDetectingDisablingPorts, Event: EventNone, To: StateAutoDetectingAwaitingDisabled,
		Actions: []Action{
			func(ev Event) { o.DoLoadComp(0) },
			func(ev Event) { o.DoConfigureComp(0) },
			func(ev Event) { o.DoDisableCompPorts(0, 0) },
		},
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingAwaitingDisabled, Event: EventOmxPortDisabled, To: StateAutoDetectingConfig2Idle,
		Guard:   func(ev Event) bool { return o.IsPortDisablingComplete(ev.Handle, ev.Port) },
		Actions: []Action{func(ev Event) { o.DoLoaded2IdleComp(0) }},
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingConfig2Idle, Event: EventOmxTrans, To: StateAutoDetectingIdle2Exe,
		Guard:   func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateIdle) },
		Actions: []Action{func(ev Event) { o.DoIdle2ExeComp(0) }},
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingIdle2Exe, Event: EventOmxTrans, To: StateAutoDetectingExecuting,
		Guard: func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateExecuting) },
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingExecuting, Event: EventOmxPortSettings, To: StateAutoDetectingAwaitingFormat,
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingExecuting, Event: EventOmxFormatDetected, To: StateAutoDetectingAwaitingSettings,
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingAwaitingFormat, Event: EventOmxFormatDetected, To: StateAutoDetectingExit,
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingAwaitingSettings, Event: EventOmxPortSettings, To: StateAutoDetectingExit,
	})
	m.SetExitEvent(StateAutoDetectingExit, EventAutoDetected)

	m.AddTransition(Transition{
		From: StateAutoDetectingExit, Event: EventAutoDetected, To: StateUpdatingGraphInitial,
	})

	// auto_detecting's own error/unload handling, mirroring the original's
	// exe2idle routing rather than falling through to the AllOk wildcard
	// (there is meaningful teardown work to do once a component is loaded).
	m.AddTransition(Transition{
		From: StateAutoDetectingExecuting, Event: EventOmxErr, To: StateExe2Idle,
		Actions: []Action{
			func(ev Event) { o.DoRecordFatalError(ev.Handle, ev.Err, ev.Port) },
			func(ev Event) { o.DoExe2Idle() },
		},
	})
	m.AddTransition(Transition{
		From: StateAutoDetectingExecuting, Event: EventUnload, To: StateExe2Idle,
		Actions: []Action{func(ev Event) { o.DoExe2Idle() }},
	})

	// --- updating_graph composite -------------------------------------------
	m.AddTransition(Transition{
		From: StateUpdatingGraphInitial, Event: EventNone, To: StateUpdatingGraphAwaitingDisabled,
		Actions: []Action{
			func(ev Event) { o.DoSetup() },
			func(ev Event) { o.DoConfigure() },
			func(ev Event) { o.DoDisableTunnel(0) },
		},
	})
	m.AddTransition(Transition{
		From: StateUpdatingGraphAwaitingDisabled, Event: EventOmxPortDisabled, To: StateUpdatingGraphConfig2Idle,
		Guard:   func(ev Event) bool { return o.IsPortDisablingComplete(ev.Handle, ev.Port) },
		Actions: []Action{func(ev Event) { o.DoLoaded2Idle() }},
	})
	m.AddTransition(Transition{
		From: StateUpdatingGraphConfig2Idle, Event: EventOmxTrans, To: StateUpdatingGraphIdle2Exe,
		Guard:   func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateIdle) },
		Actions: []Action{func(ev Event) { o.DoIdle2Exe() }},
	})
	m.AddTransition(Transition{
		From: StateUpdatingGraphIdle2Exe, Event: EventOmxTrans, To: StateUpdatingGraphEnablingTunnel,
		Guard:   func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateExecuting) },
		Actions: []Action{func(ev Event) { o.DoEnableTunnel(0) }},
	})
	m.AddTransition(Transition{
		From: StateUpdatingGraphEnablingTunnel, Event: EventOmxPortEnabled, To: StateUpdatingGraphExit,
		Guard: func(ev Event) bool { return o.IsPortEnablingComplete(ev.Handle, ev.Port) },
	})
	m.SetExitEvent(StateUpdatingGraphExit, EventGraphUpdated)

	m.AddTransition(Transition{
		From: StateUpdatingGraphExit, Event: EventGraphUpdated, To: StateExecuting,
		Actions: []Action{
			func(ev Event) { o.DoRetrieveMetadata() },
			func(ev Event) { o.DoAckExecd() },
			func(ev Event) { o.DoStartProgressDisplay() },
		},
	})

	// --- executing: self-loops and outgoing transitions --------------------
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventOmxErr, To: StateExe2Idle,
		Guard: func(ev Event) bool { return o.ClassifyFatal(ev.Err) },
		Actions: []Action{
			func(ev Event) { o.DoRecordFatalError(ev.Handle, ev.Err, ev.Port) },
			func(ev Event) { o.DoExe2Idle() },
		},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventUnload, To: StateExe2Idle,
		Actions: []Action{func(ev Event) { o.DoExe2Idle() }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventOmxPortSettings, To: StateReconfiguringGraphInitial,
		Actions: []Action{func(ev Event) { o.DoMute() }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventPause, To: StateExe2Pause,
		Actions: []Action{func(ev Event) { o.DoExe2Pause() }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventVolumeStep, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoVolumeStep(ev.Step) }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventVolume, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoVolume(ev.Volume) }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventMute, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoToggleMute() }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventPrintPlaylist, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoPrintPlaylist() }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventAddPlaylist, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoAddPlaylist(ev.Items) }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventSeek, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoSeek(ev.Position) }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventPosition, To: StateSkippingInitial,
		Actions: []Action{func(ev Event) { o.DoStorePosition(ev.Position) }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventSkip, To: StateSkippingInitial,
		Actions: []Action{func(ev Event) { o.DoStoreSkip(ev.Jump) }},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventOmxEOS, To: StateExecuting,
		Guard: func(ev Event) bool { return o.IsLastEOS(ev.Handle) },
		Actions: []Action{
			func(ev Event) { o.DoStopProgressDisplay() },
			func(ev Event) { o.DoRetrieveMetadata() },
			func(ev Event) { o.DoStartProgressDisplay() },
		},
	})
	m.AddTransition(Transition{
		From: StateExecuting, Event: EventTimer, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoIncreaseProgressDisplay() }},
	})

	// --- exe2pause / pause / pause2exe --------------------------------------
	m.AddTransition(Transition{
		From: StateExe2Pause, Event: EventOmxTrans, To: StatePause,
		Guard:   func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StatePause) },
		Actions: []Action{func(ev Event) { o.DoAckPaused() }},
	})
	m.AddTransition(Transition{
		From: StatePause, Event: EventExecute, To: StatePause2Exe,
		Actions: []Action{func(ev Event) { o.DoPause2Exe() }},
	})
	m.AddTransition(Transition{
		From: StatePause, Event: EventPause, To: StatePause2Exe,
		Actions: []Action{func(ev Event) { o.DoPause2Exe() }},
	})
	m.AddTransition(Transition{
		From: StatePause, Event: EventStop, To: StatePause2Idle,
		Actions: []Action{
			func(ev Event) { o.DoRecordDestination(omx.StateLoaded) },
			func(ev Event) { o.DoPause2Idle() },
		},
	})
	m.AddTransition(Transition{
		From: StatePause, Event: EventUnload, To: StatePause2Idle,
		Actions: []Action{func(ev Event) { o.DoPause2Idle() }},
	})
	m.AddTransition(Transition{
		From: StatePause2Exe, Event: EventOmxTrans, To: StateExecuting,
		Guard:   func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateExecuting) },
		Actions: []Action{func(ev Event) { o.DoAckResumed() }},
	})
	m.AddTransition(Transition{
		From: StatePause2Idle, Event: EventOmxTrans, To: StateIdle2Loaded,
		Guard:   func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateIdle) },
		Actions: []Action{func(ev Event) { o.DoIdle2Loaded() }},
	})

	// --- reconfiguring_graph composite ---------------------------------------
	m.AddTransition(Transition{
		From: StateReconfiguringGraphInitial, Event: EventNone, To: StateReconfiguringGraphAwaitingDisabled,
		Actions: []Action{func(ev Event) { o.DoDisableTunnel(0) }},
	})
	m.AddTransition(Transition{
		From: StateReconfiguringGraphAwaitingDisabled, Event: EventOmxPortDisabled, To: StateReconfiguringGraphEnablingTunnel,
		Guard: func(ev Event) bool { return o.IsPortDisablingComplete(ev.Handle, ev.Port) },
		Actions: []Action{
			func(ev Event) { o.DoReconfigureTunnel(0) },
			func(ev Event) { o.DoEnableTunnel(0) },
		},
	})
	m.AddTransition(Transition{
		From: StateReconfiguringGraphEnablingTunnel, Event: EventOmxPortEnabled, To: StateReconfiguringGraphExit,
		Guard: func(ev Event) bool { return o.IsPortEnablingComplete(ev.Handle, ev.Port) },
	})
	m.SetExitEvent(StateReconfiguringGraphExit, EventGraphReconfigured)

	m.AddTransition(Transition{
		From: StateReconfiguringGraphExit, Event: EventGraphReconfigured, To: StateExecuting,
		Actions: []Action{func(ev Event) { o.DoMute() }},
	})

	// --- skipping composite ---------------------------------------------------
	m.AddTransition(Transition{
		From: StateSkippingInitial, Event: EventNone, To: StateSkippingDisablingTunnel,
		Actions: []Action{func(ev Event) { o.DoDisableTunnel(0) }},
	})
	m.AddTransition(Transition{
		From: StateSkippingDisablingTunnel, Event: EventOmxPortDisabled, To: StateSkippingEnablingTunnel,
		Guard: func(ev Event) bool { return o.IsPortDisablingComplete(ev.Handle, ev.Port) },
		Actions: []Action{
			func(ev Event) { o.DoSkip() },
			func(ev Event) { o.DoEnableTunnel(0) },
		},
	})
	m.AddTransition(Transition{
		From: StateSkippingEnablingTunnel, Event: EventOmxPortEnabled, To: StateSkippingExit,
		Guard: func(ev Event) bool { return o.IsPortEnablingComplete(ev.Handle, ev.Port) },
	})
	m.SetExitEvent(StateSkippingExit, EventSkipped)

	m.AddTransition(Transition{
		From: StateSkippingExit, Event: EventSkipped, To: StateUnloaded,
		Guard: func(ev Event) bool { return o.IsInternalError() },
		Actions: []Action{
			func(ev Event) { o.DoError() },
			func(ev Event) { o.DoTearDownTunnels() },
			func(ev Event) { o.DoDestroyGraph() },
		},
	})
	m.AddTransition(Transition{
		From: StateSkippingExit, Event: EventSkipped, To: StateUnloaded,
		Guard: func(ev Event) bool { return o.IsEndOfPlay() },
		Actions: []Action{
			func(ev Event) { o.DoEndOfPlay() },
			func(ev Event) { o.DoTearDownTunnels() },
			func(ev Event) { o.DoDestroyGraph() },
		},
	})
	m.AddTransition(Transition{
		From: StateSkippingExit, Event: EventSkipped, To: StateExecuting,
	})

	// --- exe2idle / idle2loaded / unloaded teardown chain ---------------------
	m.AddTransition(Transition{
		From: StateExe2Idle, Event: EventOmxErr, To: StateExe2Idle,
		Guard: func(ev Event) bool { return !o.ClassifyFatal(ev.Err) },
	})
	m.AddTransition(Transition{
		From: StateExe2Idle, Event: EventOmxTrans, To: StateIdle2Loaded,
		Guard:   func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateIdle) },
		Actions: []Action{func(ev Event) { o.DoIdle2Loaded() }},
	})
	m.AddTransition(Transition{
		From: StateIdle2Loaded, Event: EventOmxTrans, To: StateUnloaded,
		Guard: func(ev Event) bool { return o.IsTransComplete(ev.Handle, omx.StateLoaded) },
		Actions: []Action{
			func(ev Event) { o.DoTearDownTunnels() },
			func(ev Event) { o.DoDestroyGraph() },
		},
	})

	// --- AllOk region: always-listening unload/error handling -----------------
	m.AddTransition(Transition{
		From: stateAny, Event: EventUnload, To: StateUnloaded,
		Actions: []Action{
			func(ev Event) { o.DoTearDownTunnels() },
			func(ev Event) { o.DoDestroyGraph() },
		},
	})
	m.AddTransition(Transition{
		From: stateAny, Event: EventOmxErr, To: StateUnloaded,
		Guard: func(ev Event) bool { return o.ClassifyFatal(ev.Err) },
		Actions: []Action{
			func(ev Event) { o.DoRecordFatalError(ev.Handle, ev.Err, ev.Port) },
			func(ev Event) { o.DoError() },
			func(ev Event) { o.DoTearDownTunnels() },
			func(ev Event) { o.DoDestroyGraph() },
		},
	})
	m.AddTransition(Transition{
		From: stateAny, Event: EventErr, To: StateUnloaded,
		Actions: []Action{func(ev Event) { o.DoError() }},
	})

	return m
}
