// SPDX-License-Identifier: MIT

package fsm

// State names a node of the flat, namespaced state space this package walks.
// Composite sub-machine substates are namespaced as "<composite>/<substate>"
// (e.g. "auto_detecting/awaiting_port_disabled"); their exit pseudo-states
// are namespaced as "<composite>/exit".
type State string

const (
	StateInited State = "inited"
	StateLoaded State = "loaded"

	// auto_detecting composite (spec.md §4.1): probes the source component's
	// format before the rest of the pipeline is built.
	StateAutoDetectingDisablingPorts     State = "auto_detecting/disabling_ports"
	StateAutoDetectingAwaitingDisabled   State = "auto_detecting/awaiting_port_disabled"
	StateAutoDetectingConfig2Idle        State = "auto_detecting/config2idle"
	StateAutoDetectingIdle2Exe           State = "auto_detecting/idle2exe"
	StateAutoDetectingExecuting          State = "auto_detecting/executing"
	StateAutoDetectingAwaitingFormat     State = "auto_detecting/awaiting_format_detected"
	StateAutoDetectingAwaitingSettings   State = "auto_detecting/awaiting_port_settings"
	StateAutoDetectingExit               State = "auto_detecting/exit"

	// updating_graph composite: builds the remaining pipeline once the
	// format is known and swaps it in.
	StateUpdatingGraphInitial    State = "updating_graph/initial"
	StateUpdatingGraphAwaitingDisabled State = "updating_graph/awaiting_port_disabled"
	StateUpdatingGraphConfig2Idle State = "updating_graph/config2idle"
	StateUpdatingGraphIdle2Exe   State = "updating_graph/idle2exe"
	StateUpdatingGraphEnablingTunnel State = "updating_graph/enabling_tunnel"
	StateUpdatingGraphExit       State = "updating_graph/exit"

	StateExecuting State = "executing"
	StateExe2Pause State = "exe2pause"
	StatePause     State = "pause"
	StatePause2Exe State = "pause2exe"
	StatePause2Idle State = "pause2idle"

	// reconfiguring_graph composite: renegotiates one tunnel's format
	// mid-stream without tearing the whole graph down.
	StateReconfiguringGraphInitial       State = "reconfiguring_graph/initial"
	StateReconfiguringGraphAwaitingDisabled State = "reconfiguring_graph/awaiting_port_disabled"
	StateReconfiguringGraphEnablingTunnel State = "reconfiguring_graph/enabling_tunnel"
	StateReconfiguringGraphExit          State = "reconfiguring_graph/exit"

	// skipping composite: splices in a new source position.
	StateSkippingInitial       State = "skipping/initial"
	StateSkippingDisablingTunnel State = "skipping/disabling_tunnel"
	StateSkippingEnablingTunnel  State = "skipping/enabling_tunnel"
	StateSkippingExit            State = "skipping/exit"

	StateExe2Idle    State = "exe2idle"
	StateIdle2Loaded State = "idle2loaded"
	StateUnloaded    State = "unloaded"
)

// stateAny is the AllOk-region fallback pseudo-state: a Transition keyed on
// it matches regardless of the machine's current state, provided no
// exact-state row for the same event matched first (spec.md §4.1's
// always-listening unload/error handling).
const stateAny State = "*"
