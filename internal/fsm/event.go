// SPDX-License-Identifier: MIT

package fsm

import (
	"time"

	"github.com/tomtom215/playgraph/internal/omx"
	"github.com/tomtom215/playgraph/internal/ops"
)

// EventKind names a member of the FSM's event alphabet (spec.md §4.1): the
// external commands a session driver issues, the framework-originated
// notifications relayed from internal/omx, and the synthetic events a
// composite sub-machine raises on its own exit pseudo-state.
type EventKind int

const (
	// none is the internal marker for an eventless (eager/completion)
	// transition: the step a composite sub-machine takes the instant it is
	// entered, with no external trigger.
	EventNone EventKind = iota

	// External commands.
	EventLoad
	EventExecute
	EventPause
	EventStop
	EventUnload
	EventSeek
	EventSkip
	EventPosition
	EventVolume
	EventVolumeStep
	EventMute
	EventPrintPlaylist
	EventAddPlaylist
	EventTimer

	// Framework-originated events, relayed from internal/omx.
	EventOmxTrans
	EventOmxPortDisabled
	EventOmxPortEnabled
	EventOmxPortSettings
	EventOmxFormatDetected
	EventOmxIndexSetting
	EventOmxEOS
	EventOmxErr

	// Synthetic events raised by a composite sub-machine's exit pseudo-state.
	EventAutoDetected
	EventGraphUpdated
	EventGraphReconfigured
	EventSkipped

	// EventErr is the top-level (AllOk region) generic-error event, distinct
	// from EventOmxErr: it covers internal/logic errors ops records itself.
	EventErr
)

func (k EventKind) String() string {
	names := [...]string{
		"none", "load", "execute", "pause", "stop", "unload", "seek", "skip",
		"position", "volume", "volume_step", "mute", "print_playlist",
		"add_playlist", "timer", "omx_trans", "omx_port_disabled",
		"omx_port_enabled", "omx_port_settings", "omx_format_detected",
		"omx_index_setting", "omx_eos", "omx_err", "auto_detected",
		"graph_updated", "graph_reconfigured", "skipped", "err",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "unknown"
	}
	return names[k]
}

// Event is one occurrence dispatched to the Machine. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind

	// Framework-event fields, populated when Kind is one of the Omx* kinds.
	Handle omx.Handle
	Port   int
	State  omx.State
	Index  int
	Err    error

	// External-command fields.
	Position int
	Jump     int
	Volume   float64
	Step     int
	Items    []ops.Track
	Timer    time.Duration
}
