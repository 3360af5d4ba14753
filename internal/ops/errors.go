// SPDX-License-Identifier: MIT

package ops

import "errors"

// Framework-call/event error sentinels, classified by is_fatal_error
// (spec.md §4.2, §7). Strategies compose their own fatal-error sets on top
// of this shared base via errors.Is.
var (
	ErrInsufficientResources              = errors.New("omx: insufficient resources")
	ErrPortUnresponsiveDuringAllocation   = errors.New("omx: port unresponsive during allocation")
	ErrPortUnresponsiveDuringDeallocation = errors.New("omx: port unresponsive during deallocation")
	ErrPortUnresponsiveDuringStop         = errors.New("omx: port unresponsive during stop")
	ErrStreamCorrupt                      = errors.New("omx: stream corrupt")
)

// ErrInternal marks an error recorded by ops itself rather than reported by
// the framework (spec.md §7, "Internal/logic error"), e.g. attempting to
// skip on a graph kind that does not support it.
var ErrInternal = errors.New("ops: internal error")

// baseFatalErrors is the default fatal-error classification shared by every
// strategy: resource exhaustion and port-unresponsive errors are always
// fatal, regardless of graph kind.
func baseFatalErrors(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientResources),
		errors.Is(err, ErrPortUnresponsiveDuringAllocation),
		errors.Is(err, ErrPortUnresponsiveDuringDeallocation),
		errors.Is(err, ErrPortUnresponsiveDuringStop):
		return true
	default:
		return false
	}
}
