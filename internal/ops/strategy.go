// SPDX-License-Identifier: MIT

package ops

import "github.com/tomtom215/playgraph/internal/omx"

// Strategy supplies the per-graph-kind specialization points the generic ops
// layer defers to (spec.md §9's composition-over-inheritance note): building
// the pipeline, reconfiguring a tunnel on a mid-stream format change,
// resolving the next track on skip, probing a newly detected stream, and
// classifying which errors are fatal to the whole graph.
//
// A Strategy is supplied once, at Ops construction, and never swapped out
// for the lifetime of a playback session: each GraphKind gets its own
// concrete Strategy (localStrategy, containerStrategy) rather than a single
// strategy branching internally on kind.
type Strategy interface {
	// Kind identifies the graph this strategy builds.
	Kind() GraphKind

	// Components returns the pipeline's component names and OMX roles, in
	// source-to-sink order. Tunnel i connects component i's output port to
	// component i+1's input port.
	Components() (names []string, roles []string)

	// ReconfigureTunnel applies a strategy-specific port format renegotiation
	// to the tunnel at index i, in response to an omx_port_settings event.
	ReconfigureTunnel(o *Ops, i int) error

	// Skip resolves the new playlist position already stored on o (via
	// do_store_skip) into a fresh source URI and applies it to the source
	// component. Strategies that cannot skip mid-stream (e.g. a strict
	// one-shot local file graph) may return ErrInternal.
	Skip(o *Ops) error

	// ProbeHook runs any strategy-specific stream probing once the source
	// component has detected the incoming format. It may populate o's
	// metadata cache.
	ProbeHook(o *Ops) error

	// IsFatalError classifies err as fatal to the whole graph (tearing the
	// graph down) versus recoverable. It always consults baseFatalErrors
	// first.
	IsFatalError(err error) bool
}

// buildPipeline is a small helper shared by both strategies: it creates the
// component list via the driver, every handle sharing the Ops instance's
// single callback key (one event queue per session, per spec.md §5).
func buildPipeline(o *Ops, names, roles []string) error {
	o.handles = make([]omx.Handle, len(names))
	o.h2n = make(map[omx.Handle]string, len(names))

	for i := range names {
		h, err := o.driver.GetHandle(names[i], roles[i], 2, o.callbackKey)
		if err != nil {
			o.recordError(err, "get handle "+names[i])
			return err
		}
		o.handles[i] = h
		o.h2n[h] = names[i]
	}
	return nil
}
