// SPDX-License-Identifier: MIT

package ops

import (
	"errors"

	"github.com/tomtom215/playgraph/internal/omx"
)

// localStrategy drives a three-component pipeline for an already-demuxed
// local elementary stream: source -> decoder -> renderer. Grounded on
// tizgraphops.hpp's simplest graph shape (no demuxer stage).
type localStrategy struct{}

// NewLocalStrategy returns the Strategy for GraphLocal playlists.
func NewLocalStrategy() Strategy { return localStrategy{} }

func (localStrategy) Kind() GraphKind { return GraphLocal }

func (localStrategy) Components() (names, roles []string) {
	return []string{"source", "decoder", "renderer"},
		[]string{"source.local", "decoder.audio", "renderer.audio"}
}

func (s localStrategy) ReconfigureTunnel(o *Ops, i int) error {
	if i < 0 || i >= len(o.handles)-1 {
		return ErrInternal
	}
	format, err := o.driver.GetPortFormat(o.handles[i], 1)
	if err != nil {
		return err
	}
	return o.driver.SetPortFormat(o.handles[i+1], 0, omx.PortInput, format)
}

func (s localStrategy) Skip(o *Ops) error {
	// A local file graph has no alternate source to splice in mid-stream;
	// skipping means tearing down and reloading at the new position, which
	// the FSM's skip_evt -> skipping composite already models as
	// disable/enable around do_skip. For a local graph do_skip is a no-op:
	// the renderer resumes from the next track only after the current one
	// reaches end of stream.
	return nil
}

func (s localStrategy) ProbeHook(o *Ops) error {
	track, ok := o.playlist.At(o.position)
	if !ok {
		return errors.New("ops: no track at current position")
	}
	o.metadata["title"] = track.Title
	o.metadata["uri"] = track.URI
	return nil
}

func (s localStrategy) IsFatalError(err error) bool {
	return baseFatalErrors(err)
}
