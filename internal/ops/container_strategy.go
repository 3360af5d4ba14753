// SPDX-License-Identifier: MIT

package ops

import (
	"fmt"

	"github.com/tomtom215/playgraph/internal/omx"
)

// containerStrategy drives a four-component pipeline for a containerized or
// remote stream that needs demuxing before decode: source -> demuxer ->
// decoder -> renderer. Grounded on tizyoutubegraphops.hpp's insertion of a
// demuxer stage ahead of the shared decoder/renderer tail, and on
// tizgraphops.hpp's do_skip/do_probe hooks for splicing in a new source URI
// mid-session.
type containerStrategy struct {
	kind GraphKind
}

// NewContainerStrategy returns the Strategy for any GraphKind that needs a
// demuxing stage (GraphContainer, plus any streaming-service kind reusing
// its shape).
func NewContainerStrategy(kind GraphKind) Strategy {
	return containerStrategy{kind: kind}
}

func (s containerStrategy) Kind() GraphKind { return s.kind }

func (s containerStrategy) Components() (names, roles []string) {
	return []string{"source", "demuxer", "decoder", "renderer"},
		[]string{"source.remote", "demuxer.container", "decoder.audio", "renderer.audio"}
}

func (s containerStrategy) ReconfigureTunnel(o *Ops, i int) error {
	if i < 0 || i >= len(o.handles)-1 {
		return ErrInternal
	}
	format, err := o.driver.GetPortFormat(o.handles[i], 1)
	if err != nil {
		return err
	}
	return o.driver.SetPortFormat(o.handles[i+1], 0, omx.PortInput, format)
}

func (s containerStrategy) Skip(o *Ops) error {
	track, ok := o.playlist.At(o.position)
	if !ok {
		return fmt.Errorf("%w: no track at position %d", ErrInternal, o.position)
	}
	if len(o.handles) == 0 {
		return ErrInternal
	}
	return o.driver.SetPortFormat(o.handles[0], 0, omx.PortOutput, omx.PortFormat{
		Domain:  "container",
		Details: map[string]string{"uri": track.URI},
	})
}

func (s containerStrategy) ProbeHook(o *Ops) error {
	track, ok := o.playlist.At(o.position)
	if !ok {
		return fmt.Errorf("%w: no track at position %d", ErrInternal, o.position)
	}
	format, err := o.driver.GetPortFormat(o.handles[0], 0)
	if err != nil {
		return err
	}
	o.metadata["title"] = track.Title
	o.metadata["uri"] = track.URI
	if format.Coding != "" {
		o.metadata["codec"] = format.Coding
	}
	return nil
}

func (s containerStrategy) IsFatalError(err error) bool {
	if baseFatalErrors(err) {
		return true
	}
	// A corrupt remote stream is recoverable for a container graph: the
	// skipping composite can splice in the next track instead of tearing
	// the whole pipeline down.
	return false
}
