// SPDX-License-Identifier: MIT

package ops

import "github.com/tomtom215/playgraph/internal/omx"

// Driver is the slice of *omx.Framework that Ops depends on. Depending on an
// interface rather than the concrete framework type keeps ops_test.go free
// of the framework's async goroutine timing: tests supply a fake driver that
// resolves synchronously.
type Driver interface {
	GetHandle(name, role string, portCount int, callbackKey int) (omx.Handle, error)
	FreeHandle(h omx.Handle) error
	SendCommand(h omx.Handle, cmd omx.Command, param int) error
	SetupTunnel(outH omx.Handle, outPort int, inH omx.Handle, inPort int) error
	SetPortFormat(h omx.Handle, port int, dir omx.PortDirection, format omx.PortFormat) error
	GetPortFormat(h omx.Handle, port int) (omx.PortFormat, error)
	ComponentState(h omx.Handle) (omx.State, error)
	PortEnabled(h omx.Handle, port int) (bool, error)
}
