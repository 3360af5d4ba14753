// SPDX-License-Identifier: MIT

package ops

import (
	"sync"

	"github.com/tomtom215/playgraph/internal/omx"
)

// transitionKey identifies one expected component-state arrival.
type transitionKey struct {
	Handle omx.Handle
	State  omx.State
}

// transitionLedger is the expected-transition ledger from spec.md §4.2/§4.3:
// a multiset of (handle, target state) tuples, filled by record_expected_*
// and drained as matching arrivals are observed. A multi-step transition is
// complete once every recorded tuple has arrived.
type transitionLedger struct {
	mu      sync.Mutex
	pending map[transitionKey]int
}

func newTransitionLedger() *transitionLedger {
	return &transitionLedger{pending: make(map[transitionKey]int)}
}

// Clear empties the ledger, discarding any unmatched expectations.
func (l *transitionLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = make(map[transitionKey]int)
}

// AddExpected records one more expected arrival for (h, s).
func (l *transitionLedger) AddExpected(h omx.Handle, s omx.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[transitionKey{h, s}]++
}

// Arrive removes one matching expectation, if present, and reports whether
// one was found. Arrivals for tuples never recorded (out-of-phase or
// duplicate events, per spec.md §4.1's tolerance note) are silently ignored.
func (l *transitionLedger) Arrive(h omx.Handle, s omx.State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := transitionKey{h, s}
	n, ok := l.pending[k]
	if !ok || n == 0 {
		return false
	}
	if n == 1 {
		delete(l.pending, k)
	} else {
		l.pending[k] = n - 1
	}
	return true
}

// Empty reports whether every expected arrival has been observed.
func (l *transitionLedger) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) == 0
}

// Len returns the number of distinct outstanding expectations, for
// diagnostics (internal/diagnostics' ledger-emptiness check).
func (l *transitionLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// portKey identifies one expected port-enable/disable-completion arrival.
type portKey struct {
	Handle omx.Handle
	Port   int
	Enable bool
}

// portLedger is the expected-port-transition ledger: the analogous multiset
// for tunnel disable/enable sequencing (spec.md §4.2's
// record_expected_port_transition / is_port_disabling_complete /
// is_port_enabling_complete).
type portLedger struct {
	mu      sync.Mutex
	pending map[portKey]int
}

func newPortLedger() *portLedger {
	return &portLedger{pending: make(map[portKey]int)}
}

func (l *portLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = make(map[portKey]int)
}

func (l *portLedger) AddExpected(h omx.Handle, port int, enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[portKey{h, port, enable}]++
}

func (l *portLedger) Arrive(h omx.Handle, port int, enable bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := portKey{h, port, enable}
	n, ok := l.pending[k]
	if !ok || n == 0 {
		return false
	}
	if n == 1 {
		delete(l.pending, k)
	} else {
		l.pending[k] = n - 1
	}
	return true
}

func (l *portLedger) emptyOf(enable bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, n := range l.pending {
		if k.Enable == enable && n > 0 {
			return false
		}
	}
	return true
}

func (l *portLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
