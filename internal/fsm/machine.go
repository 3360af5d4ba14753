// SPDX-License-Identifier: MIT

// Package fsm implements the playback graph's hierarchical state machine: a
// data-driven transition table walked by a single Machine, rather than a
// compile-time state-machine DSL (spec.md §9's design note). Composite
// sub-machines are modeled as namespaced substates of the same flat table,
// and their exit pseudo-states are modeled as ordinary states that
// self-trigger a synthetic top-level event the instant they're entered.
package fsm

import "log/slog"

// Action runs a side effect (normally one or more ops.Ops do_* calls,
// wired in by table.go's closures) as part of a transition.
type Action func(ev Event)

// Guard decides whether a transition may fire, given the triggering event.
// A nil Guard always passes.
type Guard func(ev Event) bool

// Transition is one row of the table: in state From, on event Event, if
// Guard passes, run Actions in order and move to To.
type Transition struct {
	From    State
	Event   EventKind
	Guard   Guard
	Actions []Action
	To      State
}

type tableKey struct {
	From  State
	Event EventKind
}

// Machine walks the transition table from a single current state. It is not
// safe for concurrent use: spec.md §5 requires exactly one goroutine drive
// Dispatch for a given session.
type Machine struct {
	table      map[tableKey][]*Transition
	exitEvents map[State]EventKind
	state      State
	logger     *slog.Logger

	// guards against a pathological table producing an unbounded chain of
	// eventless/exit-synthesized transitions.
	maxChain int
}

// NewMachine creates a Machine starting in initial.
func NewMachine(initial State, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		table:      make(map[tableKey][]*Transition),
		exitEvents: make(map[State]EventKind),
		state:      initial,
		logger:     logger,
		maxChain:   64,
	}
}

// AddTransition registers one row. Multiple rows may share (From, Event);
// they are tried in registration order and the first whose Guard passes
// wins, matching the mutually-exclusive-guard convention spec.md's
// transition table uses.
func (m *Machine) AddTransition(t Transition) {
	k := tableKey{t.From, t.Event}
	row := t
	m.table[k] = append(m.table[k], &row)
}

// SetExitEvent marks state as a composite's exit pseudo-state: the instant
// the machine enters it, it self-dispatches kind as a synthetic event
// against the top-level table (spec.md §4.1's exit-pseudo-state notes).
func (m *Machine) SetExitEvent(state State, kind EventKind) {
	m.exitEvents[state] = kind
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

func (m *Machine) pick(state State, kind EventKind, ev Event) *Transition {
	for _, t := range m.table[tableKey{state, kind}] {
		if t.Guard == nil || t.Guard(ev) {
			return t
		}
	}
	return nil
}

func (m *Machine) apply(t *Transition, ev Event) {
	for _, a := range t.Actions {
		a(ev)
	}
	m.state = t.To
}

// Dispatch processes ev against the current state. If no exact-state
// transition matches, it falls back to the AllOk-region wildcard rows
// (spec.md §4.1's always-listening unload/error handling). If neither
// matches, the event is logged and dropped, per spec.md §7's no-transition
// tolerance. After applying a transition, Dispatch drains any chain of
// eventless transitions and exit-pseudo-state synthetic events the new
// state triggers.
func (m *Machine) Dispatch(ev Event) {
	t := m.pick(m.state, ev.Kind, ev)
	if t == nil {
		t = m.pick(stateAny, ev.Kind, ev)
	}
	if t == nil {
		m.logger.Debug("no transition", "state", string(m.state), "event", ev.Kind.String())
		return
	}
	from := m.state
	m.apply(t, ev)
	m.logger.Debug("transition", "from", string(from), "event", ev.Kind.String(), "to", string(m.state))
	m.drain()
}

// drain runs the chain of eventless transitions and exit-pseudo-state
// synthetic events that follow entering a new state.
func (m *Machine) drain() {
	for i := 0; i < m.maxChain; i++ {
		if t := m.pick(m.state, EventNone, Event{Kind: EventNone}); t != nil {
			from := m.state
			m.apply(t, Event{Kind: EventNone})
			m.logger.Debug("eventless transition", "from", string(from), "to", string(m.state))
			continue
		}
		if kind, ok := m.exitEvents[m.state]; ok {
			ev := Event{Kind: kind}
			if t := m.pick(m.state, kind, ev); t != nil {
				from := m.state
				m.apply(t, ev)
				m.logger.Debug("exit transition", "from", string(from), "event", kind.String(), "to", string(m.state))
				continue
			}
		}
		return
	}
	m.logger.Warn("transition chain exceeded max length, stopping", "state", string(m.state))
}
