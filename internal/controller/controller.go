// SPDX-License-Identifier: MIT

// Package controller ties one playback session together: it owns the
// omx.Registry callback registration for its graph, translates the
// framework's asynchronous events into fsm.Events, and drives a single
// fsm.Machine from one goroutine's worth of serialized dispatch, per
// spec.md §5's one-event-queue-per-session concurrency model.
//
// A Controller implements supervisor.Service, so a fleet of playback
// sessions can be run under one supervisor.Supervisor, each restarted on its
// own exponential backoff if its graph dies.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tomtom215/playgraph/internal/diagnostics"
	"github.com/tomtom215/playgraph/internal/fsm"
	"github.com/tomtom215/playgraph/internal/omx"
	"github.com/tomtom215/playgraph/internal/ops"
)

// DefaultQueueSize is the event queue depth used when Config.QueueSize is 0.
const DefaultQueueSize = 64

// ErrQueueFull is returned by Submit when the session's event queue has no
// room left; the caller's command is dropped rather than blocking the
// submitting goroutine.
var ErrQueueFull = errors.New("controller: event queue full")

// Config configures a single playback session.
type Config struct {
	SessionID string
	Strategy  ops.Strategy
	Playlist  ops.Playlist
	Notifier  ops.Notifier
	Logger    *slog.Logger
	QueueSize int
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.SessionID == "" {
		return errors.New("SessionID is required")
	}
	if cfg.Strategy == nil {
		return errors.New("Strategy is required")
	}
	if cfg.Playlist.Len() == 0 {
		return errors.New("Playlist must contain at least one track")
	}
	return nil
}

// Metrics contains a point-in-time snapshot of a session's progress.
type Metrics struct {
	SessionID string
	State     fsm.State
	StartTime time.Time
	Uptime    time.Duration
	QueueDepth int
	LastError error
}

// Controller drives one playback session's state machine from one
// goroutine, translating both framework callbacks and caller-submitted
// commands into fsm.Events on a single bounded queue.
type Controller struct {
	cfg Config

	logger    *slog.Logger
	registry  *omx.Registry
	framework *omx.Framework
	ops       *ops.Ops
	machine   *fsm.Machine

	events chan fsm.Event

	mu        sync.Mutex
	state     fsm.State
	running   bool
	startTime time.Time
}

// New creates a Controller for one playback session. The Controller owns a
// fresh omx.Registry and omx.Framework: each session gets its own callback
// key and its own pipeline, never sharing framework state with another
// session (spec.md §9's per-session isolation note).
func New(cfg *Config) (*Controller, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = ops.NoopNotifier{}
	}
	queueSize := cfg.QueueSize
	if queueSize == 0 {
		queueSize = DefaultQueueSize
	}

	c := &Controller{
		cfg:    *cfg,
		logger: logger,
		events: make(chan fsm.Event, queueSize),
	}

	c.registry = omx.NewRegistry()
	c.framework = omx.NewFramework(c.registry)
	callbackKey := c.registry.Register(c.onFrameworkEvent)

	c.ops = ops.New(c.framework, cfg.Strategy, callbackKey, logger, notifier)
	c.machine = fsm.Build(c.ops, logger)
	c.state = c.machine.State()

	return c, nil
}

// Name identifies this session, satisfying supervisor.Service.
func (c *Controller) Name() string { return c.cfg.SessionID }

// onFrameworkEvent is the omx.Registry callback for this session: it runs on
// whatever goroutine the framework uses to deliver the event, so it only
// ever enqueues — never calls Dispatch directly.
func (c *Controller) onFrameworkEvent(ev omx.Event) {
	select {
	case c.events <- translateOmxEvent(ev):
	default:
		c.logger.Warn("event queue full, dropping framework event",
			"session", c.cfg.SessionID, "kind", ev.Kind.String())
	}
}

// translateOmxEvent maps a framework-originated omx.Event onto the fsm
// event vocabulary the transition table understands.
func translateOmxEvent(ev omx.Event) fsm.Event {
	switch ev.Kind {
	case omx.EventTransComplete:
		return fsm.Event{Kind: fsm.EventOmxTrans, Handle: ev.Handle, State: ev.State}
	case omx.EventPortDisabled:
		return fsm.Event{Kind: fsm.EventOmxPortDisabled, Handle: ev.Handle, Port: ev.Port}
	case omx.EventPortEnabled:
		return fsm.Event{Kind: fsm.EventOmxPortEnabled, Handle: ev.Handle, Port: ev.Port}
	case omx.EventPortSettingsChanged:
		return fsm.Event{Kind: fsm.EventOmxPortSettings, Handle: ev.Handle, Port: ev.Port, Index: ev.Index}
	case omx.EventFormatDetected:
		return fsm.Event{Kind: fsm.EventOmxFormatDetected, Handle: ev.Handle, Port: ev.Port, Index: ev.Index}
	case omx.EventIndexSetting:
		return fsm.Event{Kind: fsm.EventOmxIndexSetting, Handle: ev.Handle, Index: ev.Index}
	case omx.EventEOS:
		return fsm.Event{Kind: fsm.EventOmxEOS, Handle: ev.Handle, Port: ev.Port}
	case omx.EventError:
		return fsm.Event{Kind: fsm.EventOmxErr, Handle: ev.Handle, Port: ev.ErrPort, Err: ev.Err}
	default:
		return fsm.Event{Kind: fsm.EventErr, Err: fmt.Errorf("controller: unrecognized framework event %v", ev.Kind)}
	}
}

// Submit enqueues a caller-originated command event (pause, seek, volume
// change, ...) for the session's dispatch loop. It never blocks: if the
// queue is full, the command is dropped and ErrQueueFull is returned.
func (c *Controller) Submit(ev fsm.Event) error {
	select {
	case c.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Convenience wrappers over Submit for the operations spec.md's playback
// control surface names explicitly.

func (c *Controller) Pause() error  { return c.Submit(fsm.Event{Kind: fsm.EventPause}) }
func (c *Controller) Resume() error { return c.Submit(fsm.Event{Kind: fsm.EventExecute}) }
func (c *Controller) Stop() error   { return c.Submit(fsm.Event{Kind: fsm.EventUnload}) }

func (c *Controller) Seek(positionSeconds int) error {
	return c.Submit(fsm.Event{Kind: fsm.EventSeek, Position: positionSeconds})
}

func (c *Controller) SkipBy(tracks int) error {
	return c.Submit(fsm.Event{Kind: fsm.EventSkip, Jump: tracks})
}

func (c *Controller) GoToPosition(playlistPos int) error {
	return c.Submit(fsm.Event{Kind: fsm.EventPosition, Position: playlistPos})
}

func (c *Controller) SetVolume(v float64) error {
	return c.Submit(fsm.Event{Kind: fsm.EventVolume, Volume: v})
}

func (c *Controller) VolumeStep(step int) error {
	return c.Submit(fsm.Event{Kind: fsm.EventVolumeStep, Step: step})
}

func (c *Controller) ToggleMute() error { return c.Submit(fsm.Event{Kind: fsm.EventMute}) }

func (c *Controller) AddToPlaylist(items []ops.Track) error {
	return c.Submit(fsm.Event{Kind: fsm.EventAddPlaylist, Items: items})
}

// State returns the machine's current state. Safe for concurrent use while
// Run is driving the machine from its own goroutine.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Metrics returns a snapshot of the session's progress.
func (c *Controller) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var uptime time.Duration
	if !c.startTime.IsZero() {
		uptime = time.Since(c.startTime)
	}

	return Metrics{
		SessionID:  c.cfg.SessionID,
		State:      c.state,
		StartTime:  c.startTime,
		Uptime:     uptime,
		QueueDepth: len(c.events),
		LastError:  c.ops.LastError(),
	}
}

// DiagnosticInfo reports this session's internal state for a diagnostics
// run: live-handle count vs. configured pipeline length, ledger emptiness,
// and event queue depth (spec.md §8's invariants).
func (c *Controller) DiagnosticInfo() diagnostics.SessionInfo {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	return diagnostics.SessionInfo{
		Name:                c.cfg.SessionID,
		State:               string(state),
		HandleCount:         c.ops.HandleCount(),
		ExpectedHandleCount: c.ops.ExpectedHandleCount(),
		LedgerEmpty:         c.ops.LedgerEmpty(),
		TransitionLedgerLen: c.ops.TransitionLedgerLen(),
		PortLedgerLen:       c.ops.PortLedgerLen(),
		QueueDepth:          len(c.events),
		QueueCapacity:       cap(c.events),
	}
}

// dispatch is the only place that touches c.machine: it always runs on the
// Run goroutine, so the machine itself needs no internal locking.
func (c *Controller) dispatch(ev fsm.Event) {
	c.machine.Dispatch(ev)
	c.mu.Lock()
	c.state = c.machine.State()
	c.mu.Unlock()
}

// Run loads the session's strategy-built pipeline, starts playback, and
// then serves the event queue until the playlist reaches end-of-play, the
// graph hits a fatal error, or ctx is cancelled. Satisfies supervisor.Service.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("controller: session already running")
	}
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.logger.Info("starting playback session", "session", c.cfg.SessionID, "tracks", c.cfg.Playlist.Len())

	c.dispatch(fsm.Event{Kind: fsm.EventLoad})
	c.dispatch(fsm.Event{Kind: fsm.EventExecute, Items: c.cfg.Playlist.Items})

	for {
		if c.State() == fsm.StateUnloaded {
			c.logger.Info("playback session unloaded", "session", c.cfg.SessionID)
			return nil
		}

		select {
		case <-ctx.Done():
			c.dispatch(fsm.Event{Kind: fsm.EventUnload})
			return ctx.Err()
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}
