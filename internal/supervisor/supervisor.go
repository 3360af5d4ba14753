// Package supervisor provides a supervision tree for managing multiple
// playback controllers.
//
// The supervisor implements Erlang/OTP-style process supervision on top of
// thejerf/suture: each registered Service runs under its own exponential
// restart policy, coordinated shutdown is driven by suture's own supervision
// tree, and per-service status (state, uptime, restart count, last error) is
// tracked for the health and diagnostics layers.
//
// Example:
//
//	sup := supervisor.New(supervisor.Config{
//	    ShutdownTimeout: 10 * time.Second,
//	})
//
//	sup.Add(controllerForSession1)
//	sup.Add(controllerForSession2)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
)

// Service is the interface that supervised services must implement.
// Implementations should block until the context is cancelled or an error
// occurs. A *controller.Controller satisfies this interface.
type Service interface {
	// Run starts the service. It should block until ctx is cancelled or
	// the service encounters an unrecoverable error.
	Run(ctx context.Context) error

	// Name returns the service's identifier.
	Name() string
}

// ServiceState represents the current state of a supervised service.
type ServiceState int

const (
	ServiceStateIdle     ServiceState = iota // Not started
	ServiceStateRunning                      // Running normally
	ServiceStateStopping                     // Being stopped
	ServiceStateFailed                       // Failed, may restart
	ServiceStateStopped                      // Stopped, terminal
)

func (s ServiceState) String() string {
	switch s {
	case ServiceStateIdle:
		return "idle"
	case ServiceStateRunning:
		return "running"
	case ServiceStateStopping:
		return "stopping"
	case ServiceStateFailed:
		return "failed"
	case ServiceStateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ServiceStatus contains status information about a supervised service.
type ServiceStatus struct {
	Name      string
	State     ServiceState
	StartTime time.Time
	Uptime    time.Duration
	Restarts  int
	LastError error
}

// Config contains supervisor configuration.
type Config struct {
	// Name identifies this supervisor instance in suture's own logging.
	Name string

	// ShutdownTimeout is the maximum time to wait for services to stop
	// gracefully. Default: 10 seconds.
	ShutdownTimeout time.Duration

	// RestartDelay is the delay before the first restart of a failed
	// service. Default: 1 second.
	RestartDelay time.Duration

	// MaxRestartDelay caps the exponentially grown restart delay.
	// Default: 5 minutes.
	MaxRestartDelay time.Duration

	// RestartMultiplier is applied to the restart delay after each failure.
	// Default: 2.0.
	RestartMultiplier float64

	// Logger is optional; if set, supervisor events are logged here.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout:   10 * time.Second,
		RestartDelay:      1 * time.Second,
		MaxRestartDelay:   5 * time.Minute,
		RestartMultiplier: 2.0,
	}
}

// Supervisor manages a collection of services, restarting each on its own
// exponential backoff and coordinating shutdown through a suture tree.
type Supervisor struct {
	cfg Config

	mu       sync.Mutex
	services map[string]*serviceEntry
	running  bool

	suture *suture.Supervisor
}

// serviceEntry tracks a single service's lifecycle.
type serviceEntry struct {
	service   Service
	state     ServiceState
	startTime time.Time
	restarts  int
	lastError error
	token     suture.ServiceToken
	hasToken  bool
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 1 * time.Second
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = 5 * time.Minute
	}
	if cfg.RestartMultiplier == 0 {
		cfg.RestartMultiplier = 2.0
	}
	name := cfg.Name
	if name == "" {
		name = "playgraph"
	}

	return &Supervisor{
		cfg:      cfg,
		services: make(map[string]*serviceEntry),
		suture:   suture.New(name, suture.Spec{Timeout: cfg.ShutdownTimeout}),
	}
}

// logf writes a formatted log message if Logger is configured.
func (s *Supervisor) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Info(fmt.Sprintf(format, args...))
	}
}

// Add registers a service with the supervisor. If the supervisor is already
// running, suture starts the service immediately. Returns an error if a
// service with the same name already exists.
func (s *Supervisor) Add(svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := svc.Name()
	if _, exists := s.services[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}

	entry := &serviceEntry{service: svc, state: ServiceStateIdle}
	s.services[name] = entry
	s.logf("added service: %s", name)

	entry.token = s.suture.Add(&restartingService{sup: s, entry: entry})
	entry.hasToken = true

	return nil
}

// Remove unregisters a service and blocks until suture has stopped it.
func (s *Supervisor) Remove(name string) error {
	s.mu.Lock()
	entry, exists := s.services[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("service %q not found", name)
	}
	delete(s.services, name)
	token, hasToken := entry.token, entry.hasToken
	s.mu.Unlock()

	s.logf("removed service: %s", name)
	if !hasToken {
		return nil
	}
	return s.suture.Remove(token)
}

// Status returns the current status of all services.
func (s *Supervisor) Status() []ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]ServiceStatus, 0, len(s.services))
	now := time.Now()

	for name, entry := range s.services {
		var uptime time.Duration
		if !entry.startTime.IsZero() && entry.state == ServiceStateRunning {
			uptime = now.Sub(entry.startTime)
		}

		result = append(result, ServiceStatus{
			Name:      name,
			State:     entry.state,
			StartTime: entry.startTime,
			Uptime:    uptime,
			Restarts:  entry.restarts,
			LastError: entry.lastError,
		})
	}

	return result
}

// ServiceCount returns the number of registered services.
func (s *Supervisor) ServiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.services)
}

// Run starts all registered services and blocks until ctx is cancelled, at
// which point suture stops every service gracefully (up to ShutdownTimeout).
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logf("supervisor started with %d services", s.ServiceCount())

	err := s.suture.Serve(ctx)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return err
}

// restartingService adapts a Service into a suture.Service: it owns the
// exponential-backoff restart loop itself, so its Serve method only returns
// once ctx is done, never handing control back to suture's own restart
// logic.
type restartingService struct {
	sup   *Supervisor
	entry *serviceEntry
}

func (r *restartingService) Serve(ctx context.Context) error {
	s, entry := r.sup, r.entry
	delay := s.cfg.RestartDelay

	for {
		if ctx.Err() != nil {
			s.setState(entry, ServiceStateStopped)
			return nil
		}

		s.mu.Lock()
		entry.state = ServiceStateRunning
		entry.startTime = time.Now()
		s.mu.Unlock()

		err := entry.service.Run(ctx)

		if ctx.Err() != nil {
			s.setState(entry, ServiceStateStopped)
			return nil
		}

		s.mu.Lock()
		entry.state = ServiceStateFailed
		entry.lastError = err
		entry.restarts++
		restarts := entry.restarts
		s.mu.Unlock()
		s.logf("service %s failed (restarts=%d): %v", entry.service.Name(), restarts, err)

		select {
		case <-ctx.Done():
			s.setState(entry, ServiceStateStopped)
			return nil
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * s.cfg.RestartMultiplier)
		if delay > s.cfg.MaxRestartDelay {
			delay = s.cfg.MaxRestartDelay
		}
	}
}

func (s *Supervisor) setState(entry *serviceEntry, state ServiceState) {
	s.mu.Lock()
	entry.state = state
	s.mu.Unlock()
}
