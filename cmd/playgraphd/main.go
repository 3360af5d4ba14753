// SPDX-License-Identifier: MIT

// Command playgraphd is the playback daemon: it loads the configured
// playlists, runs one controller.Controller per playlist under a single
// supervisor.Supervisor, and serves the health/metrics endpoint until
// SIGINT, SIGTERM, or SIGHUP asks it to stop or reload.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/playgraph/internal/config"
	"github.com/tomtom215/playgraph/internal/controller"
	"github.com/tomtom215/playgraph/internal/diagnostics"
	"github.com/tomtom215/playgraph/internal/health"
	"github.com/tomtom215/playgraph/internal/lock"
	"github.com/tomtom215/playgraph/internal/logrotate"
	"github.com/tomtom215/playgraph/internal/ops"
	"github.com/tomtom215/playgraph/internal/supervisor"
	"github.com/tomtom215/playgraph/internal/util"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "playgraphd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("playgraphd", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "path to configuration file")
	lockDir := fs.String("lock-dir", "/var/run/playgraph", "directory for per-session lock files")
	logDir := fs.String("log-dir", "/var/log/playgraph", "directory for per-session rotating log files")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *help {
		printUsage(fs)
		return nil
	}

	logger := newLogger(*logLevel)
	logger.Info("starting playgraphd", "version", Version, "commit", GitCommit, "built", BuildDate)

	cfg, kc, err := loadConfiguration(*configPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := os.MkdirAll(*lockDir, 0750); err != nil { // #nosec G301 -- lock dir needs to be traversable by the daemon user
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	d := &daemon{
		cfg:        cfg,
		configPath: *configPath,
		kc:         kc,
		logger:     logger,
		lockDir:    *lockDir,
		logDir:     *logDir,
		sup: supervisor.New(supervisor.Config{
			Name:              "playgraphd",
			ShutdownTimeout:   cfg.Session.ShutdownTimeout,
			RestartDelay:      cfg.Session.InitialRestartDelay,
			MaxRestartDelay:   cfg.Session.MaxRestartDelay,
			RestartMultiplier: cfg.Session.RestartMultiplier,
			Logger:            logger,
		}),
		controllers:    make(map[string]*controller.Controller),
		resources:      util.NewResourceTracker(),
		playlistTracks: make(map[string][]config.Track),
	}

	if err := d.registerSessions(); err != nil {
		return fmt.Errorf("failed to register sessions: %w", err)
	}
	defer func() {
		if leaked := d.leakedResources(); len(leaked) > 0 {
			logger.Warn("resources still tracked after shutdown", "resources", leaked)
		}
	}()
	defer d.releaseLocks()
	defer d.closeSessionLogs()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	util.SafeGo("signal-handler", os.Stderr, func() { d.waitForSignals(ctx, cancel) }, nil)
	util.SafeGo("config-watcher", os.Stderr, func() { d.watchConfig(ctx) }, nil)

	var wg sync.WaitGroup
	if cfg.Monitor.Enabled && cfg.Monitor.HealthAddr != "" {
		wg.Add(1)
		util.SafeGo("health-endpoint", os.Stderr, func() {
			defer wg.Done()
			logger.Info("serving health endpoint", "addr", cfg.Monitor.HealthAddr)
			if err := health.ListenAndServe(ctx, cfg.Monitor.HealthAddr, health.NewHandler(d)); err != nil {
				logger.Error("health endpoint stopped", "error", err)
			}
		}, nil)
	}

	err = d.sup.Run(ctx)
	wg.Wait()

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor exited: %w", err)
	}
	logger.Info("playgraphd stopped")
	return nil
}

// daemon owns the running set of controllers and the locks guarding them,
// and implements health.StatusProvider and diagnostics.SessionProvider so
// both the HTTP endpoint and an ad hoc diagnostics run see the same fleet.
type daemon struct {
	cfg        *config.Config
	configPath string
	kc         *config.KoanfConfig
	logger     *slog.Logger
	lockDir    string
	logDir     string
	sup        *supervisor.Supervisor

	mu             sync.Mutex
	controllers    map[string]*controller.Controller
	sessionNames   []string
	locks          []*lock.FileLock
	sessionLogs    []io.Closer
	resources      *util.ResourceTracker
	playlistTracks map[string][]config.Track
}

// registerSessions builds one Controller per configured playlist, acquires
// its lock file, and adds it to the supervisor. If any session fails to
// register, the locks already acquired are released before returning;
// controllers already added to the supervisor and their session log files
// are not removed.
func (d *daemon) registerSessions() error {
	if len(d.cfg.Playlists) == 0 {
		return fmt.Errorf("no playlists configured")
	}
	if d.resources == nil {
		d.resources = util.NewResourceTracker()
	}
	if d.playlistTracks == nil {
		d.playlistTracks = make(map[string][]config.Track)
	}

	for name, pl := range d.cfg.Playlists {
		fl, err := lock.NewFileLock(filepath.Join(d.lockDir, name+".lock"))
		if err != nil {
			d.releaseLocks()
			return fmt.Errorf("session %q: failed to create lock: %w", name, err)
		}
		if err := fl.Acquire(30 * time.Second); err != nil {
			d.releaseLocks()
			return fmt.Errorf("session %q: another daemon instance is already driving this session: %w", name, err)
		}

		sessionLog, err := logrotate.SessionLogWriter(d.logDir, name)
		if err != nil {
			_ = fl.Release()
			d.releaseLocks()
			return fmt.Errorf("session %q: failed to open session log: %w", name, err)
		}
		sessionLogger := slog.New(slog.NewTextHandler(sessionLog, nil)).With("session", name)

		opsPlaylist := pl.ToOpsPlaylist()
		ctl, err := controller.New(&controller.Config{
			SessionID: name,
			Strategy:  strategyFor(pl.GraphKind()),
			Playlist:  opsPlaylist,
			Logger:    sessionLogger,
			QueueSize: d.cfg.Session.QueueSize,
		})
		if err != nil {
			_ = fl.Release()
			_ = sessionLog.Close()
			d.releaseLocks()
			return fmt.Errorf("session %q: failed to build controller: %w", name, err)
		}

		d.mu.Lock()
		d.controllers[name] = ctl
		d.sessionNames = append(d.sessionNames, name)
		d.locks = append(d.locks, fl)
		d.sessionLogs = append(d.sessionLogs, sessionLog)
		d.playlistTracks[name] = append([]config.Track(nil), pl.Items...)
		d.mu.Unlock()

		d.resources.TrackResource(name+":lock", fl)
		d.resources.TrackResource(name+":log", sessionLog)

		if err := d.sup.Add(ctl); err != nil {
			d.releaseLocks()
			return fmt.Errorf("session %q: failed to register with supervisor: %w", name, err)
		}
		d.logger.Info("registered session", "session", name, "tracks", opsPlaylist.Len(), "kind", pl.GraphKind().String())
	}
	return nil
}

func (d *daemon) releaseLocks() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, fl := range d.locks {
		if err := fl.Release(); err != nil {
			d.logger.Warn("failed to release lock", "error", err)
		}
		if i < len(d.sessionNames) {
			d.resources.UntrackResource(d.sessionNames[i] + ":lock")
		}
	}
	d.locks = nil
}

func (d *daemon) closeSessionLogs() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, l := range d.sessionLogs {
		if err := l.Close(); err != nil {
			d.logger.Warn("failed to close session log", "error", err)
		}
		if i < len(d.sessionNames) {
			d.resources.UntrackResource(d.sessionNames[i] + ":log")
		}
	}
	d.sessionLogs = nil
}

// leakedResources reports any session lock or log file still tracked after
// shutdown, the resourceTracker's reason for existing per its own doc
// comment's "locks, connections" example.
func (d *daemon) leakedResources() []string {
	return d.resources.LeakedResources()
}

// strategyFor maps a playlist's graph kind onto the matching ops.Strategy
// constructor; every non-local service shares the container strategy's
// demuxing pipeline shape.
func strategyFor(kind ops.GraphKind) ops.Strategy {
	if kind == ops.GraphLocal {
		return ops.NewLocalStrategy()
	}
	return ops.NewContainerStrategy(kind)
}

// Services implements health.StatusProvider.
func (d *daemon) Services() []health.ServiceInfo {
	d.mu.Lock()
	names := make([]string, 0, len(d.controllers))
	for name := range d.controllers {
		names = append(names, name)
	}
	d.mu.Unlock()

	statusByName := make(map[string]supervisor.ServiceStatus, len(names))
	for _, st := range d.sup.Status() {
		statusByName[st.Name] = st
	}

	infos := make([]health.ServiceInfo, 0, len(names))
	for _, name := range names {
		d.mu.Lock()
		ctl := d.controllers[name]
		d.mu.Unlock()

		m := ctl.Metrics()
		st := statusByName[name]
		errMsg := ""
		if m.LastError != nil {
			errMsg = m.LastError.Error()
		}
		infos = append(infos, health.ServiceInfo{
			Name:     name,
			State:    string(m.State),
			Uptime:   m.Uptime,
			Healthy:  st.State == supervisor.ServiceStateRunning && m.LastError == nil,
			Error:    errMsg,
			Restarts: st.Restarts,
		})
	}
	return infos
}

// Sessions implements diagnostics.SessionProvider.
func (d *daemon) Sessions() []diagnostics.SessionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]diagnostics.SessionInfo, 0, len(d.controllers))
	for _, ctl := range d.controllers {
		infos = append(infos, ctl.DiagnosticInfo())
	}
	return infos
}

func (d *daemon) waitForSignals(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				d.logger.Info("received SIGHUP, validating configuration on disk (restart required to apply playlist changes)")
				if d.kc != nil {
					if err := d.kc.Reload(); err != nil {
						d.logger.Warn("config reload check failed", "error", err)
						break
					}
					if _, err := d.kc.Load(); err != nil {
						d.logger.Warn("config reload check failed", "error", err)
					}
					break
				}
				if _, err := config.LoadConfig(d.configPath); err != nil {
					d.logger.Warn("config reload check failed", "error", err)
				}
			default:
				d.logger.Info("received shutdown signal", "signal", sig.String())
				cancel()
				return
			}
		}
	}
}

// watchConfig watches the configuration file's directory with fsnotify and
// applies any appended playlist tracks to the matching running session, so
// editing a playlist's `items` list feeds an add_plist event into a live
// controller instead of requiring a restart. Anything beyond a pure
// append (reorder, removal, a renamed/new playlist) still needs a restart:
// a controller's fsm.Machine has no operation to replace its playlist
// wholesale mid-session, only to append to it (spec.md's add_plist event).
func (d *daemon) watchConfig(ctx context.Context) {
	if d.kc == nil || d.configPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("failed to start config file watcher", "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(d.configPath)
	if err := watcher.Add(dir); err != nil {
		d.logger.Warn("failed to watch config directory", "dir", dir, "error", err)
		return
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(d.configPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, d.applyConfigChange)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("config file watcher error", "error", watchErr)
		}
	}
}

// applyConfigChange reloads the config file through koanf and, for each
// configured playlist whose on-disk items still start with the tracks a
// running session already knows about, submits the appended tracks via
// Controller.AddToPlaylist. A playlist that changed any other way, or a
// playlist/session that doesn't exist yet, is logged and left alone.
func (d *daemon) applyConfigChange() {
	if err := d.kc.Reload(); err != nil {
		d.logger.Warn("config file reload failed", "error", err)
		return
	}
	newCfg, err := d.kc.Load()
	if err != nil {
		d.logger.Warn("config file reload failed", "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for name, pl := range newCfg.Playlists {
		ctl, ok := d.controllers[name]
		if !ok {
			d.logger.Warn("new playlist added to config, restart playgraphd to pick it up", "playlist", name)
			continue
		}
		added, ok := appendedTracks(d.playlistTracks[name], pl.Items)
		if !ok {
			d.logger.Warn("playlist changed in a way that can't be applied live, restart playgraphd to apply it", "playlist", name)
			continue
		}
		if len(added) == 0 {
			continue
		}
		items := make([]ops.Track, len(added))
		for i, t := range added {
			items[i] = ops.Track{URI: t.URI, Title: t.Title}
		}
		if err := ctl.AddToPlaylist(items); err != nil {
			d.logger.Warn("failed to submit playlist addition", "playlist", name, "error", err)
			continue
		}
		d.playlistTracks[name] = append(d.playlistTracks[name], added...)
		d.logger.Info("appended tracks to running session from config change", "playlist", name, "added", len(added))
	}
}

// appendedTracks reports the tracks added to the end of current relative to
// known, and false if current doesn't start with known (a reorder, a
// removal, or any other edit that isn't a pure append).
func appendedTracks(known, current []config.Track) (added []config.Track, ok bool) {
	if len(current) < len(known) {
		return nil, false
	}
	for i := range known {
		if known[i] != current[i] {
			return nil, false
		}
	}
	return current[len(known):], true
}

// loadConfiguration loads the config file layered with PLAYGRAPH_* env var
// overrides via koanf, falling back to defaults when no config file exists
// yet, mirroring the bootstrap-friendly behavior operators expect from a
// freshly installed daemon. The returned *config.KoanfConfig is nil in the
// bootstrap case, since there is nothing on disk yet for SIGHUP to reload.
func loadConfiguration(path string, logger *slog.Logger) (*config.Config, *config.KoanfConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("no configuration file found, using defaults", "path", path)
		return config.DefaultConfig(), nil, nil
	}
	kc, err := config.NewKoanfConfig(config.WithYAMLFile(path), config.WithEnvPrefix("PLAYGRAPH"))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := kc.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, kc, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "playgraphd %s\n\nUsage: playgraphd [OPTIONS]\n\nOPTIONS:\n", Version)
	fs.PrintDefaults()
}
