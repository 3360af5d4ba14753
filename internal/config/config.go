// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/tomtom215/playgraph/internal/ops"
)

// ConfigFilePath is the default location for the configuration file.
const ConfigFilePath = "/etc/playgraph/config.yaml"

// Known playlist service names (spec.md §4.1's "one per streaming service"
// note; original_source/player/src/services/* enumerates these as distinct
// graph FSMs). Every non-local service shares the container-graph pipeline
// shape; see Playlist.GraphKind.
const (
	ServiceLocal       = "local"
	ServiceSpotify     = "spotify"
	ServiceYouTube     = "youtube"
	ServiceGoogleMusic = "google_music"
	ServiceSoundCloud  = "soundcloud"
	ServiceDirble      = "dirble"
	ServicePlex        = "plex"
	ServiceChromecast  = "chromecast"
)

var knownServices = map[string]bool{
	ServiceLocal:       true,
	ServiceSpotify:     true,
	ServiceYouTube:     true,
	ServiceGoogleMusic: true,
	ServiceSoundCloud:  true,
	ServiceDirble:      true,
	ServicePlex:        true,
	ServiceChromecast:  true,
}

// Config represents the complete playback-daemon configuration.
type Config struct {
	// Playlists contains every playlist the daemon knows about, keyed by a
	// caller-chosen session name.
	Playlists map[string]Playlist `yaml:"playlists" koanf:"playlists"`

	// DefaultService selects the strategy used for a playlist that doesn't
	// set its own Service.
	DefaultService string `yaml:"default_service" koanf:"default_service"`

	// Session settings applied to every controller/supervisor pairing.
	Session SessionConfig `yaml:"session" koanf:"session"`

	// Monitor settings for health checks.
	Monitor MonitorConfig `yaml:"monitor" koanf:"monitor"`
}

// Track is one playlist entry as stored on disk.
type Track struct {
	URI   string `yaml:"uri" koanf:"uri"`     // Stream/file URI the source component opens
	Title string `yaml:"title" koanf:"title"` // Display title, surfaced via OnMetadata
}

// Playlist is a named, service-tagged ordered list of tracks.
type Playlist struct {
	Service string  `yaml:"service" koanf:"service"` // one of the Service* constants; "" inherits DefaultService
	Items   []Track `yaml:"items" koanf:"items"`
}

// GraphKind maps a playlist's named service onto the mechanical pipeline
// shape ops.Strategy needs. Every streaming-service graph shares the
// container-with-demuxer shape (spec.md §4.2's "Specializations"); only
// "local" gets the plain 3-component pipeline.
func (p Playlist) GraphKind() ops.GraphKind {
	if p.Service == "" || p.Service == ServiceLocal {
		return ops.GraphLocal
	}
	return ops.GraphContainer
}

// ToOpsPlaylist converts the on-disk playlist into the type ops.Ops and
// internal/controller operate on.
func (p Playlist) ToOpsPlaylist() ops.Playlist {
	items := make([]ops.Track, len(p.Items))
	for i, t := range p.Items {
		items[i] = ops.Track{URI: t.URI, Title: t.Title}
	}
	return ops.Playlist{Items: items}
}

// Validate checks a playlist for invalid values.
func (p Playlist) Validate() error {
	if p.Service != "" && !knownServices[p.Service] {
		return fmt.Errorf("unknown service %q", p.Service)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("must contain at least one track")
	}
	for i, t := range p.Items {
		if t.URI == "" {
			return fmt.Errorf("item %d: uri must not be empty", i)
		}
	}
	return nil
}

// SessionConfig contains the restart/backoff/lifecycle settings handed to
// internal/supervisor and internal/controller for every session.
type SessionConfig struct {
	InitialRestartDelay time.Duration `yaml:"initial_restart_delay" koanf:"initial_restart_delay"` // First restart delay
	MaxRestartDelay     time.Duration `yaml:"max_restart_delay" koanf:"max_restart_delay"`         // Maximum backoff delay
	RestartMultiplier   float64       `yaml:"restart_multiplier" koanf:"restart_multiplier"`       // Growth factor applied on each failure
	MaxRestartAttempts  int           `yaml:"max_restart_attempts" koanf:"max_restart_attempts"`   // Validated (>= 0) but not read by playgraphd; restarts are not capped
	QueueSize           int           `yaml:"queue_size" koanf:"queue_size"`                       // Per-controller event queue depth
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout" koanf:"shutdown_timeout"`           // Graceful supervisor shutdown budget
}

// Validate checks session configuration for invalid values.
func (s *SessionConfig) Validate() error {
	if s.RestartMultiplier != 0 && s.RestartMultiplier < 1 {
		return fmt.Errorf("restart_multiplier must be >= 1 (got %v)", s.RestartMultiplier)
	}
	if s.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative")
	}
	if s.MaxRestartAttempts < 0 {
		return fmt.Errorf("max_restart_attempts must not be negative")
	}
	return nil
}

// MonitorConfig contains health monitoring settings.
type MonitorConfig struct {
	Enabled            bool          `yaml:"enabled" koanf:"enabled"`                           // Enable health monitoring
	Interval           time.Duration `yaml:"interval" koanf:"interval"`                         // Health check interval; loaded but not acted on by playgraphd
	StallCheckInterval time.Duration `yaml:"stall_check_interval" koanf:"stall_check_interval"` // Stall-check interval; loaded but not acted on (no stall monitor runs)
	MaxStallChecks     int           `yaml:"max_stall_checks" koanf:"max_stall_checks"`         // Stall-check limit; loaded but not acted on (no stall monitor runs)
	RestartUnhealthy   bool          `yaml:"restart_unhealthy" koanf:"restart_unhealthy"`       // Loaded but not acted on; the supervisor restarts sessions regardless
	HealthAddr         string        `yaml:"health_addr" koanf:"health_addr"`                   // Health endpoint address
}

// LoadConfig reads and parses the configuration file.
//
// Parameters:
//   - path: Path to YAML configuration file
//
// Returns:
//   - *Config: Parsed configuration
//   - error: if file not found, invalid YAML, or validation fails
//
// Example:
//
//	cfg, err := LoadConfig("/etc/playgraph/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pl, _ := cfg.GetPlaylist("evening_mix")
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - Config path is from administrator-controlled configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by Save.
// Tests can replace this with a function returning a mock atomicFile.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the configuration to a YAML file.
//
// Parameters:
//   - path: Destination file path
//
// Returns:
//   - error: if marshaling fails or file write fails
func (c *Config) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Atomic write: write to a temp file in the same directory, sync to disk,
	// then rename to the target path. os.Rename is atomic on most filesystems,
	// so a crash mid-write leaves either the old file or the new file, never
	// a partially-written file.
	dir := filepath.Dir(path)

	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}

	// Config files may carry playlist URIs and credentials-bearing query
	// strings; keep them owner+group readable only.
	// #nosec G302 - Config file restricted to owner+group for security
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil { // #nosec G703 -- path is from CLI flag/config, not web request input
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}

// GetPlaylist returns the named playlist, or false if it isn't configured.
func (c *Config) GetPlaylist(name string) (Playlist, bool) {
	pl, ok := c.Playlists[name]
	return pl, ok
}

// Validate checks configuration for invalid values.
//
// Returns:
//   - error: describing the first validation error found, or nil if valid
func (c *Config) Validate() error {
	if c.DefaultService != "" && !knownServices[c.DefaultService] {
		return fmt.Errorf("default_service: unknown service %q", c.DefaultService)
	}

	for name, pl := range c.Playlists {
		if err := pl.Validate(); err != nil {
			return fmt.Errorf("playlist %q: %w", name, err)
		}
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
//
// This is used when no config file exists or for testing.
func DefaultConfig() *Config {
	return &Config{
		Playlists:      make(map[string]Playlist),
		DefaultService: ServiceLocal,
		Session: SessionConfig{
			InitialRestartDelay: 1 * time.Second,
			MaxRestartDelay:     5 * time.Minute,
			RestartMultiplier:   2.0,
			MaxRestartAttempts:  50,
			QueueSize:           64,
			ShutdownTimeout:     10 * time.Second,
		},
		Monitor: MonitorConfig{
			Enabled:            true,
			Interval:           5 * time.Minute,
			StallCheckInterval: 60 * time.Second,
			MaxStallChecks:     3,
			RestartUnhealthy:   true,
			HealthAddr:         "127.0.0.1:9998",
		},
	}
}
