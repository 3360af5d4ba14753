package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestKoanfConfig_LoadYAML tests loading configuration from a YAML file.
func TestKoanfConfig_LoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
default_service: local

playlists:
  evening_mix:
    service: local
    items:
      - uri: "file:///music/a.wav"
        title: "Track A"

session:
  initial_restart_delay: 10s
  max_restart_delay: 300s
  max_restart_attempts: 50
  queue_size: 64

monitor:
  enabled: true
  interval: 5m
  restart_unhealthy: true
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DefaultService != ServiceLocal {
		t.Errorf("Expected default_service local, got %s", cfg.DefaultService)
	}

	pl, ok := cfg.Playlists["evening_mix"]
	if !ok {
		t.Fatal("Expected evening_mix playlist")
	}
	if pl.Service != ServiceLocal {
		t.Errorf("Expected evening_mix service local, got %s", pl.Service)
	}
	if len(pl.Items) != 1 || pl.Items[0].URI != "file:///music/a.wav" {
		t.Errorf("Expected evening_mix to have one track, got %+v", pl.Items)
	}

	if cfg.Session.InitialRestartDelay != 10*time.Second {
		t.Errorf("Expected initial restart delay 10s, got %v", cfg.Session.InitialRestartDelay)
	}
	if cfg.Session.MaxRestartDelay != 300*time.Second {
		t.Errorf("Expected max restart delay 300s, got %v", cfg.Session.MaxRestartDelay)
	}
}

// TestKoanfConfig_LoadWithEnvOverride tests environment variable overrides.
func TestKoanfConfig_LoadWithEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
default_service: local

session:
  initial_restart_delay: 10s
  max_restart_delay: 300s
  queue_size: 32

monitor:
  enabled: true
  interval: 5m
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("PLAYGRAPH_DEFAULT_SERVICE", "spotify")
	t.Setenv("PLAYGRAPH_SESSION_QUEUE_SIZE", "128")

	kc, err := NewKoanfConfig(
		WithYAMLFile(configPath),
		WithEnvPrefix("PLAYGRAPH"),
	)
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DefaultService != ServiceSpotify {
		t.Errorf("Expected default_service spotify (from env), got %s", cfg.DefaultService)
	}

	if cfg.Session.QueueSize != 128 {
		t.Errorf("Expected queue_size 128 (from env), got %d", cfg.Session.QueueSize)
	}

	// Non-overridden value still comes from YAML.
	if cfg.Session.InitialRestartDelay != 10*time.Second {
		t.Errorf("Expected initial_restart_delay 10s (from YAML), got %v", cfg.Session.InitialRestartDelay)
	}
}

// TestKoanfConfig_LoadPlaylistEnvOverride tests per-playlist env overrides.
func TestKoanfConfig_LoadPlaylistEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
playlists:
  evening_mix:
    service: local
    items:
      - uri: "file:///music/a.wav"

default_service: local

session:
  queue_size: 32
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("PLAYGRAPH_PLAYLISTS_EVENING_MIX_SERVICE", "spotify")

	kc, err := NewKoanfConfig(
		WithYAMLFile(configPath),
		WithEnvPrefix("PLAYGRAPH"),
	)
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	pl, ok := cfg.Playlists["evening_mix"]
	if !ok {
		t.Fatal("Expected evening_mix playlist")
	}
	if pl.Service != ServiceSpotify {
		t.Errorf("Expected evening_mix service spotify (from env), got %s", pl.Service)
	}
	// Items aren't a sensible env-var override target; they survive from YAML.
	if len(pl.Items) != 1 || pl.Items[0].URI != "file:///music/a.wav" {
		t.Errorf("Expected evening_mix items preserved from YAML, got %+v", pl.Items)
	}
}

// TestKoanfConfig_Reload tests manual configuration reload.
func TestKoanfConfig_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	initialConfig := `
default_service: local
session:
  queue_size: 32
monitor:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(initialConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Session.QueueSize != 32 {
		t.Fatalf("Expected initial queue_size 32, got %d", cfg.Session.QueueSize)
	}

	updatedConfig := `
default_service: spotify
session:
  queue_size: 128
monitor:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(updatedConfig), 0644); err != nil {
		t.Fatalf("Failed to update test config: %v", err)
	}

	if err := kc.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg, err = kc.Load()
	if err != nil {
		t.Fatalf("Load after reload failed: %v", err)
	}

	if cfg.DefaultService != ServiceSpotify {
		t.Errorf("Expected reloaded default_service spotify, got %s", cfg.DefaultService)
	}
	if cfg.Session.QueueSize != 128 {
		t.Errorf("Expected reloaded queue_size 128, got %d", cfg.Session.QueueSize)
	}
	if cfg.Monitor.Enabled {
		t.Error("Expected reloaded monitor.enabled false")
	}
}

// TestKoanfConfig_Watch tests configuration file watching.
func TestKoanfConfig_Watch(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	initialConfig := `
default_service: local
session:
  queue_size: 32
monitor:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(initialConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	watchCalled := make(chan string, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_ = kc.Watch(ctx, func(event string, err error) {
			if err != nil {
				watchCalled <- "error: " + err.Error()
				return
			}
			watchCalled <- event
		})
	}()

	time.Sleep(100 * time.Millisecond)

	updatedConfig := `
default_service: local
session:
  queue_size: 128
monitor:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(updatedConfig), 0644); err != nil {
		t.Fatalf("Failed to update test config: %v", err)
	}

	select {
	case event := <-watchCalled:
		if event != "config reloaded" {
			t.Errorf("Expected event 'config reloaded', got %s", event)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch callback not called within timeout")
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load after watch failed: %v", err)
	}

	if cfg.Session.QueueSize != 128 {
		t.Errorf("Expected watched queue_size 128, got %d", cfg.Session.QueueSize)
	}
}

// TestKoanfConfig_BackwardCompatibility tests that the koanf loader agrees
// with the plain YAML LoadConfig path on the same file.
func TestKoanfConfig_BackwardCompatibility(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
default_service: local

playlists:
  evening_mix:
    service: local
    items:
      - uri: "file:///music/a.wav"
        title: "Track A"

session:
  initial_restart_delay: 10s
  max_restart_delay: 300s
  max_restart_attempts: 50
  queue_size: 64

monitor:
  enabled: true
  interval: 5m
  restart_unhealthy: true
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	oldCfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	newCfg, err := kc.Load()
	if err != nil {
		t.Fatalf("koanf Load failed: %v", err)
	}

	if oldCfg.DefaultService != newCfg.DefaultService {
		t.Errorf("DefaultService mismatch: old=%s, new=%s", oldCfg.DefaultService, newCfg.DefaultService)
	}
	if oldCfg.Session.QueueSize != newCfg.Session.QueueSize {
		t.Errorf("Session.QueueSize mismatch: old=%d, new=%d", oldCfg.Session.QueueSize, newCfg.Session.QueueSize)
	}

	oldPl := oldCfg.Playlists["evening_mix"]
	newPl := newCfg.Playlists["evening_mix"]
	if oldPl.Service != newPl.Service {
		t.Errorf("Playlist service mismatch: old=%s, new=%s", oldPl.Service, newPl.Service)
	}
	if len(oldPl.Items) != len(newPl.Items) {
		t.Errorf("Playlist item count mismatch: old=%d, new=%d", len(oldPl.Items), len(newPl.Items))
	}
}

// TestKoanfConfig_InvalidYAML tests handling of invalid YAML.
func TestKoanfConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidConfig := `
default_service: [this is not a string
`
	if err := os.WriteFile(configPath, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		// Expected - invalid YAML should fail during NewKoanfConfig.
		return
	}

	_, err = kc.Load()
	if err == nil {
		t.Error("Expected error loading invalid YAML, got nil")
	}
}

// TestKoanfConfig_MissingFile tests handling of missing config file.
func TestKoanfConfig_MissingFile(t *testing.T) {
	_, err := NewKoanfConfig(WithYAMLFile("/nonexistent/config.yaml"))
	if err == nil {
		t.Error("Expected error loading missing file, got nil")
	}
}

// TestKoanfConfig_GetMethods tests typed getter methods.
func TestKoanfConfig_GetMethods(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
default_service: local

session:
  initial_restart_delay: 10s
  queue_size: 64

monitor:
  enabled: true
  interval: 5m
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	queueSize := kc.GetInt("session.queue_size")
	if queueSize != 64 {
		t.Errorf("Expected queue_size 64, got %d", queueSize)
	}

	service := kc.GetString("default_service")
	if service != "local" {
		t.Errorf("Expected default_service local, got %s", service)
	}

	enabled := kc.GetBool("monitor.enabled")
	if !enabled {
		t.Error("Expected monitor enabled to be true")
	}

	delay := kc.GetDuration("session.initial_restart_delay")
	if delay != 10*time.Second {
		t.Errorf("Expected delay 10s, got %v", delay)
	}

	if !kc.Exists("default_service") {
		t.Error("Expected default_service to exist")
	}

	if kc.Exists("nonexistent.key") {
		t.Error("Expected nonexistent.key to not exist")
	}
}

// TestKoanfConfig_NoFile tests loading without a file (env vars only).
func TestKoanfConfig_NoFile(t *testing.T) {
	t.Setenv("PLAYGRAPH_DEFAULT_SERVICE", "local")
	t.Setenv("PLAYGRAPH_SESSION_QUEUE_SIZE", "64")

	kc, err := NewKoanfConfig(WithEnvPrefix("PLAYGRAPH"))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DefaultService != ServiceLocal {
		t.Errorf("Expected default_service local, got %s", cfg.DefaultService)
	}
	if cfg.Session.QueueSize != 64 {
		t.Errorf("Expected queue_size 64, got %d", cfg.Session.QueueSize)
	}
}

// TestKoanfConfig_All tests the All() method for complete map access.
func TestKoanfConfig_All(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
default_service: local
session:
  initial_restart_delay: 10s
  queue_size: 64
monitor:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	allConfig := kc.All()

	if allConfig == nil {
		t.Fatal("All() returned nil")
	}

	if _, ok := allConfig["default_service"]; !ok {
		t.Error("All() should contain 'default_service' key")
	}

	if _, ok := allConfig["session.queue_size"]; !ok {
		t.Error("All() should contain 'session.queue_size' key")
	}

	if _, ok := allConfig["monitor.enabled"]; !ok {
		t.Error("All() should contain 'monitor.enabled' key")
	}
}

// TestKoanfConfig_AllAfterReload tests that All() reflects reloaded values.
func TestKoanfConfig_AllAfterReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	initialConfig := `
default_service: local
session:
  queue_size: 64
monitor:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(initialConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	updatedConfig := `
default_service: spotify
session:
  queue_size: 128
monitor:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(updatedConfig), 0644); err != nil {
		t.Fatalf("Failed to update test config: %v", err)
	}

	if err := kc.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	allConfig := kc.All()
	if allConfig == nil {
		t.Fatal("All() returned nil after reload")
	}

	if len(allConfig) == 0 {
		t.Error("All() returned empty map after reload")
	}
}

// TestKoanfConfig_WatchNoFile tests Watch with no file specified.
func TestKoanfConfig_WatchNoFile(t *testing.T) {
	kc, err := NewKoanfConfig(WithEnvPrefix("PLAYGRAPH"))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = kc.Watch(ctx, func(event string, watchErr error) {
		t.Error("Callback should not be called when no file is set")
	})

	if err == nil {
		t.Error("Watch without file should return an error")
	}

	if err != nil && !strings.Contains(err.Error(), "no file path specified") {
		t.Errorf("Expected error about no file path, got: %v", err)
	}
}

// TestKoanfConfig_WatchContextCancellation tests Watch with context cancellation.
func TestKoanfConfig_WatchContextCancellation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
default_service: local
session:
  queue_size: 64
monitor:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = kc.Watch(ctx, func(event string, err error) {})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Success - Watch returned when context was cancelled.
	case <-time.After(2 * time.Second):
		t.Error("Watch did not return when context was cancelled")
	}
}

// TestKoanfConfig_ConcurrentReloadAndRead tests that concurrent Reload and
// getter calls do not cause a data race on the internal koanf pointer.
// This test is designed to be run with `go test -race` to detect races.
func TestKoanfConfig_ConcurrentReloadAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	testConfig := `
default_service: local
session:
  initial_restart_delay: 10s
  queue_size: 64
monitor:
  enabled: true
  interval: 5m
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	const numGoroutines = 10
	const numIterations = 50

	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.Reload()
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.GetString("default_service")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.GetInt("session.queue_size")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.GetBool("monitor.enabled")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.GetDuration("session.initial_restart_delay")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.Exists("default_service")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.All()
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_, _ = kc.Load()
			}
		}()
	}

	wg.Wait()
}
