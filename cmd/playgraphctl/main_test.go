package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/playgraph/internal/config"
	"github.com/tomtom215/playgraph/internal/health"
)

// TestRun verifies basic command routing for commands that don't need a
// real config file or a running playgraphd.
func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		errMsg  string
	}{
		{name: "no arguments shows help"},
		{name: "help command", args: []string{"help"}},
		{name: "version command", args: []string{"version"}},
		{name: "unknown command", args: []string{"unknown-command"}, wantErr: true, errMsg: "unknown command"},
		{name: "playlists without subcommand", args: []string{"playlists"}, wantErr: true},
		{name: "session without args", args: []string{"session"}, wantErr: true},
		{name: "config without subcommand", args: []string{"config"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Error("run() expected error, got nil")
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("run() error = %q, want substring %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("run() unexpected error: %v", err)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	if err := runHelp(); err != nil {
		t.Errorf("runHelp() unexpected error: %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	Version, GitCommit, BuildDate = "test-version", "test-commit", "test-date"
	if err := runVersion(); err != nil {
		t.Errorf("runVersion() unexpected error: %v", err)
	}
}

func TestFlagValue(t *testing.T) {
	tests := []struct {
		name string
		args []string
		key  string
		def  string
		want string
	}{
		{"equals form", []string{"--config=/tmp/x.yaml"}, "config", "default", "/tmp/x.yaml"},
		{"space form", []string{"--config", "/tmp/x.yaml"}, "config", "default", "/tmp/x.yaml"},
		{"missing uses default", []string{"--other=1"}, "config", "default", "default"},
		{"trailing flag with no value keeps default", []string{"--config"}, "config", "default", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flagValue(tt.args, tt.key, tt.def); got != tt.want {
				t.Errorf("flagValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasFlag(t *testing.T) {
	if !hasFlag([]string{"status", "--json"}, "json") {
		t.Error("hasFlag should find --json")
	}
	if hasFlag([]string{"status"}, "json") {
		t.Error("hasFlag should not find --json when absent")
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	t.Run("non-existent path returns defaults", func(t *testing.T) {
		cfg, err := loadConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg == nil {
			t.Fatal("cfg must not be nil")
		}
	})

	t.Run("existing file is loaded", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := "default_service: local\nplaylists:\n  mix:\n    service: local\n    items:\n      - uri: \"file:///a.wav\"\n        title: A\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		cfg, err := loadConfigOrDefault(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := cfg.GetPlaylist("mix"); !ok {
			t.Error("expected playlist 'mix' to be loaded")
		}
	})
}

func TestRunPlaylistsUnknownSubcommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_service: local\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	err := runPlaylists([]string{"bogus", "--config=" + path})
	if err == nil {
		t.Error("expected error for unknown playlists subcommand")
	}
}

func TestRunPlaylistsListEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_service: local\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := runPlaylists([]string{"list", "--config=" + path}); err != nil {
		t.Errorf("runPlaylists(list) unexpected error: %v", err)
	}
}

func TestRunPlaylistsShowMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_service: local\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	err := runPlaylists([]string{"show", "nope", "--config=" + path})
	if err == nil {
		t.Error("expected error for missing playlist")
	}
}

func TestRunSessionUnknownAction(t *testing.T) {
	err := runSession([]string{"frobnicate", "mix"})
	if err == nil || !strings.Contains(err.Error(), "unknown session subcommand") {
		t.Errorf("runSession() error = %v, want unknown session subcommand", err)
	}
}

func TestRunSessionUnconfiguredPlaylist(t *testing.T) {
	// runSession always reads config.ConfigFilePath, which doesn't exist in
	// the test sandbox, so it falls back to an empty default configuration;
	// any playlist name is then reported as unconfigured.
	err := runSession([]string{"start", "nope"})
	if err == nil || !strings.Contains(err.Error(), "is not configured") {
		t.Errorf("runSession() error = %v, want 'is not configured'", err)
	}
}

func TestRunConfigUnknownSubcommand(t *testing.T) {
	err := runConfig([]string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown config subcommand") {
		t.Errorf("runConfig() error = %v, want unknown config subcommand", err)
	}
}

func TestRunConfigShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_service: local\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := runConfig([]string{"show", "--config=" + path}); err != nil {
		t.Errorf("runConfig(show) unexpected error: %v", err)
	}
}

func TestFetchServiceInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(health.Response{
			Status: "healthy",
			Services: []health.ServiceInfo{
				{Name: "evening_mix", State: "executing", Healthy: true},
			},
		})
	}))
	defer srv.Close()

	client := &http.Client{}

	svc, ok := fetchServiceInfo(client, srv.URL, "evening_mix")
	if !ok {
		t.Fatal("expected to find session evening_mix")
	}
	if !svc.Healthy || svc.State != "executing" {
		t.Errorf("fetchServiceInfo() = %+v, want healthy executing", svc)
	}

	if _, ok := fetchServiceInfo(client, srv.URL, "nope"); ok {
		t.Error("expected session 'nope' to be absent")
	}
}

func TestFetchServiceInfoUnreachable(t *testing.T) {
	client := &http.Client{}
	if _, ok := fetchServiceInfo(client, "http://127.0.0.1:1", "evening_mix"); ok {
		t.Error("expected fetchServiceInfo to report absent on connection failure")
	}
}

func TestWaitForSessionHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(health.Response{
			Services: []health.ServiceInfo{
				{Name: "evening_mix", State: "executing", Healthy: true},
			},
		})
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	cfg := &config.Config{Monitor: config.MonitorConfig{HealthAddr: addr}}

	if err := waitForSessionHealthy(cfg, "evening_mix"); err != nil {
		t.Errorf("waitForSessionHealthy() unexpected error: %v", err)
	}
}

func TestWaitForSessionHealthyGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(health.Response{Services: nil})
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	cfg := &config.Config{Monitor: config.MonitorConfig{HealthAddr: addr}}

	if err := waitForSessionHealthy(cfg, "evening_mix"); err == nil {
		t.Error("expected error when session never appears healthy")
	}
}

func TestRunConfigBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_service: local\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := runConfig([]string{"backup", "--config=" + path}); err != nil {
		t.Errorf("runConfig(backup) unexpected error: %v", err)
	}

	backups, err := config.ListBackups(config.GetBackupDir(path), filepath.Base(path))
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("expected 1 backup, got %d", len(backups))
	}
}
