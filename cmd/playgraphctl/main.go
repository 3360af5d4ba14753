// SPDX-License-Identifier: MIT

// Command playgraphctl is the CLI client for inspecting and managing a
// playgraphd installation: config validation, playlist inspection, daemon
// status, diagnostics, and the interactive menu.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomtom215/playgraph/internal/backoff"
	"github.com/tomtom215/playgraph/internal/config"
	"github.com/tomtom215/playgraph/internal/diagnostics"
	"github.com/tomtom215/playgraph/internal/health"
	"github.com/tomtom215/playgraph/internal/menu"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "validate":
		return runValidate(commandArgs)
	case "playlists":
		return runPlaylists(commandArgs)
	case "status":
		return runStatus(commandArgs)
	case "session":
		return runSession(commandArgs)
	case "setup":
		return runSetup(commandArgs)
	case "check-system":
		return runDiagnose(commandArgs, diagnostics.ModeQuick)
	case "diagnose":
		return runDiagnose(commandArgs, diagnostics.ModeFull)
	case "test":
		return runTest(commandArgs)
	case "config":
		return runConfig(commandArgs)
	case "menu":
		return runMenu(commandArgs)
	default:
		return fmt.Errorf("unknown command: %s (run 'playgraphctl help' for usage)", command)
	}
}

func runHelp() error {
	fmt.Printf(`Playgraph v%s

USAGE:
    playgraphctl [COMMAND] [OPTIONS]

COMMANDS:
    help                   Show this help message
    version                Show version information
    validate               Validate configuration file
    playlists list         List configured playlists
    playlists show NAME    Show one playlist's tracks
    playlists validate     Validate every configured playlist
    status                 Show daemon and session status
    session start NAME     Start the session's playlist (requires playgraphd running)
    session stop NAME      Stop the session's playlist
    session restart NAME   Restart the session's playlist
    setup                  Interactive first-run setup
    check-system           Run the quick diagnostic checks
    diagnose               Run the full diagnostic suite
    test                   Test configuration without modifying system
    config show            Print the resolved configuration
    config backup          Create a timestamped configuration backup
    menu                   Launch the interactive management menu

OPTIONS:
    --config PATH          Path to configuration file (default: %s)

EXAMPLES:
    playgraphctl playlists list
    playgraphctl status --json
    playgraphctl diagnose
    sudo playgraphctl setup --auto

For more information, visit: https://github.com/tomtom215/playgraph
`, Version, config.ConfigFilePath)
	return nil
}

func runVersion() error {
	fmt.Printf("Playgraph\n")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built:      %s\n", BuildDate)
	return nil
}

// flagValue extracts "--name=value" or "--name value" from args, returning
// def if the flag isn't present.
func flagValue(args []string, name, def string) string {
	prefix := "--" + name + "="
	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], prefix):
			return strings.TrimPrefix(args[i], prefix)
		case args[i] == "--"+name && i+1 < len(args):
			return args[i+1]
		}
	}
	return def
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == "--"+name {
			return true
		}
	}
	return false
}

func loadConfigOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func runValidate(args []string) error {
	configPath := flagValue(args, "config", config.ConfigFilePath)

	fmt.Printf("Validating configuration: %s\n\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	fmt.Printf("✓ %d playlist(s) configured\n", len(cfg.Playlists))
	return nil
}

func runPlaylists(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: playgraphctl playlists {list|show NAME|validate}")
	}
	configPath := flagValue(args, "config", config.ConfigFilePath)
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "list":
		if len(cfg.Playlists) == 0 {
			fmt.Println("No playlists configured")
			return nil
		}
		fmt.Printf("Configured playlists (%d):\n\n", len(cfg.Playlists))
		for name, pl := range cfg.Playlists {
			service := pl.Service
			if service == "" {
				service = cfg.DefaultService
			}
			fmt.Printf("  %s: %d track(s), service=%s\n", name, len(pl.Items), service)
		}
		return nil

	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: playgraphctl playlists show NAME")
		}
		name := args[1]
		pl, ok := cfg.GetPlaylist(name)
		if !ok {
			return fmt.Errorf("playlist %q not found", name)
		}
		fmt.Printf("Playlist: %s\n", name)
		fmt.Printf("  Service: %s\n", pl.Service)
		fmt.Printf("  Graph kind: %s\n", pl.GraphKind())
		fmt.Printf("  Tracks: %d\n\n", len(pl.Items))
		for i, t := range pl.Items {
			fmt.Printf("  %d. %s\n", i+1, t.Title)
			fmt.Printf("     %s\n", t.URI)
		}
		return nil

	case "validate":
		if len(cfg.Playlists) == 0 {
			fmt.Println("No playlists configured")
			return nil
		}
		failed := 0
		for name, pl := range cfg.Playlists {
			if err := pl.Validate(); err != nil {
				fmt.Printf("✗ %s: %v\n", name, err)
				failed++
			} else {
				fmt.Printf("✓ %s\n", name)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d playlist(s) failed validation", failed)
		}
		fmt.Printf("\nAll %d playlist(s) valid\n", len(cfg.Playlists))
		return nil

	default:
		return fmt.Errorf("unknown playlists subcommand: %s", args[0])
	}
}

// runStatus queries a running playgraphd's health endpoint. The daemon's
// address is read from the resolved configuration's monitor section, since
// playgraphctl has no other channel into the daemon's in-memory state.
func runStatus(args []string) error {
	configPath := flagValue(args, "config", config.ConfigFilePath)
	jsonOutput := hasFlag(args, "json") || hasFlag(args, "j")

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	addr := cfg.Monitor.HealthAddr
	if addr == "" {
		addr = "127.0.0.1:9998"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", addr)) // #nosec G107 -- addr is from administrator-controlled configuration, not user input
	if err != nil {
		return fmt.Errorf("playgraphd not reachable at %s (is it running?): %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read daemon response: %w", err)
	}

	if jsonOutput {
		fmt.Println(string(body))
		return nil
	}

	var status health.Response
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("failed to parse daemon response: %w", err)
	}

	fmt.Println("Playgraph Daemon Status")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Printf("Overall: %s\n", status.Status)
	fmt.Printf("As of:   %s\n\n", status.Timestamp.Format(time.RFC3339))

	if len(status.Services) == 0 {
		fmt.Println("(no sessions running)")
		return nil
	}

	fmt.Println("Sessions:")
	for _, svc := range status.Services {
		healthMark := "healthy"
		if !svc.Healthy {
			healthMark = "unhealthy"
		}
		fmt.Printf("  %-20s state=%-12s %s  uptime=%s restarts=%d\n",
			svc.Name, svc.State, healthMark, svc.Uptime.Round(time.Second), svc.Restarts)
		if svc.Error != "" {
			fmt.Printf("    last error: %s\n", svc.Error)
		}
	}
	return nil
}

// runSession validates the named playlist exists, then drives the whole
// playgraphd service via systemctl. One daemon process supervises every
// configured session together, so there is no way to start or stop a single
// session's controller without restarting the process that hosts it; the
// session name is still required so an operator can't accidentally bounce
// the daemon while typo'ing a playlist that was never configured.
func runSession(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: playgraphctl session {start|stop|restart} NAME")
	}
	action, name := args[0], args[1]

	verbs := map[string]string{"start": "start", "stop": "stop", "restart": "restart"}
	gerunds := map[string]string{"start": "Starting", "stop": "Stopping", "restart": "Restarting"}
	systemctlVerb, ok := verbs[action]
	if !ok {
		return fmt.Errorf("unknown session subcommand: %s", action)
	}

	cfg, err := loadConfigOrDefault(config.ConfigFilePath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if _, ok := cfg.GetPlaylist(name); !ok {
		return fmt.Errorf("playlist %q is not configured", name)
	}

	fmt.Printf("Session %q is supervised by playgraphd alongside every other session.\n", name)
	fmt.Printf("%s the whole daemon to apply this.\n\n", gerunds[action])

	cmd := exec.Command("systemctl", systemctlVerb, "playgraphd") // #nosec G204 -- systemctlVerb is from a fixed map lookup above, not user input
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return err
	}

	if action == "stop" {
		return nil
	}
	return waitForSessionHealthy(cfg, name)
}

// waitForSessionHealthy polls the daemon's health endpoint with exponential
// backoff until the named session is reported healthy or the poll gives up,
// so "session start"/"session restart" tell the operator whether the daemon
// actually came back up rather than just trusting systemctl's exit code.
func waitForSessionHealthy(cfg *config.Config, name string) error {
	addr := cfg.Monitor.HealthAddr
	if addr == "" {
		addr = "127.0.0.1:9998"
	}
	url := fmt.Sprintf("http://%s/healthz", addr) // #nosec G107 -- addr is from administrator-controlled configuration, not user input

	b := backoff.New(200*time.Millisecond, 1*time.Second, 5)
	client := &http.Client{Timeout: 2 * time.Second}

	for {
		if svc, ok := fetchServiceInfo(client, url, name); ok {
			if svc.Healthy {
				fmt.Printf("Session %q is healthy (state=%s).\n", name, svc.State)
				return nil
			}
		}

		b.RecordFailure()
		if b.ShouldStop() {
			return fmt.Errorf("session %q did not report healthy after %d attempts", name, b.Attempts())
		}
		b.Wait()
	}
}

// fetchServiceInfo fetches the daemon's current health response and looks up
// the named session. The second return value is false if the daemon could
// not be reached or the session isn't present yet.
func fetchServiceInfo(client *http.Client, url, name string) (health.ServiceInfo, bool) {
	resp, err := client.Get(url)
	if err != nil {
		return health.ServiceInfo{}, false
	}
	defer func() { _ = resp.Body.Close() }()

	var status health.Response
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return health.ServiceInfo{}, false
	}
	for _, svc := range status.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return health.ServiceInfo{}, false
}

func runSetup(args []string) error {
	autoMode := hasFlag(args, "auto") || hasFlag(args, "y")

	fmt.Println("Playgraph Setup Wizard")
	fmt.Println("======================")
	fmt.Println()

	fmt.Println("Step 1: Configuration")
	if _, err := os.Stat(config.ConfigFilePath); err == nil {
		fmt.Printf("  [✓] Configuration already exists (%s)\n", config.ConfigFilePath)
	} else {
		if autoMode || promptYesNo("  Create default configuration?") {
			cfg := config.DefaultConfig()
			if err := os.MkdirAll(filepath.Dir(config.ConfigFilePath), 0750); err != nil { // #nosec G301 -- config dir needs to be readable
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := cfg.Save(config.ConfigFilePath); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Printf("  [✓] Configuration saved to %s\n", config.ConfigFilePath)
			fmt.Println("      Add playlists to it, then start playgraphd.")
		} else {
			fmt.Println("  [!] Skipping configuration creation")
		}
	}
	fmt.Println()

	fmt.Println("Step 2: Lock directory")
	lockDir := "/var/run/playgraph"
	if _, err := os.Stat(lockDir); err == nil {
		fmt.Printf("  [✓] Lock directory exists (%s)\n", lockDir)
	} else if autoMode || promptYesNo("  Create lock directory?") {
		if err := os.MkdirAll(lockDir, 0750); err != nil { // #nosec G301 -- lock dir needs to be traversable by the daemon user
			fmt.Printf("  [!] Failed to create lock directory: %v\n", err)
		} else {
			fmt.Printf("  [✓] Created %s\n", lockDir)
		}
	}
	fmt.Println()

	fmt.Println("Setup complete. Next steps:")
	fmt.Println("  1. Edit the configuration to add playlists")
	fmt.Println("  2. sudo systemctl enable --now playgraphd")
	fmt.Println("  3. playgraphctl status")
	return nil
}

func promptYesNo(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var response string
	_, _ = fmt.Scanln(&response)
	return strings.ToLower(response) == "y"
}

// runDiagnose runs the diagnostics suite at the given mode. playgraphctl
// runs outside the daemon process, so it has no SessionProvider to hand the
// runner; the graph-internal checks report "skipped" and only the
// configuration and ambient host checks run for real. Run playgraphd's own
// /healthz endpoint for live per-session state (see runStatus).
func runDiagnose(args []string, mode diagnostics.CheckMode) error {
	opts := diagnostics.DefaultOptions()
	opts.Mode = mode
	opts.ConfigPath = flagValue(args, "config", opts.ConfigPath)
	opts.Verbose = hasFlag(args, "verbose") || hasFlag(args, "v")

	runner := diagnostics.NewRunner(opts)
	report, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("diagnostics run failed: %w", err)
	}

	if hasFlag(args, "json") {
		data, err := report.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	diagnostics.PrintReport(os.Stdout, report)
	if !report.Healthy {
		return fmt.Errorf("diagnostics found critical issues")
	}
	return nil
}

// runTest exercises the same checks an operator cares about before flipping
// a playlist live: config validity, then a quick diagnostic pass.
func runTest(args []string) error {
	configPath := flagValue(args, "config", config.ConfigFilePath)

	fmt.Printf("Testing configuration: %s\n\n", configPath)

	fmt.Print("[1/2] Config syntax: ")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("FAILED\n      %v\n", err)
		return fmt.Errorf("config test failed: %w", err)
	}
	fmt.Println("OK")
	fmt.Printf("      %d playlist(s), default_service=%s\n", len(cfg.Playlists), cfg.DefaultService)

	fmt.Print("[2/2] Playlists: ")
	failed := 0
	for name, pl := range cfg.Playlists {
		if err := pl.Validate(); err != nil {
			failed++
			fmt.Printf("\n      ✗ %s: %v", name, err)
		}
	}
	if failed > 0 {
		fmt.Println()
		return fmt.Errorf("%d playlist(s) failed validation", failed)
	}
	fmt.Println("OK")

	fmt.Println("\nAll tests passed!")
	return nil
}

func runConfig(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: playgraphctl config {show|backup}")
	}
	configPath := flagValue(args[1:], "config", config.ConfigFilePath)

	switch args[0] {
	case "show":
		cfg, err := loadConfigOrDefault(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Printf("Configuration: %s\n\n", configPath)
		fmt.Printf("default_service: %s\n", cfg.DefaultService)
		fmt.Printf("playlists: %d\n", len(cfg.Playlists))
		fmt.Printf("session.queue_size: %d\n", cfg.Session.QueueSize)
		fmt.Printf("session.shutdown_timeout: %s\n", cfg.Session.ShutdownTimeout)
		fmt.Printf("monitor.enabled: %v\n", cfg.Monitor.Enabled)
		fmt.Printf("monitor.health_addr: %s\n", cfg.Monitor.HealthAddr)
		return nil

	case "backup":
		backupDir := config.GetBackupDir(configPath)
		path, err := config.BackupConfig(configPath, backupDir)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("✓ Backup created: %s\n", path)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func runMenu(args []string) error {
	m := menu.CreateMainMenu()
	return m.Display()
}
