// Package diagnostics runs a registry of health checks against a running
// playgraphd daemon and its host, covering both graph-internal invariants
// (ledger emptiness, live-handle counts, event queue depth, tunnel
// enable/disable symmetry) and the ambient system resources a long-running
// unattended daemon depends on.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// CheckResult represents the result of a single diagnostic check.
type CheckResult struct {
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Status      CheckStatus   `json:"status"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Duration    time.Duration `json:"duration"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// CheckStatus indicates the result of a check.
type CheckStatus string

const (
	StatusOK       CheckStatus = "OK"
	StatusWarning  CheckStatus = "WARNING"
	StatusCritical CheckStatus = "CRITICAL"
	StatusSkipped  CheckStatus = "SKIPPED"
	StatusError    CheckStatus = "ERROR"
)

// DiagnosticReport contains results from all diagnostic checks.
type DiagnosticReport struct {
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	SystemInfo *SystemInfo   `json:"system_info"`
	Checks     []CheckResult `json:"checks"`
	Summary    *Summary      `json:"summary"`
	Healthy    bool          `json:"healthy"`
}

// SystemInfo contains basic system information.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Kernel       string `json:"kernel"`
	Architecture string `json:"architecture"`
	CPUs         int    `json:"cpus"`
	Memory       int64  `json:"memory_bytes"`
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
}

// Summary contains a summary of check results.
type Summary struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	Skipped  int `json:"skipped"`
	Error    int `json:"error"`
}

// CheckMode determines which checks to run.
type CheckMode string

const (
	ModeQuick CheckMode = "quick" // Essential checks only
	ModeFull  CheckMode = "full"  // All checks (default)
	ModeDebug CheckMode = "debug" // All checks with verbose output
)

// Diagnostic thresholds, configurable for different deployment scenarios.
const (
	// LogSizeWarningBytes is the threshold for warning about log file sizes (100MB).
	LogSizeWarningBytes = 100 * 1024 * 1024

	// DiskUsageCriticalPercent is the disk usage percentage that triggers critical status.
	DiskUsageCriticalPercent = 95

	// DiskUsageWarningPercent is the disk usage percentage that triggers warning status.
	DiskUsageWarningPercent = 85

	// FDUsageCriticalPercent is the file descriptor usage percentage that triggers critical status.
	FDUsageCriticalPercent = 80

	// FDUsageWarningPercent is the file descriptor usage percentage that triggers warning status.
	FDUsageWarningPercent = 50

	// MemoryUsageCriticalPercent is the memory usage percentage that triggers critical status.
	MemoryUsageCriticalPercent = 90

	// MemoryUsageWarningPercent is the memory usage percentage that triggers warning status.
	MemoryUsageWarningPercent = 75

	// QueueDepthWarningPercent is the fraction of a session's event queue
	// capacity that triggers a warning (a queue filling up means the
	// controller's dispatch loop is falling behind its event producers).
	QueueDepthWarningPercent = 75
)

// SessionInfo is the subset of one playback session's internal state a
// diagnostic run inspects. The daemon's session registry supplies these by
// reading its controllers; diagnostics never imports internal/controller
// directly, so it stays usable against any future host that can produce
// this shape.
type SessionInfo struct {
	Name                 string
	State                string
	HandleCount          int
	ExpectedHandleCount  int
	LedgerEmpty          bool
	TransitionLedgerLen  int
	PortLedgerLen        int
	QueueDepth           int
	QueueCapacity        int
}

// SessionProvider supplies the live sessions a diagnostic run should
// inspect. The daemon implements this over its running controllers.
type SessionProvider interface {
	Sessions() []SessionInfo
}

// steadyStates are the states in which a session's expected-transition
// ledgers must be empty and its live-handle count must match the pipeline
// length exactly; mid-transition composite substates are excluded since a
// ledger is expected to be non-empty while a multi-step operation is still
// in flight.
var steadyStates = map[string]bool{
	"inited":    true,
	"loaded":    true,
	"executing": true,
	"pause":     true,
	"unloaded":  true,
}

// Options configures the diagnostic run.
type Options struct {
	Mode       CheckMode
	ConfigPath string
	LogDir     string
	LockDir    string
	Sessions   SessionProvider
	Output     io.Writer
	Verbose    bool
}

// DefaultOptions returns default diagnostic options.
func DefaultOptions() Options {
	return Options{
		Mode:       ModeFull,
		ConfigPath: "/etc/playgraph/config.yaml",
		LogDir:     "/var/log/playgraph",
		LockDir:    "/var/run/playgraph",
		Output:     os.Stdout,
		Verbose:    false,
	}
}

// Runner executes diagnostic checks.
type Runner struct {
	opts Options
}

// NewRunner creates a new diagnostic runner.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Run executes all diagnostic checks and returns a report.
func (r *Runner) Run(ctx context.Context) (*DiagnosticReport, error) {
	start := time.Now()

	report := &DiagnosticReport{
		Timestamp:  start,
		SystemInfo: r.collectSystemInfo(),
		Summary:    &Summary{},
	}

	checks := r.getChecks()

	for _, check := range checks {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
			result := check(ctx)
			report.Checks = append(report.Checks, result)

			report.Summary.Total++
			switch result.Status {
			case StatusOK:
				report.Summary.OK++
			case StatusWarning:
				report.Summary.Warning++
			case StatusCritical:
				report.Summary.Critical++
			case StatusSkipped:
				report.Summary.Skipped++
			case StatusError:
				report.Summary.Error++
			}
		}
	}

	report.Duration = time.Since(start)
	report.Healthy = report.Summary.Critical == 0 && report.Summary.Error == 0

	return report, nil
}

// getChecks returns the checks to run based on mode.
func (r *Runner) getChecks() []func(context.Context) CheckResult {
	quickChecks := []func(context.Context) CheckResult{
		r.checkLedgerEmptiness,
		r.checkLiveHandleCount,
		r.checkConfig,
	}

	if r.opts.Mode == ModeQuick {
		return quickChecks
	}

	return []func(context.Context) CheckResult{
		// Graph-internal invariants (spec.md §8)
		r.checkLedgerEmptiness,
		r.checkLiveHandleCount,
		r.checkEventQueueDepth,
		r.checkTunnelSymmetry,
		// Daemon-level configuration and on-disk state
		r.checkConfig,
		r.checkLockDir,
		r.checkLogFiles,
		// Ambient host resources
		r.checkDiskSpace,
		r.checkFileDescriptors,
		r.checkMemory,
	}
}

// collectSystemInfo gathers basic system information.
func (r *Runner) collectSystemInfo() *SystemInfo {
	info := &SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}

	if data, err := os.ReadFile("/proc/version"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.Kernel = parts[2]
		}
	}

	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemTotal:") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
						info.Memory = kb * 1024
					}
				}
				break
			}
		}
	}

	if data, err := os.ReadFile("/proc/uptime"); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) >= 1 {
			if secs, err := strconv.ParseFloat(fields[0], 64); err == nil {
				d := time.Duration(secs) * time.Second
				info.Uptime = formatDuration(d)
			}
		}
	}

	return info
}

func (r *Runner) sessions() []SessionInfo {
	if r.opts.Sessions == nil {
		return nil
	}
	return r.opts.Sessions.Sessions()
}

// Graph-internal checks

func (r *Runner) checkLedgerEmptiness(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Ledger Emptiness", Category: "Graph"}

	sessions := r.sessions()
	if len(sessions) == 0 {
		result.Status = StatusSkipped
		result.Message = "No sessions to inspect"
		result.Duration = time.Since(start)
		return result
	}

	var stuck []string
	for _, s := range sessions {
		if steadyStates[s.State] && !s.LedgerEmpty {
			stuck = append(stuck, fmt.Sprintf("%s (state=%s, transitions=%d, ports=%d)",
				s.Name, s.State, s.TransitionLedgerLen, s.PortLedgerLen))
		}
	}

	if len(stuck) > 0 {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("%d session(s) with a non-empty ledger in a steady state", len(stuck))
		result.Details = strings.Join(stuck, "; ")
		result.Suggestions = append(result.Suggestions, "Inspect the session's controller logs for a dropped or unmatched framework event")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Ledgers clear for all %d session(s)", len(sessions))
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkLiveHandleCount(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Live Handle Count", Category: "Graph"}

	sessions := r.sessions()
	if len(sessions) == 0 {
		result.Status = StatusSkipped
		result.Message = "No sessions to inspect"
		result.Duration = time.Since(start)
		return result
	}

	var mismatched []string
	for _, s := range sessions {
		if !steadyStates[s.State] {
			continue // pipeline is mid-assembly/mid-teardown, counts expected to differ
		}
		if s.State == "unloaded" || s.State == "inited" {
			if s.HandleCount != 0 {
				mismatched = append(mismatched, fmt.Sprintf("%s (state=%s, handles=%d, want 0)", s.Name, s.State, s.HandleCount))
			}
			continue
		}
		if s.HandleCount != s.ExpectedHandleCount {
			mismatched = append(mismatched, fmt.Sprintf("%s (state=%s, handles=%d, want %d)",
				s.Name, s.State, s.HandleCount, s.ExpectedHandleCount))
		}
	}

	if len(mismatched) > 0 {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("%d session(s) with live-handle count mismatch", len(mismatched))
		result.Details = strings.Join(mismatched, "; ")
		result.Suggestions = append(result.Suggestions, "A leaked or prematurely freed component handle breaks teardown symmetry")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Handle counts match configured pipeline length for all %d session(s)", len(sessions))
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkEventQueueDepth(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Event Queue Depth", Category: "Graph"}

	sessions := r.sessions()
	if len(sessions) == 0 {
		result.Status = StatusSkipped
		result.Message = "No sessions to inspect"
		result.Duration = time.Since(start)
		return result
	}

	var full []string
	for _, s := range sessions {
		if s.QueueCapacity == 0 {
			continue
		}
		pct := float64(s.QueueDepth) / float64(s.QueueCapacity) * 100
		if pct > QueueDepthWarningPercent {
			full = append(full, fmt.Sprintf("%s (%d/%d, %.0f%%)", s.Name, s.QueueDepth, s.QueueCapacity, pct))
		}
	}

	if len(full) > 0 {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d session(s) with a filling event queue", len(full))
		result.Details = strings.Join(full, "; ")
		result.Suggestions = append(result.Suggestions, "The dispatch loop may be falling behind framework callbacks; check for a blocked Run goroutine")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Event queues healthy for all %d session(s)", len(sessions))
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkTunnelSymmetry(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Tunnel Symmetry", Category: "Graph"}

	sessions := r.sessions()
	if len(sessions) == 0 {
		result.Status = StatusSkipped
		result.Message = "No sessions to inspect"
		result.Duration = time.Since(start)
		return result
	}

	var asymmetric []string
	for _, s := range sessions {
		if steadyStates[s.State] && s.PortLedgerLen != 0 {
			asymmetric = append(asymmetric, fmt.Sprintf("%s (state=%s, outstanding=%d)", s.Name, s.State, s.PortLedgerLen))
		}
	}

	if len(asymmetric) > 0 {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("%d session(s) with an outstanding port-transition expectation", len(asymmetric))
		result.Details = strings.Join(asymmetric, "; ")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Tunnel enable/disable symmetry holds for all %d session(s)", len(sessions))
	}

	result.Duration = time.Since(start)
	return result
}

// Daemon-level and ambient checks

func (r *Runner) checkConfig(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Configuration", Category: "Config"}

	if _, err := os.Stat(r.opts.ConfigPath); os.IsNotExist(err) {
		result.Status = StatusWarning
		result.Message = "Configuration file not found"
		result.Details = r.opts.ConfigPath
		result.Suggestions = append(result.Suggestions, "Run: playgraphctl config init")
	} else {
		result.Status = StatusOK
		result.Message = "Configuration file exists"
		result.Details = r.opts.ConfigPath
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkLockDir(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Lock Directory", Category: "System"}

	lockDir := r.opts.LockDir
	if lockDir == "" {
		lockDir = DefaultOptions().LockDir
	}

	if info, err := os.Stat(lockDir); os.IsNotExist(err) {
		result.Status = StatusOK
		result.Message = "Lock directory will be created on first run"
	} else if !info.IsDir() {
		result.Status = StatusCritical
		result.Message = "Lock path exists but is not a directory"
	} else {
		result.Status = StatusOK
		result.Message = "Lock directory exists"

		entries, _ := os.ReadDir(lockDir)
		locks := 0
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".lock") {
				locks++
			}
		}
		if locks > 0 {
			result.Details = fmt.Sprintf("%d active session lock(s)", locks)
		}
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkLogFiles(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Log Files", Category: "System"}

	if _, err := os.Stat(r.opts.LogDir); os.IsNotExist(err) {
		result.Status = StatusOK
		result.Message = "Log directory will be created on first run"
		result.Duration = time.Since(start)
		return result
	}

	var totalSize int64
	_ = filepath.Walk(r.opts.LogDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if totalSize > LogSizeWarningBytes {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Log directory size: %s", formatBytes(totalSize))
		result.Suggestions = append(result.Suggestions, "Consider tightening the log rotation retention")
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Log directory size: %s", formatBytes(totalSize))
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkDiskSpace(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Disk Space", Category: "Resources"}

	var stat syscall.Statfs_t
	if err := syscall.Statfs("/", &stat); err != nil {
		result.Status = StatusError
		result.Message = "Failed to check disk space"
		result.Duration = time.Since(start)
		return result
	}

	// #nosec G115 -- Bsize is always positive on Linux filesystems
	available := stat.Bavail * uint64(stat.Bsize)
	// #nosec G115 -- Bsize is always positive on Linux filesystems
	total := stat.Blocks * uint64(stat.Bsize)
	usedPercent := 100.0 - (float64(available)/float64(total))*100.0

	if usedPercent > DiskUsageCriticalPercent {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("Disk usage critical: %.1f%%", usedPercent)
		result.Suggestions = append(result.Suggestions, "Free up disk space")
	} else if usedPercent > DiskUsageWarningPercent {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Disk usage high: %.1f%%", usedPercent)
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Disk usage: %.1f%% (%.1f GB available)", usedPercent, float64(available)/(1024*1024*1024))
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkFileDescriptors(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "File Descriptors", Category: "Resources"}

	data, err := os.ReadFile("/proc/sys/fs/file-nr")
	if err != nil {
		result.Status = StatusError
		result.Message = "Failed to read file descriptor info"
		result.Duration = time.Since(start)
		return result
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		result.Status = StatusError
		result.Message = "Invalid file-nr format"
		result.Duration = time.Since(start)
		return result
	}

	used, _ := strconv.ParseInt(fields[0], 10, 64)
	max, _ := strconv.ParseInt(fields[2], 10, 64)
	usedPercent := float64(used) / float64(max) * 100

	if usedPercent > FDUsageCriticalPercent {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("FD usage critical: %.1f%% (%d/%d)", usedPercent, used, max)
	} else if usedPercent > FDUsageWarningPercent {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("FD usage elevated: %.1f%% (%d/%d)", usedPercent, used, max)
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("FD usage normal: %.1f%% (%d/%d)", usedPercent, used, max)
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) checkMemory(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Memory", Category: "Resources"}

	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		result.Status = StatusError
		result.Message = "Failed to read memory info"
		result.Duration = time.Since(start)
		return result
	}

	var total, available int64
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				total, _ = strconv.ParseInt(fields[1], 10, 64)
				total *= 1024
			}
		} else if strings.HasPrefix(line, "MemAvailable:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				available, _ = strconv.ParseInt(fields[1], 10, 64)
				available *= 1024
			}
		}
	}

	usedPercent := 100.0 - (float64(available)/float64(total))*100.0

	if usedPercent > MemoryUsageCriticalPercent {
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("Memory usage critical: %.1f%%", usedPercent)
	} else if usedPercent > MemoryUsageWarningPercent {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Memory usage elevated: %.1f%%", usedPercent)
	} else {
		result.Status = StatusOK
		result.Message = fmt.Sprintf("Memory usage: %.1f%% (%s available)", usedPercent, formatBytes(available))
	}

	result.Duration = time.Since(start)
	return result
}

// Helper functions

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// PrintReport prints a formatted diagnostic report.
func PrintReport(w io.Writer, report *DiagnosticReport) {
	_, _ = fmt.Fprintf(w, "Playgraph Diagnostics Report\n")
	_, _ = fmt.Fprintf(w, "=============================\n\n")

	_, _ = fmt.Fprintf(w, "System: %s (%s/%s)\n", report.SystemInfo.Hostname, report.SystemInfo.OS, report.SystemInfo.Architecture)
	_, _ = fmt.Fprintf(w, "Kernel: %s\n", report.SystemInfo.Kernel)
	_, _ = fmt.Fprintf(w, "Uptime: %s\n", report.SystemInfo.Uptime)
	_, _ = fmt.Fprintf(w, "Time: %s\n\n", report.Timestamp.Format(time.RFC3339))

	categories := make(map[string][]CheckResult)
	for _, check := range report.Checks {
		categories[check.Category] = append(categories[check.Category], check)
	}

	for category, checks := range categories {
		_, _ = fmt.Fprintf(w, "\n%s\n%s\n", category, strings.Repeat("-", len(category)))
		for _, check := range checks {
			status := "✓"
			switch check.Status {
			case StatusWarning:
				status = "⚠"
			case StatusCritical:
				status = "✗"
			case StatusError:
				status = "!"
			case StatusSkipped:
				status = "○"
			}
			_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", status, check.Name, check.Message)
			if check.Details != "" {
				_, _ = fmt.Fprintf(w, "    %s\n", check.Details)
			}
			for _, suggestion := range check.Suggestions {
				_, _ = fmt.Fprintf(w, "    → %s\n", suggestion)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\n\nSummary\n-------\n")
	_, _ = fmt.Fprintf(w, "Total: %d | OK: %d | Warning: %d | Critical: %d | Error: %d | Skipped: %d\n",
		report.Summary.Total, report.Summary.OK, report.Summary.Warning,
		report.Summary.Critical, report.Summary.Error, report.Summary.Skipped)
	_, _ = fmt.Fprintf(w, "Duration: %v\n", report.Duration)

	if report.Healthy {
		_, _ = fmt.Fprintf(w, "\nSystem Status: HEALTHY\n")
	} else {
		_, _ = fmt.Fprintf(w, "\nSystem Status: ISSUES DETECTED\n")
	}
}

// ToJSON converts the report to JSON format.
func (r *DiagnosticReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
