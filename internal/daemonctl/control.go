package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"macroblock/internal/api"
	"macroblock/internal/config"
	"macroblock/internal/gateway"
	"macroblock/internal/history"
	"macroblock/internal/logging"
	"macroblock/internal/preflight"
)

// DaemonBinary is the daemon executable launched by the CLI.
const DaemonBinary = "macroblockd"

const (
	healthProbeTimeout = 2 * time.Second
	statusQueryTimeout = 5 * time.Second
	pollInterval       = 200 * time.Millisecond
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// ResolveExecutable locates the daemon binary, preferring a sibling of the
// current executable over PATH lookup.
func ResolveExecutable() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), DaemonBinary)
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(DaemonBinary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", DaemonBinary, err)
	}
	return path, nil
}

// Launch starts a detached macroblockd process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfgPath := strings.TrimSpace(opts.ConfigPath); cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForAPI polls daemon liveness until it answers or the timeout elapses.
func WaitForAPI(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		err := probeHealth(ctx, client)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless its API is already reachable.
func EnsureStarted(ctx context.Context, client *api.Client, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if probeHealth(ctx, client) == nil {
		return StartResult{State: StartStateAlreadyRunning, PID: fetchPID(ctx, client)}, nil
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForAPI(ctx, client, waitTimeout); err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true, PID: fetchPID(ctx, client)}, nil
}

// StopAndTerminate asks the daemon process to exit via SIGTERM and escalates
// to SIGKILL if it is still alive after gracePeriod.
func StopAndTerminate(ctx context.Context, client *api.Client, gracePeriod time.Duration) (StopResult, error) {
	pid := fetchPID(ctx, client)
	if pid <= 0 {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to stop current process (pid %d)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if processGone(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	if waitForExit(ctx, proc, gracePeriod) {
		return result, nil
	}
	if err := proc.Kill(); err != nil && !processGone(err) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(ctx context.Context, client *api.Client, executablePath string, opts LaunchOptions, gracePeriod, waitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(ctx, client, gracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(ctx, client, executablePath, opts, waitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for detectors, history stats, and dependency checks.
func BuildStatusSnapshot(ctx context.Context, client *api.Client, cfg *config.Config) (*api.DaemonStatus, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}

	status := &api.DaemonStatus{}
	if client != nil {
		queryCtx, cancel := context.WithTimeout(ctx, statusQueryTimeout)
		resp, err := client.Status(queryCtx)
		cancel()
		if err == nil && resp != nil {
			status = resp
		}
	}

	if !status.Running {
		status.ListenAddr = cfg.Daemon.Listen
		status.HistoryDBPath = cfg.DatabasePath()
		status.LockFilePath = cfg.Daemon.LockPath
		if status.Detectors.RegisteredCount == 0 {
			// An unloaded registry still reports what is registered, which
			// is exactly the offline view.
			if registry, err := gateway.BuildRegistry(cfg, logging.NewNop()); err == nil && registry != nil {
				status.Detectors = api.FromRegistryHealth(registry.Health())
			}
		}
		if status.History == nil && cfg.History.Enabled {
			queryCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
			if store, openErr := history.Open(cfg); openErr == nil {
				if stats, statsErr := store.Stats(queryCtx); statsErr == nil {
					summary := api.FromHistorySummary(stats)
					status.History = &summary
				}
				_ = store.Close()
			}
			cancel()
		}
	}

	if len(status.Dependencies) == 0 {
		status.Dependencies = ResolveDependencies(ctx, cfg)
	}
	for i := range status.Dependencies {
		if strings.TrimSpace(status.Dependencies[i].Severity) != "" {
			continue
		}
		status.Dependencies[i].Severity = dependencySeverity(status.Dependencies[i])
	}

	status.SystemChecks = BuildSystemChecks(cfg, status)
	status.DirectoryChecks = BuildDirectoryChecks(cfg)
	summary := BuildDependencySummary(status.Dependencies)
	status.DependencySummary = &summary
	return status, nil
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(ctx context.Context, cfg *config.Config) []api.DependencyStatus {
	if cfg == nil {
		return nil
	}

	checks := preflight.CheckSystemDeps(ctx, cfg)
	statuses := make([]api.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		status := api.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		}
		status.Severity = dependencySeverity(status)
		statuses = append(statuses, status)
	}
	return statuses
}

func dependencySeverity(dep api.DependencyStatus) string {
	if dep.Available {
		return "ok"
	}
	if dep.Optional {
		return "warn"
	}
	return "error"
}

// BuildSystemChecks resolves status lines that combine runtime state and
// config checks.
func BuildSystemChecks(cfg *config.Config, status *api.DaemonStatus) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 5)
	running := status != nil && status.Running

	if running {
		lines = append(lines, api.StatusLine{Label: "Macroblock", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Macroblock", Severity: "warn", Detail: "Not running (run `macroblock daemon start`)"})
	}

	lines = append(lines, detectorStatusLine(status, running))

	switch {
	case !cfg.History.Enabled:
		lines = append(lines, api.StatusLine{Label: "History", Severity: "info", Detail: "Disabled"})
	case status != nil && status.History != nil:
		lines = append(lines, api.StatusLine{Label: "History", Severity: "ok", Detail: fmt.Sprintf("%d analyses recorded", status.History.Total)})
	default:
		lines = append(lines, api.StatusLine{Label: "History", Severity: "warn", Detail: "Unavailable"})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"})
	}

	switch {
	case status != nil && status.IntakeActive:
		lines = append(lines, api.StatusLine{Label: "Evidence Intake", Severity: "ok", Detail: "Watching " + cfg.Intake.MountRoot})
	case !cfg.Intake.Enabled:
		lines = append(lines, api.StatusLine{Label: "Evidence Intake", Severity: "info", Detail: "Disabled"})
	case !running:
		lines = append(lines, api.StatusLine{Label: "Evidence Intake", Severity: "info", Detail: "Inactive (daemon not running)"})
	default:
		lines = append(lines, api.StatusLine{Label: "Evidence Intake", Severity: "warn", Detail: "Netlink unavailable (attach events will not be seen)"})
	}

	return lines
}

func detectorStatusLine(status *api.DaemonStatus, running bool) api.StatusLine {
	line := api.StatusLine{Label: "Detectors"}
	if status == nil || status.Detectors.RegisteredCount == 0 {
		line.Severity = "warn"
		line.Detail = "None registered"
		return line
	}

	loaded := 0
	for _, det := range status.Detectors.Detectors {
		if det.Loaded {
			loaded++
		}
	}
	line.Detail = fmt.Sprintf("%d/%d loaded", loaded, status.Detectors.RegisteredCount)
	switch {
	case loaded == status.Detectors.RegisteredCount:
		line.Severity = "ok"
	case loaded > 0:
		line.Severity = "warn"
	case !running:
		line.Severity = "info"
		line.Detail = fmt.Sprintf("%d registered (daemon not running)", status.Detectors.RegisteredCount)
	default:
		line.Severity = "error"
	}
	return line
}

// BuildDirectoryChecks resolves configured directory readiness.
func BuildDirectoryChecks(cfg *config.Config) []api.StatusLine {
	type target struct {
		label    string
		path     string
		optional bool
	}
	dirs := []target{
		{label: "Work", path: cfg.Paths.WorkDir},
		{label: "Logs", path: cfg.Paths.LogDir},
		{label: "Manifests", path: cfg.Paths.ManifestDir, optional: true},
	}
	if cfg.Intake.Enabled && strings.TrimSpace(cfg.Intake.MountRoot) != "" {
		dirs = append(dirs, target{label: "Intake root", path: cfg.Intake.MountRoot})
	}

	lines := make([]api.StatusLine, 0, len(dirs))
	for _, dir := range dirs {
		if dir.optional {
			if _, err := os.Stat(dir.path); errors.Is(err, os.ErrNotExist) {
				lines = append(lines, api.StatusLine{Label: dir.label, Severity: "info", Detail: "Not present"})
				continue
			}
		}
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{Label: dir.label, Severity: severity, Detail: result.Detail})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(dependencies []api.DependencyStatus) api.DependencySummary {
	if len(dependencies) == 0 {
		return api.DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range dependencies {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(dependencies) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(dependencies), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(dependencies))
	}

	return api.DependencySummary{
		Total:           len(dependencies),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

func probeHealth(ctx context.Context, client *api.Client) error {
	if client == nil {
		return errors.New("no daemon client")
	}
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	return client.Health(probeCtx)
}

func fetchPID(ctx context.Context, client *api.Client) int {
	if client == nil {
		return 0
	}
	queryCtx, cancel := context.WithTimeout(ctx, statusQueryTimeout)
	defer cancel()
	status, err := client.Status(queryCtx)
	if err != nil || status == nil {
		return 0
	}
	return status.PID
}

// waitForExit polls the process with signal 0 until it exits or the grace
// period elapses.
func waitForExit(ctx context.Context, proc *os.Process, gracePeriod time.Duration) bool {
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
	return false
}

func processGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}
