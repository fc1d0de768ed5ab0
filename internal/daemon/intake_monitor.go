package daemon

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/pilebones/go-udev/netlink"

	"macroblock/internal/config"
	"macroblock/internal/gateway"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/notifications"
)

// mountResolveAttempts bounds how often the monitor re-checks for an
// automounter mount after the settle delay.
const mountResolveAttempts = 3

type commandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execCommandRunner struct{}

func (execCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.Output()
}

// intakeMonitor listens for udev netlink events and sweeps newly attached
// removable storage through the analysis engine. This eliminates the need
// for udev rules that call the CLI as root.
type intakeMonitor struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *gateway.Engine
	notifier notifications.Service
	runner   commandRunner

	mountRoot string
	settle    time.Duration

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	busy    bool
}

// newIntakeMonitor creates a monitor for removable evidence media. Returns
// nil when intake is disabled or no mount root is configured.
func newIntakeMonitor(cfg *config.Config, engine *gateway.Engine, logger *slog.Logger) *intakeMonitor {
	if cfg == nil || engine == nil || !cfg.Intake.Enabled {
		return nil
	}
	root := strings.TrimSpace(cfg.Intake.MountRoot)
	if root == "" {
		return nil
	}

	settle := time.Duration(cfg.Intake.SettleSeconds) * time.Second
	if settle <= 0 {
		settle = 5 * time.Second
	}

	return &intakeMonitor{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "intake-monitor"),
		engine:    engine,
		notifier:  notifications.NewService(cfg),
		runner:    execCommandRunner{},
		mountRoot: root,
		settle:    settle,
	}
}

// Start begins listening for udev netlink events.
func (m *intakeMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; evidence intake will rely on manual scans",
			logging.Error(err))
		return nil // Non-fatal - the daemon can still serve API scans
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	// Pass quit channel to goroutine to avoid reading m.quit without lock
	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("intake monitor started",
		logging.String("mount_root", m.mountRoot),
		logging.Duration("settle", m.settle))
	return nil
}

// Stop shuts down the intake monitor.
func (m *intakeMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("intake monitor stopped")
}

// Running reports whether the intake monitor is active.
func (m *intakeMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// monitorLoop reads netlink events and processes partition attachments.
func (m *intakeMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("intake monitor error", logging.Error(err))
		}
	}
}

// buildMatcher creates a matcher for removable partition attachments.
// Matches: SUBSYSTEM=block, DEVTYPE=partition, ACTION=add
func (m *intakeMonitor) buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
		},
	})
	return rules
}

// handleEvent processes a matched uevent.
func (m *intakeMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj))
		return
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		m.logger.Debug("intake sweep already in progress, ignoring event",
			logging.String("device", devname))
		return
	}
	m.busy = true
	m.mu.Unlock()

	m.logger.Info("evidence media attached", logging.String("device", devname))

	go func() {
		defer func() {
			m.mu.Lock()
			m.busy = false
			m.mu.Unlock()
		}()
		m.processDevice(ctx, devname)
	}()
}

// processDevice waits for the automounter, resolves the mount point, and
// sweeps it through the engine.
func (m *intakeMonitor) processDevice(ctx context.Context, devname string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.settle):
	}

	mount, err := m.resolveMount(ctx, devname)
	if err != nil {
		m.logger.Warn("failed to resolve mount point",
			logging.Error(err),
			logging.String("device", devname))
		return
	}
	if mount == "" {
		m.logger.Debug("device not mounted under intake root, ignoring",
			logging.String("device", devname),
			logging.String("mount_root", m.mountRoot))
		return
	}

	if err := m.Sweep(ctx, mount); err != nil && !isContextErr(err) {
		m.logger.Warn("intake sweep failed",
			logging.Error(err),
			logging.String("mount", mount))
	}
}

// resolveMount asks lsblk where the partition landed. The automounter may
// lag the uevent, so the lookup retries briefly.
func (m *intakeMonitor) resolveMount(ctx context.Context, devname string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < mountResolveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
		out, err := m.runner.Output(ctx, "lsblk", "-no", "MOUNTPOINT", devname)
		if err != nil {
			lastErr = err
			continue
		}
		mount := strings.TrimSpace(string(out))
		if mount == "" {
			continue
		}
		if !strings.HasPrefix(mount, m.mountRoot) {
			return "", nil
		}
		return mount, nil
	}
	return "", lastErr
}

// Sweep walks a mounted directory and runs every supported media file
// through the analysis engine.
func (m *intakeMonitor) Sweep(ctx context.Context, root string) error {
	files, err := collectMediaFiles(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		m.logger.Info("no supported media on attached device", logging.String("mount", root))
		return nil
	}

	start := time.Now()
	if err := m.notifier.NotifyIntakeStarted(ctx, root, len(files)); err != nil {
		m.logger.Warn("intake start notification failed", logging.Error(err))
	}
	m.logger.Info("sweeping attached media",
		logging.String("mount", root),
		logging.Int("files", len(files)))

	scanned := 0
	flagged := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := m.engine.AnalyzePath(ctx, path)
		if err != nil {
			if isContextErr(err) {
				return err
			}
			m.logger.Warn("intake analysis failed",
				logging.Error(err),
				logging.String("path", path))
			continue
		}
		scanned++
		if result.IsFake() {
			flagged++
		}
	}

	if err := m.notifier.NotifyIntakeCompleted(ctx, scanned, flagged, time.Since(start)); err != nil {
		m.logger.Warn("intake completion notification failed", logging.Error(err))
	}
	m.logger.Info("intake sweep finished",
		logging.String("mount", root),
		logging.Int("scanned", scanned),
		logging.Int("flagged", flagged),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

// collectMediaFiles gathers supported media paths under root in walk order,
// skipping hidden directories.
func collectMediaFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if media.KindFromExtension(path) == media.KindUnknown {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/dev/") {
			return "/dev/" + devname
		}
		return devname
	}

	// Fall back to DEVPATH (e.g. /devices/pci.../block/sdb/sdb1)
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
