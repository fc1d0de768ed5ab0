package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"macroblock/internal/config"
	"macroblock/internal/deps"
	"macroblock/internal/detector"
	"macroblock/internal/gateway"
	"macroblock/internal/history"
	"macroblock/internal/logging"
	"macroblock/internal/notifications"
)

// staleWorkMaxAge bounds how old an abandoned analysis scratch directory can
// be before startup cleanup removes it.
const staleWorkMaxAge = 24 * time.Hour

// Daemon coordinates the analysis engine, detector lifecycle, HTTP API, and
// optional intake monitor, and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *history.Store
	engine *gateway.Engine

	lockPath string
	lock     *flock.Flock

	api    *apiServer
	intake *intakeMonitor

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	ListenAddr    string
	HistoryDBPath string
	LockFilePath  string
	IntakeActive  bool
	Detectors     detector.RegistryHealth
	History       *history.Summary
	Dependencies  []deps.Status
}

// New constructs a daemon with initialized dependencies. The history store
// may be nil when persistence is disabled.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger, engine *gateway.Engine) (*Daemon, error) {
	if cfg == nil || logger == nil || engine == nil {
		return nil, errors.New("daemon requires config, logger, and engine")
	}

	lockPath := cfg.Daemon.LockPath
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		engine:   engine,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, loads detectors, and brings up the API
// server and intake monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another macroblock daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	cleanup := gateway.CleanStaleWork(d.cfg.Paths.WorkDir, staleWorkMaxAge, d.logger)
	if cleanup.Removed > 0 {
		d.logger.Info("removed stale analysis directories", logging.Int("count", cleanup.Removed))
	}

	if d.cfg.Detectors.LoadOnStart {
		results := d.engine.Registry().LoadAll(d.ctx)
		failed := 0
		for _, loaded := range results {
			if !loaded {
				failed++
			}
		}
		if failed > 0 {
			d.logger.Warn("some detectors failed to load",
				logging.Int("failed", failed),
				logging.Int("total", len(results)))
		}
	}

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.teardownLocked()
		return fmt.Errorf("init api server: %w", err)
	}
	d.api = api
	if err := d.api.start(d.ctx); err != nil {
		d.teardownLocked()
		return fmt.Errorf("start api server: %w", err)
	}

	d.intake = newIntakeMonitor(d.cfg, d.engine, d.logger)
	if d.intake != nil {
		if err := d.intake.Start(d.ctx); err != nil {
			d.api.stop()
			d.teardownLocked()
			return fmt.Errorf("start intake monitor: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("macroblock daemon started",
		logging.String("listen", d.api.addr()),
		logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) teardownLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

// Stop shuts down the API server and intake monitor, unloads detectors, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.intake != nil {
		d.intake.Stop()
		d.intake = nil
	}
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}

	unloadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	d.engine.Registry().UnloadAll(unloadCtx)
	cancel()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("macroblock daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Engine exposes the analysis engine for API handlers.
func (d *Daemon) Engine() *gateway.Engine {
	return d.engine
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		HistoryDBPath: d.cfg.DatabasePath(),
		LockFilePath:  d.lockPath,
		IntakeActive:  d.intake.Running(),
		Detectors:     d.engine.Registry().Health(),
		Dependencies:  deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
	if d.api != nil {
		status.ListenAddr = d.api.addr()
	}
	if d.store != nil {
		if summary, err := d.store.Stats(ctx); err == nil {
			status.History = &summary
		} else {
			d.logger.Warn("history stats unavailable", logging.Error(err))
		}
	}
	return status
}
