// Command macroblockd runs the macroblock analysis daemon: it loads the
// configuration, assembles the detector registry and gateway engine, and
// serves the HTTP API until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"macroblock/internal/config"
	"macroblock/internal/daemon"
	"macroblock/internal/gateway"
	"macroblock/internal/history"
	"macroblock/internal/logging"
	"macroblock/internal/preflight"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("macroblockd: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// Failed checks are advisory at startup; the daemon still comes up so
	// operators can inspect status and fix the environment.
	for _, failure := range preflight.Failures(preflight.RunAll(ctx, cfg)) {
		logger.Warn("preflight check failed",
			logging.String("check", failure.Name),
			logging.String("detail", failure.Detail))
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
	}

	registry, err := gateway.BuildRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("build detector registry: %w", err)
	}
	engine := gateway.New(cfg, registry, store, logger)

	d, err := daemon.New(cfg, store, logger, engine)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-ctx.Done()
	logger.Info("macroblock daemon shutting down")
	return nil
}
