package daemon_test

import (
	"context"
	"net/http"
	"testing"

	"macroblock/internal/daemon"
	"macroblock/internal/detector"
	"macroblock/internal/gateway"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/testsupport"
)

type noopDetector struct {
	name string
}

func (d noopDetector) Name() string                 { return d.name }
func (d noopDetector) Modality() media.Kind         { return media.KindImage }
func (d noopDetector) Load(context.Context) error   { return nil }
func (d noopDetector) Unload(context.Context) error { return nil }

func (d noopDetector) Infer(context.Context, detector.Item) (score.Detection, error) {
	return score.Detection{DetectorName: d.name, FakeProbability: 0.5, Confidence: 0.5, IsFake: true}, nil
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry := detector.NewRegistry(logging.NewNop(), cfg.DetectorTimeout())
	registry.Register(noopDetector{name: "stub"})
	engine := gateway.New(cfg, registry, store, logging.NewNop())

	d, err := daemon.New(cfg, store, logging.NewNop(), engine)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.ListenAddr == "" {
		t.Fatal("expected a bound listen address")
	}

	resp, err := http.Get("http://" + status.ListenAddr + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}

	// load_on_start defaults on, so the stub is loaded and readiness holds.
	ready, err := http.Get("http://" + status.ListenAddr + "/readyz")
	if err != nil {
		t.Fatalf("readyz request failed: %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from readyz, got %d", ready.StatusCode)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockBlocksSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry := detector.NewRegistry(logging.NewNop(), cfg.DetectorTimeout())
	engine := gateway.New(cfg, registry, store, logging.NewNop())

	first, err := daemon.New(cfg, store, logging.NewNop(), engine)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		first.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cfg2 := *cfg
	cfg2.Daemon.Listen = "127.0.0.1:0"
	second, err := daemon.New(&cfg2, nil, logging.NewNop(), engine)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance start to fail while lock is held")
	}
}

func TestDaemonTestNotificationUnconfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := detector.NewRegistry(logging.NewNop(), cfg.DetectorTimeout())
	engine := gateway.New(cfg, registry, nil, logging.NewNop())

	d, err := daemon.New(cfg, nil, logging.NewNop(), engine)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	sent, message, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Fatal("expected sent=false without a topic")
	}
	if message == "" {
		t.Fatal("expected explanatory message")
	}
}
