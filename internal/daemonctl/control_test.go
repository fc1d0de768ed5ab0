package daemonctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"macroblock/internal/api"
	"macroblock/internal/daemonctl"
	"macroblock/internal/testsupport"
)

func fakeDaemon(t *testing.T, pid int) *api.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: pid})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return api.NewClient(server.URL)
}

func unreachableClient(t *testing.T) *api.Client {
	t.Helper()
	server := httptest.NewServer(http.NewServeMux())
	server.Close()
	return api.NewClient(server.URL)
}

func TestEnsureStartedAlreadyRunning(t *testing.T) {
	client := fakeDaemon(t, 999001)

	// A bogus executable path proves no launch is attempted.
	result, err := daemonctl.EnsureStarted(context.Background(), client, "/nonexistent/macroblockd", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted() error = %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning || result.Launched {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.PID != 999001 {
		t.Fatalf("PID = %d", result.PID)
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	_, err := daemonctl.StopAndTerminate(context.Background(), unreachableClient(t), time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForAPITimesOut(t *testing.T) {
	err := daemonctl.WaitForAPI(context.Background(), unreachableClient(t), 300*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "daemon failed to start") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), nil, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot() error = %v", err)
	}
	if snapshot.Running {
		t.Fatal("expected offline snapshot")
	}
	if snapshot.ListenAddr != cfg.Daemon.Listen {
		t.Fatalf("ListenAddr = %q", snapshot.ListenAddr)
	}
	if snapshot.History == nil || snapshot.History.Total != 0 {
		t.Fatalf("expected empty history summary, got %+v", snapshot.History)
	}
	for _, dep := range snapshot.Dependencies {
		if !dep.Available {
			t.Fatalf("dependency %s unavailable: %s", dep.Name, dep.Detail)
		}
		if dep.Severity != "ok" {
			t.Fatalf("dependency %s severity = %q", dep.Name, dep.Severity)
		}
	}
	if snapshot.DependencySummary == nil || snapshot.DependencySummary.Severity != "ok" {
		t.Fatalf("unexpected dependency summary %+v", snapshot.DependencySummary)
	}
	if len(snapshot.SystemChecks) == 0 || len(snapshot.DirectoryChecks) == 0 {
		t.Fatal("expected system and directory checks")
	}
	if snapshot.SystemChecks[0].Label != "Macroblock" || snapshot.SystemChecks[0].Severity != "warn" {
		t.Fatalf("unexpected first system check %+v", snapshot.SystemChecks[0])
	}
}

func TestBuildStatusSnapshotOnline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	client := fakeDaemon(t, 4321)

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), client, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot() error = %v", err)
	}
	if !snapshot.Running || snapshot.PID != 4321 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.SystemChecks[0].Severity != "ok" || snapshot.SystemChecks[0].Detail != "Running" {
		t.Fatalf("unexpected first system check %+v", snapshot.SystemChecks[0])
	}
}

func TestBuildSystemChecksPartialDetectors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	status := &api.DaemonStatus{
		Running: true,
		Detectors: api.DetectorsResponse{
			RegisteredCount: 2,
			Detectors: []api.DetectorStatus{
				{Name: "a", Loaded: true},
				{Name: "b"},
			},
		},
	}

	var detectors api.StatusLine
	for _, line := range daemonctl.BuildSystemChecks(cfg, status) {
		if line.Label == "Detectors" {
			detectors = line
		}
	}
	if detectors.Severity != "warn" || detectors.Detail != "1/2 loaded" {
		t.Fatalf("unexpected detectors line %+v", detectors)
	}
}

func TestBuildDependencySummaryCounts(t *testing.T) {
	summary := daemonctl.BuildDependencySummary([]api.DependencyStatus{
		{Name: "FFmpeg", Available: true},
		{Name: "FFprobe"},
		{Name: "lsblk", Optional: true},
	})
	if summary.Severity != "error" {
		t.Fatalf("Severity = %q", summary.Severity)
	}
	if summary.Available != 1 || summary.MissingRequired != 1 || summary.MissingOptional != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !strings.Contains(summary.Detail, "1/3 available") {
		t.Fatalf("Detail = %q", summary.Detail)
	}
}
