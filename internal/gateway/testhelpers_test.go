package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"macroblock/internal/detector"
	"macroblock/internal/gateway"
	"macroblock/internal/history"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/testsupport"
)

// stubDetector returns canned fake probabilities, cycling through probs one
// call at a time.
type stubDetector struct {
	name     string
	modality media.Kind
	probs    []float64
	inferErr error
	loadErr  error

	mu    sync.Mutex
	calls int
}

func (d *stubDetector) Name() string         { return d.name }
func (d *stubDetector) Modality() media.Kind { return d.modality }

func (d *stubDetector) Load(ctx context.Context) error {
	return d.loadErr
}

func (d *stubDetector) Unload(ctx context.Context) error {
	return nil
}

func (d *stubDetector) Infer(ctx context.Context, item detector.Item) (score.Detection, error) {
	d.mu.Lock()
	call := d.calls
	d.calls++
	d.mu.Unlock()

	if d.inferErr != nil {
		return score.Detection{}, d.inferErr
	}
	prob := 0.5
	if len(d.probs) > 0 {
		prob = d.probs[call%len(d.probs)]
	}
	confidence := prob
	isFake := prob >= 0.5
	if !isFake {
		confidence = 1 - prob
	}
	return score.Detection{
		DetectorName:    d.name,
		IsFake:          isFake,
		FakeProbability: prob,
		Confidence:      confidence,
	}, nil
}

func (d *stubDetector) inferCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type stubNotifier struct {
	mu         sync.Mutex
	fakeAlerts []string
}

func (s *stubNotifier) NotifyFakeDetected(ctx context.Context, filename, mediaKind string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fakeAlerts = append(s.fakeAlerts, filename)
	return nil
}

func (s *stubNotifier) NotifyIntakeStarted(context.Context, string, int) error { return nil }

func (s *stubNotifier) NotifyIntakeCompleted(context.Context, int, int, time.Duration) error {
	return nil
}

func (s *stubNotifier) NotifyDetectorDegraded(context.Context, string, string) error { return nil }
func (s *stubNotifier) NotifyError(context.Context, error, string) error             { return nil }
func (s *stubNotifier) TestNotification(context.Context) error                       { return nil }

func (s *stubNotifier) fakeAlertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fakeAlerts)
}

// newTestEngine builds an engine over a fresh store and registry seeded with
// the provided detectors.
func newTestEngine(t *testing.T, detectors ...detector.Detector) (*gateway.Engine, *history.Store, *stubNotifier) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	registry := detector.NewRegistry(logging.NewNop(), 0)
	for _, d := range detectors {
		registry.Register(d)
	}
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &stubNotifier{}
	engine := gateway.NewWithNotifier(cfg, registry, store, logging.NewNop(), notifier)
	return engine, store, notifier
}
