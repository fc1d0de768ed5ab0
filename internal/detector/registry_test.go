package detector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"macroblock/internal/detector"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/services"
)

type stubDetector struct {
	name      string
	modality  media.Kind
	device    string
	loadErr   error
	inferErr  error
	detection score.Detection
	delay     time.Duration

	loads   int
	unloads int
}

func (s *stubDetector) Name() string         { return s.name }
func (s *stubDetector) Modality() media.Kind { return s.modality }

func (s *stubDetector) Load(context.Context) error {
	s.loads++
	return s.loadErr
}

func (s *stubDetector) Infer(ctx context.Context, _ detector.Item) (score.Detection, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return score.Detection{}, ctx.Err()
		}
	}
	if s.inferErr != nil {
		return score.Detection{}, s.inferErr
	}
	return s.detection, nil
}

func (s *stubDetector) Unload(context.Context) error {
	s.unloads++
	return nil
}

func (s *stubDetector) Device() string { return s.device }

func TestRegisterReplacesOnNameCollision(t *testing.T) {
	registry := detector.NewRegistry(nil, 0)
	first := &stubDetector{name: "npr", modality: media.KindImage}
	second := &stubDetector{name: "npr", modality: media.KindImage, detection: score.Detection{FakeProbability: 0.9}}

	registry.Register(first)
	registry.Register(second)

	got, ok := registry.Get("npr")
	if !ok {
		t.Fatal("expected detector to be registered")
	}
	if got.(*stubDetector) != second {
		t.Fatal("expected replacement to win")
	}
	if names := registry.Names(); len(names) != 1 {
		t.Fatalf("expected one name, got %v", names)
	}
}

func TestNamesSorted(t *testing.T) {
	registry := detector.NewRegistry(nil, 0)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		registry.Register(&stubDetector{name: name, modality: media.KindImage})
	}

	names := registry.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestByModalityFilters(t *testing.T) {
	registry := detector.NewRegistry(nil, 0)
	registry.Register(&stubDetector{name: "img-b", modality: media.KindImage})
	registry.Register(&stubDetector{name: "img-a", modality: media.KindImage})
	registry.Register(&stubDetector{name: "aud", modality: media.KindAudio})

	images := registry.ByModality(media.KindImage)
	if len(images) != 2 {
		t.Fatalf("expected 2 image detectors, got %d", len(images))
	}
	if images[0].Name() != "img-a" || images[1].Name() != "img-b" {
		t.Fatalf("unexpected order: %s, %s", images[0].Name(), images[1].Name())
	}
	if len(registry.ByModality(media.KindVideo)) != 0 {
		t.Fatal("expected no video detectors")
	}
}

func TestLoadAllCapturesFailures(t *testing.T) {
	registry := detector.NewRegistry(nil, 0)
	good := &stubDetector{name: "good", modality: media.KindImage}
	bad := &stubDetector{name: "bad", modality: media.KindImage, loadErr: errors.New("weights missing")}
	registry.Register(good)
	registry.Register(bad)

	results := registry.LoadAll(context.Background())
	if !results["good"] || results["bad"] {
		t.Fatalf("unexpected results: %v", results)
	}
	if good.loads != 1 || bad.loads != 1 {
		t.Fatal("every detector must be load-attempted")
	}

	health := registry.Health()
	if health.RegisteredCount != 2 {
		t.Fatalf("registered count = %d", health.RegisteredCount)
	}
	if health.AllLoaded {
		t.Fatal("all_loaded must be false with a failed load")
	}
	if health.Detectors["bad"].Error != "weights missing" {
		t.Fatalf("missing load error, got %+v", health.Detectors["bad"])
	}
	if !health.Detectors["good"].Loaded {
		t.Fatal("good detector should be loaded")
	}
}

func TestHealthEchoesDevice(t *testing.T) {
	registry := detector.NewRegistry(nil, 0)
	registry.Register(&stubDetector{name: "gpu-model", modality: media.KindImage, device: "cuda:0"})
	registry.LoadAll(context.Background())

	health := registry.Health()
	if health.Detectors["gpu-model"].Device != "cuda:0" {
		t.Fatalf("device not echoed: %+v", health.Detectors["gpu-model"])
	}
	if !health.AllLoaded {
		t.Fatal("expected all_loaded after successful load")
	}
}

func TestHealthEmptyRegistryNotReady(t *testing.T) {
	health := detector.NewRegistry(nil, 0).Health()
	if health.AllLoaded {
		t.Fatal("an empty registry must not report ready")
	}
	if health.RegisteredCount != 0 {
		t.Fatalf("registered count = %d", health.RegisteredCount)
	}
}

func TestUnloadAll(t *testing.T) {
	registry := detector.NewRegistry(nil, 0)
	stub := &stubDetector{name: "one", modality: media.KindImage}
	registry.Register(stub)
	registry.LoadAll(context.Background())

	registry.UnloadAll(context.Background())
	if stub.unloads != 1 {
		t.Fatalf("unloads = %d, want 1", stub.unloads)
	}
	if registry.Health().AllLoaded {
		t.Fatal("unloaded registry must not report all_loaded")
	}
}

func TestInferAppliesTimeoutCeiling(t *testing.T) {
	registry := detector.NewRegistry(nil, 20*time.Millisecond)
	slow := &stubDetector{name: "slow", modality: media.KindImage, delay: 500 * time.Millisecond}
	registry.Register(slow)

	_, err := registry.Infer(context.Background(), slow, detector.Item{Path: "x.jpg"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
}

func TestInferPassesThroughDetection(t *testing.T) {
	registry := detector.NewRegistry(nil, time.Second)
	stub := &stubDetector{
		name:      "fast",
		modality:  media.KindImage,
		detection: score.Detection{DetectorName: "fast", IsFake: true, FakeProbability: 0.8, Confidence: 0.8},
	}
	registry.Register(stub)

	detection, err := registry.Infer(context.Background(), stub, detector.Item{Path: "x.jpg"})
	if err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}
	if !detection.IsFake || detection.FakeProbability != 0.8 {
		t.Fatalf("unexpected detection %+v", detection)
	}
}
