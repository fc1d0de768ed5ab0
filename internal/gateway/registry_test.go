package gateway_test

import (
	"os"
	"path/filepath"
	"testing"

	"macroblock/internal/gateway"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/testsupport"
)

const sampleManifest = `name: npr-resnet
modality: image
endpoint: http://127.0.0.1:9101
output: softmax
fake_label_index: 1
`

func TestBuildRegistryFromManifests(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBuiltinDetectors())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Paths.ManifestDir, "npr.yaml"), []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	registry, err := gateway.BuildRegistry(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	names := registry.Names()
	want := []string{"exif", "npr-resnet", "spectral"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	if got := len(registry.ByModality(media.KindImage)); got != 3 {
		t.Fatalf("expected 3 image detectors, got %d", got)
	}
}

func TestBuildRegistryWithoutBuiltins(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	registry, err := gateway.BuildRegistry(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if names := registry.Names(); len(names) != 0 {
		t.Fatalf("expected empty registry, got %v", names)
	}
}

func TestBuildRegistryRejectsBadManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	// softmax output without a fake label index is unusable.
	bad := "name: broken\nmodality: image\nendpoint: http://127.0.0.1:9000\noutput: softmax\n"
	if err := os.WriteFile(filepath.Join(cfg.Paths.ManifestDir, "broken.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := gateway.BuildRegistry(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected manifest validation error")
	}
}
