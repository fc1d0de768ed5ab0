package detector_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"macroblock/internal/detector"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/services"
)

func writeManifest(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "npr.yaml", `
name: npr-resnet
modality: image
endpoint: http://127.0.0.1:9101
output: softmax
fake_label_index: 1
confidence_threshold: 0.6
timeout_seconds: 20
device: cuda:0
`)

	manifest, err := detector.LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}
	if manifest.Name != "npr-resnet" {
		t.Fatalf("name = %q", manifest.Name)
	}
	if manifest.Kind() != media.KindImage {
		t.Fatalf("kind = %s", manifest.Kind())
	}
	if manifest.FakeLabelIndex == nil || *manifest.FakeLabelIndex != 1 {
		t.Fatalf("fake_label_index = %v", manifest.FakeLabelIndex)
	}
	if manifest.Device != "cuda:0" {
		t.Fatalf("device = %q", manifest.Device)
	}

	normalizer := manifest.Normalizer()
	if normalizer.Convention != score.ConventionSoftmax {
		t.Fatalf("convention = %v", normalizer.Convention)
	}
	if normalizer.FakeLabelIndex != 1 || normalizer.Threshold != 0.6 {
		t.Fatalf("normalizer = %+v", normalizer)
	}
}

func TestLoadManifestSoftmaxRequiresIndex(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "bad.yaml", `
name: mystery
modality: image
endpoint: http://127.0.0.1:9101
output: softmax
`)

	_, err := detector.LoadManifest(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestLoadManifestRejectsBadModality(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "bad.yaml", `
name: textual
modality: text
endpoint: http://127.0.0.1:9101
output: direct
`)

	if _, err := detector.LoadManifest(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadManifestRejectsBadEndpoint(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "bad.yaml", `
name: broken
modality: image
endpoint: "not a url"
output: direct
`)

	if _, err := detector.LoadManifest(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestManifestNormalizerDefaultsThreshold(t *testing.T) {
	manifest := detector.Manifest{
		Name:     "plain",
		Modality: "image",
		Endpoint: "http://127.0.0.1:9000",
		Output:   detector.OutputDirect,
	}
	if err := manifest.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	normalizer := manifest.Normalizer()
	if normalizer.Convention != score.ConventionDirect {
		t.Fatalf("convention = %v", normalizer.Convention)
	}
	if normalizer.Threshold != score.DefaultThreshold {
		t.Fatalf("threshold = %v", normalizer.Threshold)
	}
}

func TestLoadManifestDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "b-second.yaml", `
name: second
modality: video
endpoint: http://127.0.0.1:9102
output: direct
`)
	writeManifest(t, dir, "a-first.yml", `
name: first
modality: image
endpoint: http://127.0.0.1:9101
output: direct
`)
	writeManifest(t, dir, "README.md", "not a manifest")

	manifests, err := detector.LoadManifestDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestDir returned error: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(manifests))
	}
	if manifests[0].Name != "first" || manifests[1].Name != "second" {
		t.Fatalf("unexpected order: %s, %s", manifests[0].Name, manifests[1].Name)
	}
}

func TestLoadManifestDirMissingIsEmpty(t *testing.T) {
	manifests, err := detector.LoadManifestDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing dir should not error, got %v", err)
	}
	if len(manifests) != 0 {
		t.Fatalf("expected empty set, got %d", len(manifests))
	}
}
