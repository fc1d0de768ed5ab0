package detector

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/services"
)

// Output conventions a manifest may declare.
const (
	OutputDirect  = "direct"
	OutputSoftmax = "softmax"
)

// Manifest describes one remote model service. One YAML file per detector
// lives in the configured manifest directory.
type Manifest struct {
	Name     string `yaml:"name"`
	Modality string `yaml:"modality"`
	Endpoint string `yaml:"endpoint"`
	Output   string `yaml:"output"`
	// FakeLabelIndex states which softmax slot is the fake class. It is
	// required for softmax outputs and never inferred from the scores.
	FakeLabelIndex      *int    `yaml:"fake_label_index"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	Device              string  `yaml:"device"`
}

// LoadManifest reads and validates a single manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, services.Wrap(services.ErrConfiguration, "detector", "manifest", "read "+path, err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, services.Wrap(services.ErrConfiguration, "detector", "manifest", "parse "+path, err)
	}
	manifest.Name = strings.TrimSpace(manifest.Name)
	manifest.Modality = strings.ToLower(strings.TrimSpace(manifest.Modality))
	manifest.Endpoint = strings.TrimSpace(manifest.Endpoint)
	manifest.Output = strings.ToLower(strings.TrimSpace(manifest.Output))
	if err := manifest.Validate(); err != nil {
		return Manifest{}, services.Wrap(services.ErrConfiguration, "detector", "manifest", "validate "+path, err)
	}
	return manifest, nil
}

// LoadManifestDir loads every *.yaml and *.yml manifest in dir, sorted by
// filename. A missing directory yields an empty set, not an error.
func LoadManifestDir(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrConfiguration, "detector", "manifest", "read dir "+dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	manifests := make([]Manifest, 0, len(names))
	for _, name := range names {
		manifest, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}

// Validate enforces the manifest schema.
func (m Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !media.Kind(m.Modality).Supported() {
		return fmt.Errorf("modality %q must be image, video, or audio", m.Modality)
	}
	if m.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	parsed, err := url.Parse(m.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("endpoint %q is not a valid URL", m.Endpoint)
	}
	switch m.Output {
	case OutputDirect:
	case OutputSoftmax:
		if m.FakeLabelIndex == nil {
			return fmt.Errorf("fake_label_index is required for softmax output")
		}
		if *m.FakeLabelIndex != 0 && *m.FakeLabelIndex != 1 {
			return fmt.Errorf("fake_label_index %d must be 0 or 1", *m.FakeLabelIndex)
		}
	default:
		return fmt.Errorf("output %q must be direct or softmax", m.Output)
	}
	if m.ConfidenceThreshold < 0 || m.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %v must be within [0, 1]", m.ConfidenceThreshold)
	}
	if m.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds %d must not be negative", m.TimeoutSeconds)
	}
	return nil
}

// Kind returns the manifest modality as a media kind.
func (m Manifest) Kind() media.Kind {
	return media.Kind(m.Modality)
}

// Normalizer builds the score normalizer the manifest declares. A zero
// confidence threshold means the default decision boundary.
func (m Manifest) Normalizer() score.Normalizer {
	normalizer := score.Normalizer{Threshold: m.ConfidenceThreshold}
	if normalizer.Threshold == 0 {
		normalizer.Threshold = score.DefaultThreshold
	}
	switch m.Output {
	case OutputSoftmax:
		normalizer.Convention = score.ConventionSoftmax
		if m.FakeLabelIndex != nil {
			normalizer.FakeLabelIndex = *m.FakeLabelIndex
		}
	default:
		normalizer.Convention = score.ConventionDirect
	}
	return normalizer
}
