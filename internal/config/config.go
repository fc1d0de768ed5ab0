package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	LogDir      string `toml:"log_dir"`
	ManifestDir string `toml:"manifest_dir"`
}

// Daemon contains bind address and lock file configuration. APIToken is
// optional; when set, API requests must carry it as a bearer token.
type Daemon struct {
	Listen   string `toml:"listen"`
	LockPath string `toml:"lock_path"`
	APIToken string `toml:"api_token"`
}

// Detectors contains registry-wide detector settings. Per-detector settings
// live in the YAML manifests under paths.manifest_dir.
type Detectors struct {
	DefaultTimeoutSeconds int  `toml:"default_timeout_seconds"`
	LoadOnStart           bool `toml:"load_on_start"`
	EnableBuiltin         bool `toml:"enable_builtin"`
}

// Analysis contains sampling limits and verdict blending weights.
type Analysis struct {
	SampleRate           int     `toml:"sample_rate"`
	MaxFrames            int     `toml:"max_frames"`
	BatchLimit           int     `toml:"batch_limit"`
	ReliabilityThreshold float64 `toml:"reliability_threshold"`
	VideoWeight          float64 `toml:"video_weight"`
	TemporalWeight       float64 `toml:"temporal_weight"`
}

// Temporal contains the tunables for frame-sequence consistency analysis.
type Temporal struct {
	VariancePenalty      float64 `toml:"variance_penalty"`
	ConsistencyThreshold float64 `toml:"consistency_threshold"`
	FlickerThreshold     float64 `toml:"flicker_threshold"`
	MeanWeight           float64 `toml:"mean_weight"`
	PeakWeight           float64 `toml:"peak_weight"`
	FlickerBonus         float64 `toml:"flicker_bonus"`
}

// Cache contains configuration for the perceptual-hash verdict cache.
type Cache struct {
	Enabled     bool `toml:"enabled"`
	MaxDistance int  `toml:"max_distance"`
}

// History contains configuration for the analysis history store.
type History struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string  `toml:"ntfy_topic"`
	RequestTimeout int     `toml:"request_timeout"`
	MinConfidence  float64 `toml:"min_confidence"`
}

// Intake contains configuration for the removable-media evidence monitor.
type Intake struct {
	Enabled       bool   `toml:"enabled"`
	MountRoot     string `toml:"mount_root"`
	SettleSeconds int    `toml:"settle_seconds"`
}

// Tools contains overrides for external binaries. Empty values resolve from
// PATH.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for macroblock.
//
// Configuration sections by subsystem:
//   - Paths: work, log, and detector manifest directories
//   - Daemon: API bind address and lock file
//   - Detectors: registry-wide timeout and startup load behaviour
//   - Analysis: frame sampling, batch limits, verdict blending
//   - Temporal: consistency analysis thresholds and weights
//   - Cache: perceptual-hash verdict reuse
//   - History: SQLite analysis history
//   - Notifications: ntfy push settings
//   - Intake: removable-media evidence scanning
//   - Tools: ffmpeg/ffprobe overrides
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Daemon        Daemon        `toml:"daemon"`
	Detectors     Detectors     `toml:"detectors"`
	Analysis      Analysis      `toml:"analysis"`
	Temporal      Temporal      `toml:"temporal"`
	Cache         Cache         `toml:"cache"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Intake        Intake        `toml:"intake"`
	Tools         Tools         `toml:"tools"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/macroblock/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/macroblock/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("macroblock.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.ManifestDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location for the history store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.WorkDir, "macroblock.db")
}

// DetectorTimeout returns the registry-wide default inference timeout.
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.Detectors.DefaultTimeoutSeconds) * time.Second
}

// FFmpegBinary returns the ffmpeg executable, honouring the tools override.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFmpeg); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable, honouring the tools override.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFprobe); bin != "" {
		return bin
	}
	return "ffprobe"
}

// LogLevel implements logging.LogSettings.
func (c *Config) LogLevel() string { return c.Logging.Level }

// LogFormat implements logging.LogSettings.
func (c *Config) LogFormat() string { return c.Logging.Format }

// LogDirectory implements logging.LogSettings.
func (c *Config) LogDirectory() string { return c.Paths.LogDir }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
