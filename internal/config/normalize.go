package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	c.normalizeDetectors()
	c.normalizeAnalysis()
	c.normalizeTemporal()
	c.normalizeCache()
	c.normalizeNotifications()
	if err := c.normalizeIntake(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ManifestDir) == "" {
		c.Paths.ManifestDir = defaultManifestDir
	}
	if c.Paths.ManifestDir, err = expandPath(c.Paths.ManifestDir); err != nil {
		return fmt.Errorf("paths.manifest_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() error {
	c.Daemon.Listen = strings.TrimSpace(c.Daemon.Listen)
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = defaultListen
	}
	if strings.TrimSpace(c.Daemon.LockPath) == "" {
		c.Daemon.LockPath = c.Paths.WorkDir + "/macroblockd.lock"
	}
	var err error
	if c.Daemon.LockPath, err = expandPath(c.Daemon.LockPath); err != nil {
		return fmt.Errorf("daemon.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDetectors() {
	if c.Detectors.DefaultTimeoutSeconds <= 0 {
		c.Detectors.DefaultTimeoutSeconds = defaultDetectorTimeout
	}
}

func (c *Config) normalizeAnalysis() {
	if c.Analysis.SampleRate <= 0 {
		c.Analysis.SampleRate = defaultSampleRate
	}
	if c.Analysis.MaxFrames <= 0 {
		c.Analysis.MaxFrames = defaultMaxFrames
	}
	if c.Analysis.BatchLimit <= 0 {
		c.Analysis.BatchLimit = defaultBatchLimit
	}
	if c.Analysis.ReliabilityThreshold <= 0 {
		c.Analysis.ReliabilityThreshold = defaultReliabilityThreshold
	}
	if c.Analysis.VideoWeight <= 0 {
		c.Analysis.VideoWeight = defaultVideoWeight
	}
	if c.Analysis.TemporalWeight <= 0 {
		c.Analysis.TemporalWeight = defaultTemporalWeight
	}
}

func (c *Config) normalizeTemporal() {
	if c.Temporal.VariancePenalty <= 0 {
		c.Temporal.VariancePenalty = defaultVariancePenalty
	}
	if c.Temporal.ConsistencyThreshold <= 0 {
		c.Temporal.ConsistencyThreshold = defaultConsistencyThreshold
	}
	if c.Temporal.FlickerThreshold <= 0 {
		c.Temporal.FlickerThreshold = defaultFlickerThreshold
	}
	if c.Temporal.MeanWeight <= 0 {
		c.Temporal.MeanWeight = defaultMeanWeight
	}
	if c.Temporal.PeakWeight <= 0 {
		c.Temporal.PeakWeight = defaultPeakWeight
	}
	if c.Temporal.FlickerBonus < 0 {
		c.Temporal.FlickerBonus = defaultFlickerBonus
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.MaxDistance <= 0 {
		c.Cache.MaxDistance = defaultCacheMaxDistance
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MACROBLOCK_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.MinConfidence <= 0 {
		c.Notifications.MinConfidence = defaultNotifyMinConfidence
	}
}

func (c *Config) normalizeIntake() error {
	c.Intake.MountRoot = strings.TrimSpace(c.Intake.MountRoot)
	if c.Intake.MountRoot != "" {
		var err error
		if c.Intake.MountRoot, err = expandPath(c.Intake.MountRoot); err != nil {
			return fmt.Errorf("intake.mount_root: %w", err)
		}
	}
	if c.Intake.SettleSeconds <= 0 {
		c.Intake.SettleSeconds = defaultIntakeSettleSeconds
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
