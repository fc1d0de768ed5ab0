package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateDetectors(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateTemporal(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateIntake(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if strings.TrimSpace(c.Daemon.Listen) == "" {
		return errors.New("daemon.listen must be set")
	}
	return nil
}

func (c *Config) validateDetectors() error {
	if c.Detectors.DefaultTimeoutSeconds <= 0 {
		return errors.New("detectors.default_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if err := ensurePositiveMap(map[string]int{
		"analysis.sample_rate": c.Analysis.SampleRate,
		"analysis.max_frames":  c.Analysis.MaxFrames,
		"analysis.batch_limit": c.Analysis.BatchLimit,
	}); err != nil {
		return err
	}
	if err := ensureUnitRange(map[string]float64{
		"analysis.reliability_threshold": c.Analysis.ReliabilityThreshold,
		"analysis.video_weight":          c.Analysis.VideoWeight,
		"analysis.temporal_weight":       c.Analysis.TemporalWeight,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTemporal() error {
	if c.Temporal.VariancePenalty <= 0 {
		return errors.New("temporal.variance_penalty must be positive")
	}
	if err := ensureUnitRange(map[string]float64{
		"temporal.consistency_threshold": c.Temporal.ConsistencyThreshold,
		"temporal.flicker_threshold":     c.Temporal.FlickerThreshold,
		"temporal.mean_weight":           c.Temporal.MeanWeight,
		"temporal.peak_weight":           c.Temporal.PeakWeight,
		"temporal.flicker_bonus":         c.Temporal.FlickerBonus,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxDistance < 0 || c.Cache.MaxDistance > 64 {
		return errors.New("cache.max_distance must be between 0 and 64 (difference hash bits)")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	if c.Notifications.MinConfidence < 0 || c.Notifications.MinConfidence > 1 {
		return errors.New("notifications.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateIntake() error {
	if !c.Intake.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Intake.MountRoot) == "" {
		return errors.New("intake.mount_root must be set when intake.enabled is true")
	}
	if c.Intake.SettleSeconds <= 0 {
		return errors.New("intake.settle_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureUnitRange(values map[string]float64) error {
	for key, value := range values {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}
