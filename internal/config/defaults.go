package config

const (
	defaultWorkDir               = "~/.local/share/macroblock"
	defaultLogDir                = "~/.local/share/macroblock/logs"
	defaultManifestDir           = "~/.local/share/macroblock/detectors.d"
	defaultListen                = "127.0.0.1:7130"
	defaultDetectorTimeout       = 30
	defaultSampleRate            = 10
	defaultMaxFrames             = 30
	defaultBatchLimit            = 10
	defaultReliabilityThreshold  = 0.75
	defaultVideoWeight           = 0.7
	defaultTemporalWeight        = 0.3
	defaultVariancePenalty       = 2.0
	defaultConsistencyThreshold  = 0.3
	defaultFlickerThreshold      = 0.4
	defaultMeanWeight            = 0.6
	defaultPeakWeight            = 0.4
	defaultFlickerBonus          = 0.1
	defaultCacheMaxDistance      = 10
	defaultNotifyRequestTimeout  = 10
	defaultNotifyMinConfidence   = 0.8
	defaultIntakeSettleSeconds   = 5
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
			ManifestDir: defaultManifestDir,
		},
		Daemon: Daemon{
			Listen: defaultListen,
		},
		Detectors: Detectors{
			DefaultTimeoutSeconds: defaultDetectorTimeout,
			LoadOnStart:           true,
			EnableBuiltin:         true,
		},
		Analysis: Analysis{
			SampleRate:           defaultSampleRate,
			MaxFrames:            defaultMaxFrames,
			BatchLimit:           defaultBatchLimit,
			ReliabilityThreshold: defaultReliabilityThreshold,
			VideoWeight:          defaultVideoWeight,
			TemporalWeight:       defaultTemporalWeight,
		},
		Temporal: Temporal{
			VariancePenalty:      defaultVariancePenalty,
			ConsistencyThreshold: defaultConsistencyThreshold,
			FlickerThreshold:     defaultFlickerThreshold,
			MeanWeight:           defaultMeanWeight,
			PeakWeight:           defaultPeakWeight,
			FlickerBonus:         defaultFlickerBonus,
		},
		Cache: Cache{
			Enabled:     true,
			MaxDistance: defaultCacheMaxDistance,
		},
		History: History{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			MinConfidence:  defaultNotifyMinConfidence,
		},
		Intake: Intake{
			SettleSeconds: defaultIntakeSettleSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
