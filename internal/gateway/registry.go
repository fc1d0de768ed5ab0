package gateway

import (
	"log/slog"

	"macroblock/internal/config"
	"macroblock/internal/detector"
	"macroblock/internal/detector/exif"
	"macroblock/internal/detector/remote"
	"macroblock/internal/detector/spectral"
	"macroblock/internal/logging"
)

// BuildRegistry assembles the detector registry for a configuration: one
// remote client per manifest in paths.manifest_dir, plus the built-in local
// detectors unless they are disabled.
func BuildRegistry(cfg *config.Config, logger *slog.Logger) (*detector.Registry, error) {
	registry := detector.NewRegistry(logger, cfg.DetectorTimeout())

	manifests, err := detector.LoadManifestDir(cfg.Paths.ManifestDir)
	if err != nil {
		return nil, err
	}
	for _, manifest := range manifests {
		registry.Register(remote.FromManifest(manifest))
	}

	if cfg.Detectors.EnableBuiltin {
		registry.Register(exif.New())
		registry.Register(spectral.New())
	}

	if logger != nil {
		logger.Info("detector registry assembled",
			logging.Int("manifests", len(manifests)),
			logging.Bool("builtin", cfg.Detectors.EnableBuiltin))
	}
	return registry, nil
}
