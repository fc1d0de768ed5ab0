package preflight

import (
	"context"
	"strings"

	"macroblock/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Work and log directories (always checked)
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// Intake mount root (when the monitor is enabled)
	if cfg.Intake.Enabled && strings.TrimSpace(cfg.Intake.MountRoot) != "" {
		results = append(results, CheckDirectoryAccess("Intake mount root", cfg.Intake.MountRoot))
	}

	// Remote detector services
	results = append(results, CheckDetectorEndpoints(ctx, cfg)...)

	return results
}

// Failures filters results down to the checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
