// Package deps reports the availability of external binaries the gateway
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"macroblock/internal/config"
)

// Requirement defines an external dependency macroblock relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the external binaries for the given configuration,
// honouring the [tools] overrides. Intake-only dependencies are included
// only when the intake monitor is enabled.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg := "ffmpeg"
	ffprobe := "ffprobe"
	intake := false
	if cfg != nil {
		ffmpeg = cfg.FFmpegBinary()
		ffprobe = cfg.FFprobeBinary()
		intake = cfg.Intake.Enabled
	}

	requirements := []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Required for video frame extraction",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Required for video stream inspection",
		},
	}
	if intake {
		requirements = append(requirements, Requirement{
			Name:        "lsblk",
			Command:     "lsblk",
			Description: "Resolves mount points for evidence intake",
			Optional:    true,
		})
	}
	return requirements
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
