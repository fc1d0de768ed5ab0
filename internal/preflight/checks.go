package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"macroblock/internal/config"
	"macroblock/internal/deps"
	"macroblock/internal/detector"
	"macroblock/internal/detector/remote"
)

// detectorProbeTimeout bounds a single detector reachability probe.
const detectorProbeTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates all system-level binary dependencies for the
// given config.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

// CheckDetector probes one detector service using the same readiness probe
// the registry uses, without retries so status output stays snappy.
func CheckDetector(ctx context.Context, manifest detector.Manifest) Result {
	name := "Detector " + manifest.Name

	checkCtx, cancel := context.WithTimeout(ctx, detectorProbeTimeout)
	defer cancel()

	client := remote.FromManifest(manifest, remote.WithRetryMaxAttempts(1))
	if err := client.Load(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProbeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: manifest.Endpoint + " reachable"}
}

// CheckDetectorEndpoints probes every manifest-declared detector service.
func CheckDetectorEndpoints(ctx context.Context, cfg *config.Config) []Result {
	manifests, err := detector.LoadManifestDir(cfg.Paths.ManifestDir)
	if err != nil {
		return []Result{{Name: "Detector manifests", Detail: err.Error()}}
	}

	results := make([]Result, 0, len(manifests))
	for _, manifest := range manifests {
		results = append(results, CheckDetector(ctx, manifest))
	}
	return results
}

// summarizeProbeError produces a human-readable summary for detector probe
// failures.
func summarizeProbeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return err.Error()
}
