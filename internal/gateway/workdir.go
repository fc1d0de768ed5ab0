package gateway

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"macroblock/internal/logging"
)

// workDirPrefix marks the per-analysis staging directories the engine creates
// under the work dir. Only these are swept; the history database, logs, and
// manifests live alongside.
const workDirPrefix = "analysis-"

// DefaultStaleWorkAge is how old a staging directory must be before the
// startup sweep removes it. Analyses finish in seconds; anything this old was
// orphaned by a crash.
const DefaultStaleWorkAge = time.Hour

// CleanupResult contains the outcome of a stale work directory sweep.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStaleWork removes orphaned per-analysis staging directories older than
// maxAge. It returns the list of removed directories and any errors
// encountered.
func CleanStaleWork(workDir string, maxAge time.Duration, logger *slog.Logger) CleanupResult {
	result := CleanupResult{}

	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: workDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workDirPrefix) {
			continue
		}

		dirPath := filepath.Join(workDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logger.Warn("failed to remove stale work directory",
				logging.String("path", dirPath),
				logging.Error(err))
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale work directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())))
	}

	return result
}
