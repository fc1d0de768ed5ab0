package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"macroblock/internal/media"
	"macroblock/internal/services"
)

// Upload is one in-memory file handed to the batch pipeline.
type Upload struct {
	Filename string
	Data     []byte
}

// BatchResult pairs one batch upload with its analysis outcome. Err is set
// when that file failed; other entries are unaffected.
type BatchResult struct {
	Filename string
	Result   *Result
	Err      error
}

const defaultBatchLimit = 10

// Analyze routes one upload to the pipeline for its media kind. Content
// sniffing decides; the filename extension breaks ties for containers magic
// numbers miss.
func (e *Engine) Analyze(ctx context.Context, filename string, data []byte) (*Result, error) {
	kind := media.SniffKind(data)
	if kind == media.KindUnknown {
		kind = media.KindFromExtension(filename)
	}
	switch kind {
	case media.KindImage:
		return e.AnalyzeImage(ctx, filename, data)
	case media.KindVideo:
		return e.AnalyzeVideo(ctx, filename, data)
	case media.KindAudio:
		return e.AnalyzeAudio(ctx, filename, data)
	default:
		return nil, services.Wrap(services.ErrUnsupportedMedia, "gateway", "analyze",
			fmt.Sprintf("%s is not a supported image, video, or audio file", sanitizeFilename(filename)), nil)
	}
}

// AnalyzePath analyzes a file on disk.
func (e *Engine) AnalyzePath(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "gateway", "analyze path", "read "+path, err)
	}
	return e.Analyze(ctx, filepath.Base(path), data)
}

// AnalyzeBatch analyzes up to the configured number of uploads. Failures are
// isolated per file; the returned slice always has one entry per upload, in
// order.
func (e *Engine) AnalyzeBatch(ctx context.Context, uploads []Upload) ([]BatchResult, error) {
	if len(uploads) == 0 {
		return nil, services.Wrap(services.ErrValidation, "gateway", "analyze batch", "no files supplied", nil)
	}
	limit := e.cfg.Analysis.BatchLimit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	if len(uploads) > limit {
		return nil, services.Wrap(services.ErrValidation, "gateway", "analyze batch",
			fmt.Sprintf("%d files exceeds batch limit %d", len(uploads), limit), nil)
	}

	results := make([]BatchResult, 0, len(uploads))
	for _, upload := range uploads {
		result, err := e.Analyze(ctx, upload.Filename, upload.Data)
		results = append(results, BatchResult{Filename: upload.Filename, Result: result, Err: err})
	}
	return results, nil
}
