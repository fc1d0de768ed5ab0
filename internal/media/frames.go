package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Frame is one sampled video frame written to disk as JPEG.
type Frame struct {
	// Index is the ordinal of the frame within the sampled sequence,
	// not the source frame number.
	Index int
	Path  string
}

const framePattern = "frame_%05d.jpg"

// ExtractFrames samples frames from a video into dir using ffmpeg. Every
// sampleRate-th source frame is kept, up to maxFrames, encoded as
// high-quality JPEG. The returned frames are ordered by sample index.
func ExtractFrames(ctx context.Context, ffmpegBinary, source, dir string, sampleRate, maxFrames int) ([]Frame, error) {
	ffmpegBinary = strings.TrimSpace(ffmpegBinary)
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 1
	}
	if maxFrames <= 0 {
		return nil, fmt.Errorf("extract frames: invalid frame limit %d", maxFrames)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("extract frames: create dir: %w", err)
	}

	args := extractArgs(source, dir, sampleRate, maxFrames)
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg extract frames: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return collectFrames(dir)
}

func extractArgs(source, dir string, sampleRate, maxFrames int) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", sampleRate),
		"-vsync", "vfr",
		"-frames:v", strconv.Itoa(maxFrames),
		"-q:v", "2",
		filepath.Join(dir, framePattern),
	}
}

// collectFrames lists the JPEG frames ffmpeg produced, ordered by sample
// index. The %05d pattern keeps lexical and numeric order aligned.
func collectFrames(dir string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("extract frames: read dir: %w", err)
	}
	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		frames = append(frames, Frame{Path: filepath.Join(dir, name)})
	}
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Path < frames[j].Path
	})
	for i := range frames {
		frames[i].Index = i
	}
	return frames, nil
}
