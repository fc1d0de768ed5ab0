package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractArgsSelectsEveryNthFrame(t *testing.T) {
	args := extractArgs("/tmp/in.mp4", "/tmp/frames", 10, 30)

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, `select=not(mod(n\,10))`) {
		t.Fatalf("missing select filter in %q", joined)
	}
	if !strings.Contains(joined, "-frames:v 30") {
		t.Fatalf("missing frame limit in %q", joined)
	}
	if args[len(args)-1] != filepath.Join("/tmp/frames", framePattern) {
		t.Fatalf("unexpected output pattern %q", args[len(args)-1])
	}
}

func TestCollectFramesOrdersAndIndexes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_00003.jpg", "frame_00001.jpg", "frame_00002.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	frames, err := collectFrames(dir)
	if err != nil {
		t.Fatalf("collectFrames returned error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Index != i {
			t.Fatalf("frame %d has index %d", i, frame.Index)
		}
	}
	if filepath.Base(frames[0].Path) != "frame_00001.jpg" {
		t.Fatalf("unexpected first frame %s", frames[0].Path)
	}
}

func TestExtractFramesRejectsZeroLimit(t *testing.T) {
	if _, err := ExtractFrames(context.Background(), "ffmpeg", "in.mp4", t.TempDir(), 10, 0); err == nil {
		t.Fatal("expected error for zero frame limit")
	}
}
