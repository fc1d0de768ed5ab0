package media

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSniffKindMagicNumbers(t *testing.T) {
	pngHeader := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)
	if kind := SniffKind(pngHeader); kind != KindImage {
		t.Fatalf("png header classified as %s", kind)
	}

	jpegHeader := append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 64)...)
	if kind := SniffKind(jpegHeader); kind != KindImage {
		t.Fatalf("jpeg header classified as %s", kind)
	}

	wavHeader := append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 64)...)
	if kind := SniffKind(wavHeader); kind != KindAudio {
		t.Fatalf("wav header classified as %s", kind)
	}

	if kind := SniffKind(make([]byte, 64)); kind != KindUnknown {
		t.Fatalf("zero bytes classified as %s", kind)
	}
}

func TestDetectKindFallsBackToExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renamed.mkv")
	if err := os.WriteFile(path, make([]byte, 32), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	kind, err := DetectKind(path)
	if err != nil {
		t.Fatalf("DetectKind returned error: %v", err)
	}
	if kind != KindVideo {
		t.Fatalf("expected video via extension fallback, got %s", kind)
	}
}

func TestDetectKindMissingFile(t *testing.T) {
	if _, err := DetectKind(filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestKindSupported(t *testing.T) {
	for _, kind := range []Kind{KindImage, KindVideo, KindAudio} {
		if !kind.Supported() {
			t.Fatalf("%s should be supported", kind)
		}
	}
	if KindUnknown.Supported() {
		t.Fatal("unknown kind should not be supported")
	}
}

func TestKindFromExtension(t *testing.T) {
	cases := map[string]Kind{
		"photo.JPG":    KindImage,
		"clip.webm":    KindVideo,
		"voice.flac":   KindAudio,
		"report.pdf":   KindUnknown,
		"no-extension": KindUnknown,
	}
	for path, want := range cases {
		if got := KindFromExtension(path); got != want {
			t.Fatalf("KindFromExtension(%q) = %s, want %s", path, got, want)
		}
	}
}
