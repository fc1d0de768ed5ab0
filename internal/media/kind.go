package media

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Kind classifies evidence into the analysis pipelines the gateway runs.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
)

// String returns the wire representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Supported reports whether the kind maps to an analysis pipeline.
func (k Kind) Supported() bool {
	switch k {
	case KindImage, KindVideo, KindAudio:
		return true
	default:
		return false
	}
}

// sniffLen is the number of leading bytes filetype needs to match magic
// numbers for every registered type.
const sniffLen = 261

// SniffKind classifies raw bytes by magic number alone.
func SniffKind(data []byte) Kind {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	switch {
	case filetype.IsImage(data):
		return KindImage
	case filetype.IsVideo(data):
		return KindVideo
	case filetype.IsAudio(data):
		return KindAudio
	default:
		return KindUnknown
	}
}

// DetectKind classifies a file on disk. Magic numbers win; when the header
// matches nothing (truncated files, uncommon containers) the extension
// decides, so a renamed .mp4 is still treated as video.
func DetectKind(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return KindUnknown, err
	}

	if kind := SniffKind(buf[:n]); kind != KindUnknown {
		return kind, nil
	}
	return KindFromExtension(path), nil
}

// KindFromExtension classifies by file extension only.
func KindFromExtension(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return KindImage
	case ".mp4", ".m4v", ".mkv", ".webm", ".mov", ".avi", ".wmv", ".flv", ".ts":
		return KindVideo
	case ".wav", ".mp3", ".flac", ".ogg", ".opus", ".m4a", ".aac", ".wma":
		return KindAudio
	default:
		return KindUnknown
	}
}
