package media

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FileDigest streams the file through SHA-256 and returns the hex digest
// together with the byte count.
func FileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// Digest returns the SHA-256 hex digest of in-memory data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PerceptualHash computes a 64-bit difference hash of the encoded image and
// returns it as fixed-width hex. Re-encoded or lightly resized copies of the
// same picture land within a small Hamming distance of each other.
func PerceptualHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("perceptual hash: decode: %w", err)
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("perceptual hash: %w", err)
	}
	return fmt.Sprintf("%016x", hash.GetHash()), nil
}

// HashDistance returns the Hamming distance between two hex-encoded
// difference hashes produced by PerceptualHash.
func HashDistance(a, b string) (int, error) {
	left, err := parsePerceptualHash(a)
	if err != nil {
		return 0, err
	}
	right, err := parsePerceptualHash(b)
	if err != nil {
		return 0, err
	}
	return left.Distance(right)
}

func parsePerceptualHash(value string) (*goimagehash.ImageHash, error) {
	bits, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("perceptual hash: parse %q: %w", value, err)
	}
	return goimagehash.NewImageHash(bits, goimagehash.DHash), nil
}
