// Package imaging normalises uploaded images before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
)

var (
	ErrTooLarge          = errors.New("image exceeds the maximum upload size")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// NormalizeLogo decodes a JPEG, PNG or GIF, shrinks it to fit maxDim×maxDim
// keeping the aspect ratio, and re-encodes it as PNG. Images already small
// enough are only re-encoded.
func NormalizeLogo(data []byte, maxDim int, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if maxDim > 0 {
		img = resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode logo: %w", err)
	}
	return buf.Bytes(), nil
}
