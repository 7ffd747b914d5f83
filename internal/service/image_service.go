package service

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"go.uber.org/zap"
)

const resizeJPEGQuality = 85

// ImageNormalizer guarantees image payloads fit the inline transmission
// budget, downscaling and re-encoding as JPEG when necessary.
type ImageNormalizer struct {
	maxBytes int
	logger   *zap.Logger
}

func NewImageNormalizer(maxBytes int, logger *zap.Logger) *ImageNormalizer {
	return &ImageNormalizer{maxBytes: maxBytes, logger: logger}
}

// Normalize returns the input unchanged when it already fits the budget.
// Oversized inputs are downscaled by s = sqrt(budget / (size * 1.5)) and
// re-encoded at quality 85; the 1.5 constant approximates the inverse
// compression gain of re-encoding. Single pass: the result is not re-checked
// against the budget.
func (n *ImageNormalizer) Normalize(data []byte, contentType string) ([]byte, string, error) {
	if len(data) <= n.maxBytes {
		return data, contentType, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageError{Err: fmt.Errorf("failed to read image dimensions: %w", err)}
	}

	scale := math.Sqrt(float64(n.maxBytes) / (float64(len(data)) * 1.5))
	newWidth := int(float64(cfg.Width) * scale)
	newHeight := int(float64(cfg.Height) * scale)
	if newWidth < 1 || newHeight < 1 {
		return nil, "", &ImageError{Err: fmt.Errorf("image %dx%d cannot be scaled into %d bytes", cfg.Width, cfg.Height, n.maxBytes)}
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageError{Err: fmt.Errorf("failed to decode image: %w", err)}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: resizeJPEGQuality}); err != nil {
		return nil, "", &ImageError{Err: fmt.Errorf("failed to encode resized image: %w", err)}
	}

	n.logger.Info("Image downscaled to fit transmission budget",
		zap.Int("original_bytes", len(data)),
		zap.Int("resized_bytes", buf.Len()),
		zap.Int("width", newWidth),
		zap.Int("height", newHeight),
	)

	return buf.Bytes(), "image/jpeg", nil
}
