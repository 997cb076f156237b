// Package photo normalizes headshot uploads for transport.
//
// A normalized photo is a JPEG no larger than MaxDimension on either side and,
// where quality reduction allows, no larger than MaxBytes. Transparent areas
// are flattened onto white.
package photo

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Defaults match the upload limits of the remote store.
const (
	DefaultMaxDimension = 800
	DefaultMaxBytes     = 512 * 1024
	DefaultQuality      = 85
	MinQuality          = 10
	QualityDecay        = 0.9

	// DefaultMaxPixels bounds the decoded source area.
	DefaultMaxPixels = 40_000_000
)

var (
	// ErrEmpty is returned for a zero-length upload.
	ErrEmpty = errors.New("empty photo")

	// ErrTooLarge is returned when the source's declared area exceeds MaxPixels.
	// It is detected from the image header, before any pixels are decoded.
	ErrTooLarge = errors.New("photo dimensions too large")
)

// Config bounds the normalized output.
type Config struct {
	// MaxDimension caps width and height in pixels (0 = no limit).
	MaxDimension int

	// MaxBytes caps the encoded size (0 = no limit). Quality is reduced
	// iteratively down to MinQuality; past that the smallest result is kept.
	MaxBytes int

	// Quality is the starting JPEG quality (1-100).
	Quality int

	// MaxPixels caps the source width*height (0 = DefaultMaxPixels).
	MaxPixels int
}

// DefaultConfig returns the standard headshot limits.
func DefaultConfig() Config {
	return Config{
		MaxDimension: DefaultMaxDimension,
		MaxBytes:     DefaultMaxBytes,
		Quality:      DefaultQuality,
		MaxPixels:    DefaultMaxPixels,
	}
}

// Result is a normalized photo.
type Result struct {
	Data         []byte
	Width        int
	Height       int
	Quality      int
	OriginalSize int
	SourceFormat string
}

// Base64 returns the bare base64 encoding of the data (no data: URL prefix).
func (r *Result) Base64() string {
	return base64.StdEncoding.EncodeToString(r.Data)
}

// Normalize decodes data, scales it to fit cfg.MaxDimension and re-encodes it
// as JPEG within cfg.MaxBytes. The context is checked between steps.
func Normalize(ctx context.Context, data []byte, cfg Config) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	maxPixels := int64(cfg.MaxPixels)
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(header.Width)*int64(header.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, header.Width, header.Height, maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), cfg.MaxDimension)

	// White canvas first so transparency does not turn black in JPEG.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quality := cfg.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	encoded, quality, err := encodeWithin(ctx, dst, quality, cfg.MaxBytes)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:         encoded,
		Width:        w,
		Height:       h,
		Quality:      quality,
		OriginalSize: len(data),
		SourceFormat: format,
	}, nil
}

// fitWithin scales (w, h) down so neither side exceeds max, keeping the aspect ratio.
func fitWithin(w, h, max int) (int, int) {
	if max > 0 && (w > max || h > max) {
		if w >= h {
			h = int(float64(h) * float64(max) / float64(w))
			w = max
		} else {
			w = int(float64(w) * float64(max) / float64(h))
			h = max
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// encodeWithin encodes img as JPEG, lowering quality until it fits maxBytes.
func encodeWithin(ctx context.Context, img image.Image, quality, maxBytes int) ([]byte, int, error) {
	for {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, quality, fmt.Errorf("encode photo: %w", err)
		}
		if maxBytes <= 0 || buf.Len() <= maxBytes || quality <= MinQuality {
			return buf.Bytes(), quality, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, quality, err
		}
		quality = int(float64(quality) * QualityDecay)
		if quality < MinQuality {
			quality = MinQuality
		}
	}
}
