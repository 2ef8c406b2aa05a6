// Package imaging renders the square avatar renditions from an uploaded
// image.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/marmos91/avatarsync/pkg/avatar"
)

var (
	// ErrUnsupportedFormat indicates the data is not a decodable image
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrImageTooLarge indicates the decoded dimensions exceed MaxPixels
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// Config controls rendition sizes and encoding.
type Config struct {
	ThumbnailSize int `mapstructure:"thumbnail_size" validate:"gt=0"`
	MediumSize    int `mapstructure:"medium_size" validate:"gt=0"`
	FullSize      int `mapstructure:"full_size" validate:"gt=0"`

	// JPEGQuality is the encoder quality (1-100)
	JPEGQuality int `mapstructure:"jpeg_quality" validate:"min=1,max=100"`

	// MaxPixels bounds width*height of accepted sources
	MaxPixels int `mapstructure:"max_pixels" validate:"gt=0"`
}

// DefaultConfig returns the default rendition settings.
func DefaultConfig() Config {
	return Config{
		ThumbnailSize: 96,
		MediumSize:    256,
		FullSize:      512,
		JPEGQuality:   85,
		MaxPixels:     40_000_000,
	}
}

// Rendition is one encoded output image.
type Rendition struct {
	Variant     avatar.Variant
	Size        int
	ContentType string
	Data        []byte
}

// Processor renders renditions. It holds no mutable state and is safe for
// concurrent use.
type Processor struct {
	config Config
}

// NewProcessor creates a processor. Zero-valued fields of cfg use defaults.
func NewProcessor(cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = def.ThumbnailSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = def.MediumSize
	}
	if cfg.FullSize <= 0 {
		cfg.FullSize = def.FullSize
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = def.MaxPixels
	}
	return &Processor{config: cfg}
}

// Sizes returns the target edge length of each rendered variant. Legacy is
// not rendered; it reuses the full rendition.
func (p *Processor) Sizes() map[avatar.Variant]int {
	return map[avatar.Variant]int{
		avatar.VariantThumbnail: p.config.ThumbnailSize,
		avatar.VariantMedium:    p.config.MediumSize,
		avatar.VariantFull:      p.config.FullSize,
	}
}

// Render decodes data and returns the thumbnail, medium and full
// renditions, in that order.
func (p *Processor) Render(data []byte) ([]Rendition, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > p.config.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	variants := []avatar.Variant{avatar.VariantThumbnail, avatar.VariantMedium, avatar.VariantFull}
	sizes := p.Sizes()
	out := make([]Rendition, 0, len(variants))
	for _, v := range variants {
		img := Square(src, sizes[v])

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.config.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode %s rendition: %w", v, err)
		}

		out = append(out, Rendition{
			Variant:     v,
			Size:        img.Bounds().Dx(),
			ContentType: "image/jpeg",
			Data:        buf.Bytes(),
		})
	}
	return out, nil
}

// Square center-crops src to a square and scales it to size x size. Images
// smaller than size are not upscaled. Transparent areas are flattened onto
// white.
func Square(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	target := min(size, side)
	if target < 1 {
		target = 1
	}

	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, target, target))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)
	return dst
}
