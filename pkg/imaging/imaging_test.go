package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/avatar"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRenderProducesSquareJPEGs(t *testing.T) {
	p := NewProcessor(Config{ThumbnailSize: 16, MediumSize: 32, FullSize: 64})

	out, err := p.Render(encodePNG(t, 120, 80))
	require.NoError(t, err)
	require.Len(t, out, 3)

	want := []struct {
		variant avatar.Variant
		size    int
	}{
		{avatar.VariantThumbnail, 16},
		{avatar.VariantMedium, 32},
		{avatar.VariantFull, 64},
	}
	for i, w := range want {
		assert.Equal(t, w.variant, out[i].Variant)
		assert.Equal(t, "image/jpeg", out[i].ContentType)

		img, err := jpeg.Decode(bytes.NewReader(out[i].Data))
		require.NoError(t, err)
		assert.Equal(t, w.size, img.Bounds().Dx())
		assert.Equal(t, w.size, img.Bounds().Dy())
	}
}

func TestRenderDoesNotUpscale(t *testing.T) {
	p := NewProcessor(DefaultConfig())

	out, err := p.Render(encodePNG(t, 40, 60))
	require.NoError(t, err)
	for _, r := range out {
		assert.LessOrEqual(t, r.Size, 40)
	}
	assert.Equal(t, 40, out[2].Size)
}

func TestRenderRejectsGarbage(t *testing.T) {
	p := NewProcessor(DefaultConfig())

	_, err := p.Render([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = p.Render(nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRenderRejectsHugeDimensions(t *testing.T) {
	p := NewProcessor(Config{MaxPixels: 100})

	_, err := p.Render(encodePNG(t, 20, 20))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestSquareCropsCenter(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 30, 10))
	for x := 10; x < 20; x++ {
		for y := 0; y < 10; y++ {
			src.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	dst := Square(src, 10)
	assert.Equal(t, image.Rect(0, 0, 10, 10), dst.Bounds())

	r, g, b, _ := dst.At(5, 5).RGBA()
	assert.Greater(t, r, uint32(0xf000))
	assert.Less(t, g, uint32(0x1000))
	assert.Less(t, b, uint32(0x1000))
}

func TestNewProcessorDefaults(t *testing.T) {
	p := NewProcessor(Config{})
	assert.Equal(t, DefaultConfig(), p.config)
}
