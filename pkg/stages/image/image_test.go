package image

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLikelyDecorationFiltersThinStrips(t *testing.T) {
	assert.True(t, isLikelyDecoration(2000, 20))
	assert.True(t, isLikelyDecoration(20, 2000))
	assert.True(t, isLikelyDecoration(0, 100))
	assert.False(t, isLikelyDecoration(400, 300))
}

func TestBuildImageComputesHashAndDimensions(t *testing.T) {
	p := &Processor{}
	raw := encodeTestPNG(t, 150, 150)

	img, err := p.buildImage(uuid.New(), 3, raw)
	require.NoError(t, err)

	assert.Len(t, img.SHA256, 64)
	assert.Equal(t, img.SHA256, img.StorageKey)
	assert.Equal(t, 150, img.Width)
	assert.Equal(t, 150, img.Height)
	assert.Equal(t, 3, img.PageNumber)
	assert.True(t, img.InSizeRange())
}

func TestBuildImageRejectsUndecodableBytes(t *testing.T) {
	p := &Processor{}
	_, err := p.buildImage(uuid.New(), 1, []byte("not an image"))
	assert.Error(t, err)
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
