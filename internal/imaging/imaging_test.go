package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJPEGRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	data, err := EncodeJPEG(img, 0)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	Fill(src, src.Bounds(), color.RGBA{200, 10, 10, 255})

	out := Resize(src, 224, 224)
	assert.Equal(t, image.Rect(0, 0, 224, 224), out.Bounds())
	r, g, _, _ := out.At(112, 112).RGBA()
	assert.InDelta(t, 200, r>>8, 2)
	assert.InDelta(t, 10, g>>8, 2)
}

func TestStrokeRectLeavesInteriorUntouched(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	red := color.RGBA{255, 0, 0, 255}
	StrokeRect(dst, image.Rect(2, 2, 18, 18), red, 2)

	assert.Equal(t, red, dst.RGBAAt(2, 2))
	assert.Equal(t, red, dst.RGBAAt(17, 10))
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(0, 0))
}

func TestDrawLabelStaysInBounds(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 40, 20))
	bg := color.RGBA{0, 0, 255, 255}

	// Would overflow to the right and above; must be clamped, not panic.
	DrawLabel(dst, 35, -10, "fish 0.91", color.White, bg)

	assert.Equal(t, bg, dst.RGBAAt(0, 0))
}

func TestCloneRGBAIsIndependent(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	clone := CloneRGBA(src)
	clone.SetRGBA(1, 1, color.RGBA{1, 2, 3, 255})
	assert.Equal(t, color.RGBA{}, src.RGBAAt(1, 1))
}
