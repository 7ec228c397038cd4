package coral

import (
	"image"
	"image/color"

	"github.com/dj-oyu/reefwatch/internal/imaging"
)

// InputSize is the square edge the model expects.
const InputSize = 224

var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensor is a CHW float image: Tensor[c][y][x].
type Tensor [][][]float32

// Preprocess resizes img to InputSize x InputSize with bilinear filtering and
// returns the normalised RGB tensor. Alpha is dropped before resizing, so
// transparent pixels keep their stored colour instead of turning black.
func Preprocess(img image.Image) Tensor {
	rgba := imaging.Resize(dropAlpha(img), InputSize, InputSize)

	t := make(Tensor, 3)
	for c := range t {
		t[c] = make([][]float32, InputSize)
		for y := range t[c] {
			t[c][y] = make([]float32, InputSize)
		}
	}

	for y := 0; y < InputSize; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < InputSize; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				t[c][y][x] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}
	return t
}

// dropAlpha returns an opaque copy of img holding its straight (not
// premultiplied) colour values.
func dropAlpha(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			in := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			out := dst.Pix[y*dst.Stride:]
			for x := 0; x < b.Dx(); x++ {
				copy(out[x*4:x*4+3], in[x*4:x*4+3])
				out[x*4+3] = 0xff
			}
		}
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			c.A = 0xff
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A})
		}
	}
	return dst
}
