// Package detect runs object detection on frames and draws the results.
package detect

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/dj-oyu/reefwatch/internal/imaging"
	"github.com/dj-oyu/reefwatch/pkg/types"
)

// Detector turns one raw frame into a detection list and an annotated copy.
// Implementations must not modify frame.Image.
type Detector interface {
	Detect(ctx context.Context, frame *types.Frame) (types.InferenceResult, error)
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context, frame *types.Frame) (types.InferenceResult, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, frame *types.Frame) (types.InferenceResult, error) {
	return f(ctx, frame)
}

var palette = []color.RGBA{
	{R: 0, G: 200, B: 255, A: 255},
	{R: 255, G: 160, B: 0, A: 255},
	{R: 60, G: 220, B: 60, A: 255},
	{R: 255, G: 70, B: 120, A: 255},
	{R: 170, G: 90, B: 255, A: 255},
	{R: 255, G: 230, B: 40, A: 255},
}

func classColor(name string) color.RGBA {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h*31 + uint32(name[i])
	}
	return palette[h%uint32(len(palette))]
}

// Annotate returns a copy of img with each detection's box and
// "<class> <confidence>" label drawn on it.
func Annotate(img image.Image, dets []types.Detection) *image.RGBA {
	out := imaging.CloneRGBA(img)
	thickness := max(2, out.Bounds().Dx()/320)

	for _, d := range dets {
		c := classColor(d.ClassName)
		r := d.Box.Rect()
		imaging.StrokeRect(out, r, c, thickness)

		label := fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
		imaging.DrawLabel(out, r.Min.X, r.Min.Y-imaging.LabelHeight(), label, color.Black, c)
	}
	return out
}
