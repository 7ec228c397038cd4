// Package imaging holds the small raster helpers shared by the detector,
// the stream publisher and the coral classifier.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultJPEGQuality matches the quality used for MJPEG parts.
const DefaultJPEGQuality = 80

// EncodeJPEG compresses img. quality <= 0 selects DefaultJPEGQuality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CloneRGBA copies img into a new RGBA image with the same bounds.
func CloneRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Resize scales img to w x h with bilinear interpolation.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Fill paints r with c.
func Fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// StrokeRect draws the outline of r, thickness pixels wide, inside r.
func StrokeRect(dst *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Canon()
	if thickness < 1 {
		thickness = 1
	}
	Fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), c)
	Fill(dst, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), c)
	Fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), c)
	Fill(dst, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), c)
}

var labelFace = basicfont.Face7x13

// TextWidth returns the advance of s in the label face.
func TextWidth(s string) int {
	return font.MeasureString(labelFace, s).Ceil()
}

// LabelHeight is the height of the box DrawLabel paints.
func LabelHeight() int {
	return labelFace.Metrics().Height.Ceil() + 4
}

// DrawLabel writes text on a filled background whose top-left corner is (x, y).
// The label is shifted to stay inside dst.
func DrawLabel(dst *image.RGBA, x, y int, text string, fg, bg color.Color) {
	w := TextWidth(text) + 4
	h := LabelHeight()
	b := dst.Bounds()
	if x+w > b.Max.X {
		x = b.Max.X - w
	}
	if x < b.Min.X {
		x = b.Min.X
	}
	if y+h > b.Max.Y {
		y = b.Max.Y - h
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}

	Fill(dst, image.Rect(x, y, x+w, y+h), bg)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: labelFace,
		Dot:  fixed.P(x+2, y+2+labelFace.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
