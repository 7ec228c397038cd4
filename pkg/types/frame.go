package types

import (
	"image"
	"math"
	"time"
)

// Frame represents one decoded video frame with metadata.
// Frames are immutable once handed to the next stage.
type Frame struct {
	Image     image.Image // Decoded raster (RGB)
	Timestamp time.Time   // Time the frame was read from the source
	FrameNum  uint64      // Sequential frame number since process start
	Loop      uint64      // Number of times the source has been rewound
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Box is an axis-aligned bounding box in pixel coordinates (x1, y1, x2, y2).
type Box [4]int

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[2], b[3])
}

// Detection is one model-predicted object instance in a single frame.
type Detection struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// RoundConfidence rounds a confidence score to two decimals and clamps it to [0,1].
func RoundConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return math.Round(c*100) / 100
}

// InferenceResult is the output of a single detector pass.
type InferenceResult struct {
	Detections []Detection
	Annotated  image.Image // Frame with boxes and labels drawn on it
}
