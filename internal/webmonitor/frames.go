package webmonitor

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/dj-oyu/reefwatch/internal/imaging"
	"github.com/dj-oyu/reefwatch/internal/statecell"
)

// FrameCache encodes each cell version to JPEG once, however many stream
// clients and recorders ask for it.
type FrameCache struct {
	quality int

	mu      sync.Mutex
	version uint64
	data    []byte
	err     error
}

// NewFrameCache returns a cache encoding at the given JPEG quality.
func NewFrameCache(quality int) *FrameCache {
	return &FrameCache{quality: quality}
}

// JPEG returns the encoded frame of snap. Older snapshots than the cached
// one are encoded without replacing the cache.
func (c *FrameCache) JPEG(snap statecell.Snapshot) ([]byte, error) {
	if snap.Frame == nil || snap.Frame.Image == nil {
		return nil, fmt.Errorf("snapshot v%d has no frame", snap.Version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version == snap.Version && (c.data != nil || c.err != nil) {
		return c.data, c.err
	}

	data, err := imaging.EncodeJPEG(snap.Frame.Image, c.quality)
	if snap.Version >= c.version {
		c.version, c.data, c.err = snap.Version, data, err
	}
	return data, err
}

// placeholderJPEG renders the colour-bar card shown until the first frame.
func placeholderJPEG(text string) ([]byte, error) {
	const w, h = 640, 480
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	// Color bars: White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
	colors := []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 255, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 255, A: 255},
		{R: 0, G: 0, B: 0, A: 255},
	}
	barWidth := w / len(colors)
	for i, c := range colors {
		imaging.Fill(img, image.Rect(i*barWidth, 0, (i+1)*barWidth, h), c)
	}

	x := (w - imaging.TextWidth(text)) / 2
	imaging.DrawLabel(img, x, h/2-imaging.LabelHeight()/2, text, color.White, color.Black)

	return imaging.EncodeJPEG(img, 75)
}
