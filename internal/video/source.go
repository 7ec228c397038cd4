// Package video supplies a restartable sequence of decoded frames from a
// file-backed video or a directory of still images.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/pkg/types"
)

var (
	// ErrSourceOpen is returned by Open when the video cannot be opened.
	ErrSourceOpen = errors.New("video source unavailable")

	// ErrBadFrame wraps a single frame that could not be read or decoded.
	// It is transient; the next call to Next may succeed.
	ErrBadFrame = errors.New("bad frame")
)

// Source is a sequence of frames. Next returns io.EOF at the end of the
// sequence, distinct from decode failures which wrap ErrBadFrame.
// A Source is used by a single goroutine.
type Source interface {
	Next(ctx context.Context) (*types.Frame, error)
	Rewind() error
	Close() error
}

// Options configures Open.
type Options struct {
	FFmpegPath string // ffmpeg binary for file sources
	RealTime   bool   // pace file decoding at native frame rate (-re)
}

// Open opens path as a frame source. Directories become a DirSource,
// regular files an FFmpegSource. Any failure here is fatal to the caller.
func Open(path string, opts Options) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceOpen, err)
	}

	if info.IsDir() {
		src, err := NewDirSource(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceOpen, err)
		}
		logger.Info("Video", "Looping %d images from %s", src.Len(), path)
		return src, nil
	}

	src, err := NewFFmpegSource(path, opts.FFmpegPath, opts.RealTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceOpen, err)
	}
	return src, nil
}
