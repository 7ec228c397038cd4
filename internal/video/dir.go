package video

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dj-oyu/reefwatch/pkg/types"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// DirSource plays the images of a directory in lexical order.
type DirSource struct {
	files    []string
	pos      int
	frameNum uint64
	loops    uint64
}

// NewDirSource lists the images in dir. A directory without images is an error.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)

	return &DirSource{files: files}, nil
}

// Len returns the number of frames in one pass.
func (s *DirSource) Len() int {
	return len(s.files)
}

// Next decodes the next image. It returns io.EOF after the last one.
func (s *DirSource) Next(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.files) {
		return nil, io.EOF
	}

	path := s.files[s.pos]
	s.pos++

	img, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadFrame, filepath.Base(path), err)
	}

	s.frameNum++
	return &types.Frame{
		Image:     img,
		Timestamp: time.Now(),
		FrameNum:  s.frameNum,
		Loop:      s.loops,
	}, nil
}

// Rewind restarts from the first image.
func (s *DirSource) Rewind() error {
	s.pos = 0
	s.loops++
	return nil
}

// Close is a no-op.
func (s *DirSource) Close() error {
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
