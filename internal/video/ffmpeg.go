package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/pkg/types"
)

const maxJPEGSize = 16 << 20

// FFmpegSource decodes a video file by piping it through ffmpeg as a
// sequence of JPEG images (image2pipe / mjpeg).
type FFmpegSource struct {
	path     string
	ffmpeg   string
	realTime bool

	cmd     *exec.Cmd
	stdout  io.ReadCloser
	scanner *bufio.Scanner
	stderr  *tailBuffer

	pending  *types.Frame // first frame, read while probing in NewFFmpegSource
	frameNum uint64
	loops    uint64
}

// NewFFmpegSource starts ffmpeg on path and decodes the first frame, so an
// unreadable or undecodable file fails here rather than in the loop.
func NewFFmpegSource(path, ffmpegPath string, realTime bool) (*FFmpegSource, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	bin, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	s := &FFmpegSource{path: path, ffmpeg: bin, realTime: realTime}
	first, err := s.Next(context.Background())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	s.pending = first

	logger.Info("Video", "Opened %s via %s (%dx%d)", path, bin, first.Width(), first.Height())
	return s, nil
}

func (s *FFmpegSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if s.realTime {
		args = append(args, "-re")
	}
	return append(args,
		"-i", s.path,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

func (s *FFmpegSource) start() error {
	cmd := exec.Command(s.ffmpeg, s.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	s.stderr = &tailBuffer{max: 4096}
	cmd.Stderr = s.stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), maxJPEGSize)
	scanner.Split(SplitJPEG)

	s.cmd = cmd
	s.stdout = stdout
	s.scanner = scanner
	logger.Debug("Video", "ffmpeg started (pid %d)", cmd.Process.Pid)
	return nil
}

// stop waits for (or kills) the running ffmpeg and returns its exit error.
func (s *FFmpegSource) stop(kill bool) error {
	if s.cmd == nil {
		return nil
	}
	if kill && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	s.cmd, s.stdout, s.scanner = nil, nil, nil
	if kill {
		return nil
	}
	if err != nil {
		if msg := s.stderr.String(); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
	}
	return err
}

// Next returns the next decoded frame, io.EOF when the file is exhausted.
// If ffmpeg died, the next call restarts it from the beginning.
func (s *FFmpegSource) Next(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pending != nil {
		f := s.pending
		s.pending = nil
		return f, nil
	}

	if s.cmd == nil {
		if err := s.start(); err != nil {
			return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrBadFrame, err)
		}
	}

	if !s.scanner.Scan() {
		scanErr := s.scanner.Err()
		waitErr := s.stop(scanErr != nil)
		switch {
		case scanErr != nil:
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, scanErr)
		case waitErr != nil:
			return nil, fmt.Errorf("%w: ffmpeg exited: %v", ErrBadFrame, waitErr)
		default:
			return nil, io.EOF
		}
	}

	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	s.frameNum++
	return &types.Frame{
		Image:     img,
		Timestamp: time.Now(),
		FrameNum:  s.frameNum,
		Loop:      s.loops,
	}, nil
}

// Rewind kills any running ffmpeg; the next call to Next starts from frame one.
func (s *FFmpegSource) Rewind() error {
	s.pending = nil
	s.loops++
	return s.stop(true)
}

// Close terminates ffmpeg.
func (s *FFmpegSource) Close() error {
	return s.stop(true)
}

// SplitJPEG is a bufio.SplitFunc yielding whole JPEG images (SOI..EOI) from a
// concatenated stream. Bytes before an SOI marker are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a trailing 0xFF, it may be the first half of a marker
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
