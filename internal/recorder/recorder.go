package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dj-oyu/reefwatch/internal/logger"
)

// Recorder appends annotated JPEG frames to a .mjpeg file
// (a bare concatenation of JPEG images, playable by ffplay/VLC).
type Recorder struct {
	mu        sync.RWMutex
	basePath  string
	recording bool
	session   *session // Active session, or the last finished one
	now       func() time.Time

	// OnWrite, if set, is called after every frame with the running totals.
	OnWrite func(frames, bytes uint64)
}

// session owns one output file and its writer goroutine. A Stop finalizes
// only the session it captured, so a Start that races with it gets a fresh
// file, queue and writer.
type session struct {
	file         *os.File
	w            *bufio.Writer
	path         string
	frameCount   uint64
	bytesWritten uint64
	startTime    time.Time
	stopTime     time.Time
	frames       chan []byte
	stop         chan struct{}
	done         chan struct{}
}

// NewRecorder creates a new recorder
func NewRecorder(basePath string) *Recorder {
	return &Recorder{
		basePath: basePath,
		now:      time.Now,
	}
}

// Start starts recording to a new file and returns its path.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", fmt.Errorf("already recording")
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}

	startTime := r.now()
	filename := fmt.Sprintf("recording_%s.mjpeg", startTime.Format("20060102_150405"))
	path := filepath.Join(r.basePath, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	sess := &session{
		file:      file,
		w:         bufio.NewWriterSize(file, 256<<10),
		path:      path,
		startTime: startTime,
		frames:    make(chan []byte, 60),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.session = sess
	r.recording = true

	go r.writeFrames(sess)

	logger.Info("Recorder", "Recording to %s", path)
	return path, nil
}

// Stop stops recording and returns the finished file path.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", fmt.Errorf("not recording")
	}
	sess := r.session
	r.recording = false
	sess.stopTime = time.Now()
	// SendFrame enqueues under the read lock, so nothing reaches sess.frames
	// after this point.
	close(sess.stop)
	r.mu.Unlock()

	<-sess.done

	path := sess.path
	if err := sess.w.Flush(); err != nil {
		_ = sess.file.Close()
		return path, fmt.Errorf("failed to flush file: %w", err)
	}
	if err := sess.file.Sync(); err != nil {
		_ = sess.file.Close()
		return path, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := sess.file.Close(); err != nil {
		return path, fmt.Errorf("failed to close file: %w", err)
	}

	r.mu.RLock()
	frames, bytes := sess.frameCount, sess.bytesWritten
	r.mu.RUnlock()
	logger.Info("Recorder", "Stopped %s (%d frames, %d bytes)", path, frames, bytes)
	return path, nil
}

// SendFrame queues one JPEG for writing (non-blocking). It reports false when
// not recording or when the queue is full.
func (r *Recorder) SendFrame(jpeg []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.recording {
		return false
	}

	select {
	case r.session.frames <- jpeg:
		return true
	default:
		return false
	}
}

func (r *Recorder) writeFrames(sess *session) {
	defer close(sess.done)

	for {
		select {
		case frame := <-sess.frames:
			r.writeFrame(sess, frame)
		case <-sess.stop:
			// Drain remaining frames
			for {
				select {
				case frame := <-sess.frames:
					r.writeFrame(sess, frame)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeFrame(sess *session, jpeg []byte) {
	// Only this goroutine touches sess.w until done is closed.
	n, err := sess.w.Write(jpeg)
	if err != nil {
		logger.Warn("Recorder", "Write failed: %v", err)
		return
	}

	r.mu.Lock()
	sess.bytesWritten += uint64(n)
	sess.frameCount++
	frames, bytes := sess.frameCount, sess.bytesWritten
	onWrite := r.OnWrite
	r.mu.Unlock()

	if onWrite != nil {
		onWrite(frames, bytes)
	}
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// GetStatus returns the current recording status
func (r *Recorder) GetStatus() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess := r.session
	if sess == nil {
		return RecordingStatus{}
	}

	var duration time.Duration
	switch {
	case r.recording:
		duration = time.Since(sess.startTime)
	case !sess.stopTime.IsZero():
		duration = sess.stopTime.Sub(sess.startTime)
	}

	name := sess.path
	return RecordingStatus{
		Recording:    r.recording,
		Filename:     &name,
		FrameCount:   sess.frameCount,
		BytesWritten: sess.bytesWritten,
		DurationMs:   duration.Milliseconds(),
		StartTime:    sess.startTime,
	}
}

// Close stops any active recording.
func (r *Recorder) Close() error {
	if r.IsRecording() {
		_, err := r.Stop()
		return err
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     *string   `json:"filename"`
	FrameCount   uint64    `json:"frame_count"`
	BytesWritten uint64    `json:"bytes_written"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}
