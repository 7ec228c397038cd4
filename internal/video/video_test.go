package video

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{shade, shade, shade, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	for i, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), encodeJPEG(t, uint8(i*40)), 0o644))
	}
}

func TestDirSourceOrderAndEOF(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "b.jpg", "a.jpg", "c.jpeg")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	require.Equal(t, 3, src.Len())

	ctx := context.Background()
	for want := uint64(1); want <= 3; want++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, f.FrameNum)
		assert.Equal(t, 8, f.Width())
		assert.Equal(t, 6, f.Height())
	}

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestDirSourceRewindLoops(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "0001.jpg", "0002.jpg")

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, io.EOF)

	require.NoError(t, src.Rewind())
	again, err := src.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Image.Bounds(), again.Image.Bounds())
	assert.Equal(t, uint64(0), first.Loop)
	assert.Equal(t, uint64(1), again.Loop)
	assert.Equal(t, uint64(3), again.FrameNum, "frame numbers keep counting across loops")
}

func TestDirSourceBadFrameIsTransient(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "a.jpg")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("not a jpeg"), 0o644))
	writeFrames(t, dir, "c.jpg")

	src, err := NewDirSource(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, ErrBadFrame)
	_, err = src.Next(ctx)
	require.NoError(t, err)
}

func TestOpenMissingPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp4"), Options{})
	require.ErrorIs(t, err, ErrSourceOpen)
}

func TestOpenEmptyDirectory(t *testing.T) {
	_, err := Open(t.TempDir(), Options{})
	require.ErrorIs(t, err, ErrSourceOpen)
}

func TestOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "a.png.jpg")

	src, err := Open(dir, Options{})
	require.NoError(t, err)
	defer src.Close()
	_, ok := src.(*DirSource)
	require.True(t, ok)
}

func TestOpenFileWithoutFFmpeg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := Open(path, Options{FFmpegPath: "/nonexistent-ffmpeg"})
	require.ErrorIs(t, err, ErrSourceOpen)
}

func TestSplitJPEG(t *testing.T) {
	a := encodeJPEG(t, 10)
	b := encodeJPEG(t, 200)

	var stream bytes.Buffer
	stream.WriteString("junk")
	stream.Write(a)
	stream.Write(b)
	stream.Write([]byte{0xFF, 0xD8, 0x00}) // truncated trailing image

	scanner := bufio.NewScanner(&stream)
	scanner.Buffer(make([]byte, 0, 64), maxJPEGSize)
	scanner.Split(SplitJPEG)

	var parts [][]byte
	for scanner.Scan() {
		parts = append(parts, append([]byte(nil), scanner.Bytes()...))
	}
	require.NoError(t, scanner.Err())
	require.Len(t, parts, 2)
	assert.Equal(t, a, parts[0])
	assert.Equal(t, b, parts[1])

	for _, p := range parts {
		_, err := jpeg.Decode(bytes.NewReader(p))
		require.NoError(t, err)
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	tb := &tailBuffer{max: 5}
	_, _ = tb.Write([]byte("hello "))
	_, _ = tb.Write([]byte("world"))
	assert.Equal(t, "world", tb.String())
}
