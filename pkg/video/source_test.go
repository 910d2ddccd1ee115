package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"thermopct/pkg/pcterrors"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, png.Encode(file, img))
}

func TestImageSequenceSourceOrdersByNumber(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 12; i++ {
		frame := createGrayFrame(3, 2, func(x, y int) uint8 { return uint8(i * 10) })
		writePNG(t, filepath.Join(dir, fmt.Sprintf("frame_%d.png", i)), frame)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	src, err := NewImageSequenceSource(dir)
	require.NoError(t, err)
	assert.Equal(t, 12, src.Len())

	m, err := ReadAll(src)
	require.NoError(t, err)
	require.Equal(t, 12, m.Frames)
	for f := 0; f < m.Frames; f++ {
		assert.Equal(t, float64(f*10), m.At(2, 1, f), "frame %d out of order", f)
	}
}

func TestImageSequenceSourceReadsTIFF(t *testing.T) {
	dir := t.TempDir()
	frame := createGrayFrame(4, 4, func(x, y int) uint8 { return uint8(x * y * 10) })

	file, err := os.Create(filepath.Join(dir, "000.tif"))
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(file, frame, nil))
	require.NoError(t, file.Close())

	src, err := NewImageSequenceSource(dir)
	require.NoError(t, err)
	img, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.Pix, Grayscale(img).Pix)

	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestImageSequenceSourceErrors(t *testing.T) {
	_, err := NewImageSequenceSource(filepath.Join(t.TempDir(), "missing"))
	var decodeErr *pcterrors.DecodeError
	assert.True(t, errors.As(err, &decodeErr))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.png"), []byte("not a png"), 0644))
	src, err := NewImageSequenceSource(dir)
	require.NoError(t, err)
	_, err = src.Next()
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, filepath.Join(dir, "1.png"), decodeErr.Subject)
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 12, extractNumber("frame_0012.png"))
	assert.Equal(t, 3, extractNumber("/tmp/x/3.tiff"))
	assert.Equal(t, -1, extractNumber("cover.png"))
}

func TestParseFrameSize(t *testing.T) {
	w, h, err := parseFrameSize("640x480\n")
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	w, h, err = parseFrameSize("320x240x\n")
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)

	_, _, err = parseFrameSize("")
	assert.Error(t, err)
	_, _, err = parseFrameSize("0x10")
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendFFmpeg, b)

	b, err = ParseBackend(" Images ")
	require.NoError(t, err)
	assert.Equal(t, BackendImages, b)

	_, err = ParseBackend("vlc")
	assert.Error(t, err)
}

func TestFFmpegSourceDecodesLosslessVideo(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping ffmpeg subprocess test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available: %v", bin, err)
		}
	}

	dir := t.TempDir()
	frames := createTestFrames(6, 8, 6)
	for i, frame := range frames {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("frame_%02d.png", i)), frame)
	}
	videoPath := filepath.Join(dir, "capture.mkv")
	cmd := exec.Command("ffmpeg", "-y", "-v", "error",
		"-framerate", "5",
		"-i", filepath.Join(dir, "frame_%02d.png"),
		"-c:v", "ffv1", "-pix_fmt", "gray",
		videoPath)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, string(output))

	src, err := Open(context.Background(), videoPath, OpenOptions{Backend: BackendFFmpeg})
	require.NoError(t, err)

	m, err := ReadAll(src)
	require.NoError(t, err)
	require.Equal(t, 6, m.Frames)
	assert.Equal(t, 6, m.Height)
	assert.Equal(t, 8, m.Width)

	expected, err := Decode(frames)
	require.NoError(t, err)
	assert.Equal(t, expected.Data, m.Data)
}

func TestFFmpegSourceMissingFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skipf("ffprobe not available: %v", err)
	}
	_, err := NewFFmpegSource(context.Background(), filepath.Join(t.TempDir(), "none.mp4"), FFmpegOptions{})
	var decodeErr *pcterrors.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "probe", decodeErr.Stage)
}

func TestOpenGocvWithoutTag(t *testing.T) {
	src, err := Open(context.Background(), "capture.mp4", OpenOptions{Backend: BackendGocv})
	if err == nil {
		// Built with -tags gocv; the file does not exist so reading must fail or end
		defer src.Close()
		_, err = src.Next()
	}
	assert.Error(t, err)
}
