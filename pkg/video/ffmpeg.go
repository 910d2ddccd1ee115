package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"thermopct/pkg/pcterrors"
)

// FFmpegOptions locates the ffmpeg binaries. Empty paths resolve through PATH.
type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
}

func (o FFmpegOptions) ffmpeg() string {
	if o.FFmpegPath == "" {
		return "ffmpeg"
	}
	return o.FFmpegPath
}

func (o FFmpegOptions) ffprobe() string {
	if o.FFprobePath == "" {
		return "ffprobe"
	}
	return o.FFprobePath
}

// FFmpegSource decodes a video container by piping ffmpeg's raw 8-bit gray
// output. The frame size is probed once with ffprobe before decoding starts.
type FFmpegSource struct {
	path   string
	width  int
	height int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer

	frames int
	waited bool
	closed bool
}

// NewFFmpegSource probes path and starts the decoder. The subprocess is killed
// when ctx is cancelled or when the source is closed.
func NewFFmpegSource(ctx context.Context, path string, opts FFmpegOptions) (*FFmpegSource, error) {
	width, height, err := probeFrameSize(ctx, path, opts)
	if err != nil {
		return nil, pcterrors.Decode("probe", path, err)
	}

	cmd := exec.CommandContext(ctx, opts.ffmpeg(),
		"-v", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-",
	)

	s := &FFmpegSource{path: path, width: width, height: height, cmd: cmd}
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, pcterrors.Decode("open", path, errors.Wrap(err, "ffmpeg stdout"))
	}
	if err := cmd.Start(); err != nil {
		return nil, pcterrors.Decode("open", path, errors.Wrap(err, "starting ffmpeg"))
	}

	s.stdout = stdout
	s.reader = bufio.NewReaderSize(stdout, width*height)
	return s, nil
}

// Size returns the probed frame width and height.
func (s *FFmpegSource) Size() (int, int) {
	return s.width, s.height
}

func (s *FFmpegSource) Next() (image.Image, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.waited {
		return nil, io.EOF
	}

	buf := make([]byte, s.width*s.height)
	_, err := io.ReadFull(s.reader, buf)
	switch {
	case err == io.EOF:
		if werr := s.wait(); werr != nil {
			return nil, pcterrors.Decode("decode", s.path, werr)
		}
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		s.wait()
		return nil, pcterrors.Decode("decode", s.path,
			errors.Errorf("truncated frame %d", s.frames))
	case err != nil:
		return nil, pcterrors.Decode("decode", s.path, errors.Wrap(err, "reading ffmpeg output"))
	}

	s.frames++
	return &image.Gray{
		Pix:    buf,
		Stride: s.width,
		Rect:   image.Rect(0, 0, s.width, s.height),
	}, nil
}

// Close stops the decoder if it is still running and releases the pipe.
func (s *FFmpegSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.waited {
		return nil
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.waited = true
	s.cmd.Wait()
	return nil
}

func (s *FFmpegSource) wait() error {
	if s.waited {
		return nil
	}
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		return errors.Wrapf(err, "ffmpeg: %s", strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

func probeFrameSize(ctx context.Context, path string, opts FFmpegOptions) (int, int, error) {
	cmd := exec.CommandContext(ctx, opts.ffprobe(),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0:s=x",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, errors.Wrap(err, "ffprobe")
	}
	return parseFrameSize(string(output))
}

// parseFrameSize reads ffprobe's "WIDTHxHEIGHT" output.
func parseFrameSize(output string) (int, int, error) {
	line := strings.TrimSpace(output)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.TrimSuffix(line, "x")

	var width, height int
	if _, err := fmt.Sscanf(line, "%dx%d", &width, &height); err != nil {
		return 0, 0, errors.Wrapf(err, "parsing frame size %q", line)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, errors.Errorf("invalid frame size %dx%d", width, height)
	}
	return width, height, nil
}
