//go:build gocv

package video

import (
	"image"
	"io"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"thermopct/pkg/pcterrors"
)

// GocvSource decodes a video container through OpenCV's VideoCapture.
// Multi-channel frames are converted with COLOR_BGR2GRAY.
type GocvSource struct {
	path    string
	capture *gocv.VideoCapture
	frame   gocv.Mat
	gray    gocv.Mat
	closed  bool
}

// NewGocvSource opens path with OpenCV.
func NewGocvSource(path string) (*GocvSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, pcterrors.Decode("open", path, errors.Wrap(err, "opening video capture"))
	}
	return &GocvSource{
		path:    path,
		capture: capture,
		frame:   gocv.NewMat(),
		gray:    gocv.NewMat(),
	}, nil
}

// FPS returns the frame rate reported by the container.
func (s *GocvSource) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

func (s *GocvSource) Next() (image.Image, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, io.EOF
	}

	src := s.frame
	if s.frame.Channels() > 1 {
		gocv.CvtColor(s.frame, &s.gray, gocv.ColorBGRToGray)
		src = s.gray
	}

	// ToImage copies the pixels, so the Mats can be reused for the next read.
	img, err := src.ToImage()
	if err != nil {
		return nil, pcterrors.Decode("decode", s.path, errors.Wrap(err, "converting frame"))
	}
	return img, nil
}

func (s *GocvSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.frame.Close()
	s.gray.Close()
	return s.capture.Close()
}

func openGocv(path string) (FrameSource, error) {
	return NewGocvSource(path)
}
