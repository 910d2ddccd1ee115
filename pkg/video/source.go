// Package video turns frame sources into dense video tensors.
//
// A FrameSource is a sequential frame decoder over one capture. Decoding a
// whole source yields a Matrix, the (frame, row, col) intensity tensor that
// the rest of the pipeline reshapes into an observation matrix.
package video

import (
	"image"
	"io"

	"github.com/pkg/errors"
)

// FrameSource yields the frames of one capture in order.
//
// Next returns io.EOF once the stream is exhausted. Any other error is a
// decode failure for the source. Close releases the underlying handle and
// must be safe to call more than once.
type FrameSource interface {
	Next() (image.Image, error)
	Close() error
}

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("frame source is closed")

// SliceSource serves frames already held in memory.
type SliceSource struct {
	frames []image.Image
	pos    int
	closed bool
}

// NewSliceSource creates a source over frames.
func NewSliceSource(frames ...image.Image) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Next() (image.Image, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *SliceSource) Closed() bool {
	return s.closed
}
