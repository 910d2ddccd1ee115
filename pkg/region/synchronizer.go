// Package region aligns independently captured videos to a shared region of
// interest and a common temporal start.
//
// Alignment runs in three steps for each source:
//  1. Leading blank frames (mean intensity below a threshold) are skipped.
//  2. A region of interest is obtained once, from the first retained frame of
//     the first video, and applied to both videos.
//  3. The first retained frame and every later frame are cropped to the region.
package region

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"thermopct/internal/logger"
	"thermopct/internal/models"
	"thermopct/pkg/pcterrors"
	"thermopct/pkg/video"
)

// DefaultBlankThreshold is the mean 8-bit intensity below which a leading
// frame is treated as blank.
const DefaultBlankThreshold = 1.0

// LengthPolicy decides what happens when the two aligned videos end up with
// different frame counts.
type LengthPolicy int

const (
	// Independent keeps every frame of each video; lengths may differ.
	Independent LengthPolicy = iota
	// TruncateToShorter drops trailing frames so both videos have the
	// length of the shorter one.
	TruncateToShorter
)

func (p LengthPolicy) String() string {
	switch p {
	case Independent:
		return "independent"
	case TruncateToShorter:
		return "truncate"
	default:
		return fmt.Sprintf("LengthPolicy(%d)", int(p))
	}
}

// ParseLengthPolicy maps "independent" or "truncate" to a LengthPolicy.
func ParseLengthPolicy(s string) (LengthPolicy, error) {
	switch s {
	case "", "independent":
		return Independent, nil
	case "truncate", "truncate-to-shorter":
		return TruncateToShorter, nil
	default:
		return Independent, fmt.Errorf("unknown length policy %q (want independent or truncate)", s)
	}
}

// Sequence is one aligned, cropped video.
type Sequence struct {
	// Frames are the cropped frames, all Width x Height of the region
	Frames []image.Image

	// Skipped is the number of leading blank frames dropped from the source
	Skipped int
}

// Pair holds two videos aligned to the same region.
type Pair struct {
	ROI    models.ROI
	First  Sequence
	Second Sequence
}

// Synchronizer aligns frame sources.
type Synchronizer struct {
	// BlankThreshold is the mean intensity a frame must reach to end the
	// leading blank run
	BlankThreshold float64

	// Lengths chooses how unequal aligned lengths are handled
	Lengths LengthPolicy

	log *zap.Logger
}

// NewSynchronizer creates a synchronizer with the default blank threshold and
// the Independent length policy.
func NewSynchronizer(log *zap.Logger) *Synchronizer {
	return &Synchronizer{
		BlankThreshold: DefaultBlankThreshold,
		Lengths:        Independent,
		log:            logger.OrNop(log),
	}
}

// logger tolerates a Synchronizer built without NewSynchronizer.
func (s *Synchronizer) logger() *zap.Logger {
	return logger.OrNop(s.log)
}

// Synchronize aligns first and second to one region chosen by sel from the
// first retained frame of first; a nil sel selects the full frame. Both
// sources are closed before returning.
func (s *Synchronizer) Synchronize(ctx context.Context, first, second video.FrameSource, sel Selector) (*Pair, error) {
	defer first.Close()
	defer second.Close()

	head1, skipped1, err := s.skipBlank(ctx, first, "video 1")
	if err != nil {
		return nil, err
	}
	head2, skipped2, err := s.skipBlank(ctx, second, "video 2")
	if err != nil {
		return nil, err
	}

	roi, err := s.selectRegion(head1, sel)
	if err != nil {
		return nil, err
	}
	b := head2.Bounds()
	if err := roi.Validate(b.Dx(), b.Dy()); err != nil {
		return nil, pcterrors.InvalidRegion("synchronize", "video 2", err)
	}

	frames1, err := s.cropAll(ctx, first, head1, roi, "video 1")
	if err != nil {
		return nil, err
	}
	frames2, err := s.cropAll(ctx, second, head2, roi, "video 2")
	if err != nil {
		return nil, err
	}

	if s.Lengths == TruncateToShorter {
		n := min(len(frames1), len(frames2))
		if len(frames1) != len(frames2) {
			s.logger().Info("truncating aligned videos to the shorter length",
				zap.Int("video1Frames", len(frames1)),
				zap.Int("video2Frames", len(frames2)),
				zap.Int("frames", n))
		}
		frames1, frames2 = frames1[:n], frames2[:n]
	} else if len(frames1) != len(frames2) {
		s.logger().Warn("aligned videos have different lengths",
			zap.Int("video1Frames", len(frames1)),
			zap.Int("video2Frames", len(frames2)))
	}

	return &Pair{
		ROI:    roi,
		First:  Sequence{Frames: frames1, Skipped: skipped1},
		Second: Sequence{Frames: frames2, Skipped: skipped2},
	}, nil
}

// Align runs the same steps on a single source.
func (s *Synchronizer) Align(ctx context.Context, src video.FrameSource, sel Selector) (models.ROI, *Sequence, error) {
	defer src.Close()

	head, skipped, err := s.skipBlank(ctx, src, "video 1")
	if err != nil {
		return models.ROI{}, nil, err
	}
	roi, err := s.selectRegion(head, sel)
	if err != nil {
		return models.ROI{}, nil, err
	}
	frames, err := s.cropAll(ctx, src, head, roi, "video 1")
	if err != nil {
		return models.ROI{}, nil, err
	}
	return roi, &Sequence{Frames: frames, Skipped: skipped}, nil
}

// skipBlank advances src to the first frame whose mean intensity reaches the
// blank threshold and returns it with the number of frames skipped.
func (s *Synchronizer) skipBlank(ctx context.Context, src video.FrameSource, name string) (image.Image, int, error) {
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		frame, err := src.Next()
		if err == io.EOF {
			if skipped == 0 {
				return nil, 0, pcterrors.InvalidRegion("synchronize", name, errors.New("source yielded no frames"))
			}
			return nil, skipped, pcterrors.Decode("synchronize", name,
				errors.Errorf("all %d frames are blank (mean intensity < %g)", skipped, s.BlankThreshold))
		}
		if err != nil {
			return nil, skipped, wrapDecode(err, name)
		}

		if video.MeanIntensity(frame) < s.BlankThreshold {
			skipped++
			continue
		}

		s.logger().Debug("skipped leading blank frames", zap.String("source", name), zap.Int("skipped", skipped))
		return frame, skipped, nil
	}
}

func (s *Synchronizer) selectRegion(head image.Image, sel Selector) (models.ROI, error) {
	if sel == nil {
		sel = FullFrame{}
	}
	roi, err := sel.Select(head)
	if err != nil {
		return models.ROI{}, pcterrors.InvalidRegion("select", "video 1", err)
	}
	b := head.Bounds()
	if err := roi.Validate(b.Dx(), b.Dy()); err != nil {
		return models.ROI{}, pcterrors.InvalidRegion("select", "video 1", err)
	}
	s.logger().Debug("selected region", zap.Stringer("roi", roi))
	return roi, nil
}

// cropAll crops head and every remaining frame of src to roi.
func (s *Synchronizer) cropAll(ctx context.Context, src video.FrameSource, head image.Image, roi models.ROI, name string) ([]image.Image, error) {
	size := head.Bounds().Size()
	frames := []image.Image{video.Crop(head, roi)}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, wrapDecode(err, name)
		}

		if frame.Bounds().Size() != size {
			return nil, pcterrors.Decode("synchronize", name,
				errors.Errorf("frame %d is %v, expected %v", len(frames), frame.Bounds().Size(), size))
		}
		frames = append(frames, video.Crop(frame, roi))
	}
}

func wrapDecode(err error, name string) error {
	switch err.(type) {
	case *pcterrors.DecodeError, *pcterrors.InvalidRegionError:
		return err
	}
	return pcterrors.Decode("synchronize", name, err)
}
