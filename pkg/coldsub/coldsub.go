// Package coldsub computes the difference between the time-averaged images of
// two aligned videos, typically a specimen recorded after heating and the
// same specimen recorded cold.
package coldsub

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"thermopct/internal/models"
	"thermopct/pkg/normalize"
	"thermopct/pkg/pcterrors"
	"thermopct/pkg/video"
)

// Policy controls how negative differences are represented.
type Policy int

const (
	// Signed keeps the exact difference in [-255, 255].
	Signed Policy = iota
	// Clip clamps the difference to [0, 255].
	Clip
	// Wrap reduces the difference modulo 256, as unsigned 8-bit arithmetic does.
	Wrap
)

func (p Policy) String() string {
	switch p {
	case Signed:
		return "signed"
	case Clip:
		return "clip"
	case Wrap:
		return "wrap"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "signed", "clip" or "wrap" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "signed":
		return Signed, nil
	case "clip":
		return Clip, nil
	case "wrap":
		return Wrap, nil
	default:
		return Signed, fmt.Errorf("unknown cold subtraction policy %q (want signed, clip or wrap)", s)
	}
}

// Subtract returns after - before, where each side is the video's per-pixel
// mean over time, rescaled to the display range and truncated to whole
// intensities. The frame counts of the two videos may differ.
func Subtract(after, before *video.Matrix, policy Policy) (*models.Map, error) {
	if after == nil || before == nil {
		return nil, pcterrors.InvalidRegion("cold subtraction", "", errors.New("both videos are required"))
	}
	if after.Width != before.Width || after.Height != before.Height {
		return nil, pcterrors.InvalidRegion("cold subtraction", "video 2",
			errors.Errorf("frame size %dx%d differs from %dx%d", before.Width, before.Height, after.Width, after.Height))
	}
	if after.Frames == 0 || before.Frames == 0 {
		return nil, pcterrors.InvalidRegion("cold subtraction", "", errors.New("videos must contain frames"))
	}

	hot := levels(after)
	cold := levels(before)

	diff := models.NewMap(after.Width, after.Height)
	for i := range diff.Data {
		d := hot[i] - cold[i]
		switch policy {
		case Clip:
			d = math.Max(0, math.Min(255, d))
		case Wrap:
			d = float64(uint8(int(d)))
		case Signed:
		default:
			return nil, fmt.Errorf("unknown cold subtraction policy %v", policy)
		}
		diff.Data[i] = d
	}
	return diff, nil
}

// levels is the mean image of m as whole 8-bit intensities.
func levels(m *video.Matrix) []float64 {
	out := normalize.Rescale(m.MeanImage().Data)
	for i, v := range out {
		out[i] = math.Trunc(v)
	}
	return out
}
