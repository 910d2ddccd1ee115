package normalize

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"

	"thermopct/internal/models"
)

// Rescale linearly maps the [min, max] range of values onto [0, 255] for
// display. A constant input has no range to stretch; its values are clamped
// to [0, 255] and otherwise left unchanged. Rescale is never applied inside
// the decomposition path.
func Rescale(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := floats.Min(values), floats.Max(values)
	if hi == lo {
		for i, v := range values {
			out[i] = clamp255(v)
		}
		return out
	}

	span := hi - lo
	for i, v := range values {
		out[i] = (v - lo) / span * 255
	}
	return out
}

// RescaleMap returns a display-range copy of m.
func RescaleMap(m *models.Map) *models.Map {
	return &models.Map{Data: Rescale(m.Data), Width: m.Width, Height: m.Height}
}

// ToGray8 rescales m and truncates it to an 8-bit image, matching how the
// values would be stored in a uint8 frame.
func ToGray8(m *models.Map) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range Rescale(m.Data) {
		img.Pix[i] = uint8(v)
	}
	return img
}

func clamp255(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}
