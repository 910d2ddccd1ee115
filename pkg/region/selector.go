package region

import (
	"image"

	"thermopct/internal/models"
)

// Selector supplies the region of interest given the first usable frame of
// the first video. Interactive pickers live outside this package; the
// synchronizer treats the returned rectangle as opaque and only validates it.
type Selector interface {
	Select(first image.Image) (models.ROI, error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(first image.Image) (models.ROI, error)

func (f SelectorFunc) Select(first image.Image) (models.ROI, error) {
	return f(first)
}

// Fixed returns a selector that always answers roi.
func Fixed(roi models.ROI) Selector {
	return SelectorFunc(func(image.Image) (models.ROI, error) {
		return roi, nil
	})
}

// FullFrame selects the whole frame.
type FullFrame struct{}

func (FullFrame) Select(first image.Image) (models.ROI, error) {
	return models.FullFrame(first.Bounds()), nil
}
