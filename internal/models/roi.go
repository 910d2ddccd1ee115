package models

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// ROI is an axis-aligned region of interest in pixel coordinates.
// The same ROI is applied to both videos of a capture pair.
type ROI struct {
	// X, Y are the top-left corner of the region
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`

	// Width, Height are the size of the region in pixels
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// NewROI creates a region from its corner and size.
func NewROI(x, y, width, height int) ROI {
	return ROI{X: x, Y: y, Width: width, Height: height}
}

// ParseROI parses "x,y,width,height". Whitespace around each number is
// ignored. Bounds are not checked here; see Validate.
func ParseROI(s string) (ROI, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return ROI{}, fmt.Errorf("region %q must be x,y,width,height", s)
	}

	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return ROI{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return NewROI(v[0], v[1], v[2], v[3]), nil
}

// FullFrame returns the region covering a whole frame of the given bounds.
func FullFrame(bounds image.Rectangle) ROI {
	return ROI{X: 0, Y: 0, Width: bounds.Dx(), Height: bounds.Dy()}
}

// IsEmpty reports whether the region has no area.
func (r ROI) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Rect returns the region as an image.Rectangle relative to a frame origin.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Validate checks 0 <= x, y and x+width <= frameWidth, y+height <= frameHeight.
func (r ROI) Validate(frameWidth, frameHeight int) error {
	if r.IsEmpty() {
		return fmt.Errorf("region %s has zero size", r)
	}
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("region %s has a negative origin", r)
	}
	if r.Width > frameWidth-r.X || r.Height > frameHeight-r.Y {
		return fmt.Errorf("region %s exceeds frame %dx%d", r, frameWidth, frameHeight)
	}
	return nil
}

func (r ROI) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}
