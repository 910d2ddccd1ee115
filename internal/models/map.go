package models

import (
	"fmt"
	"math"
)

// Map is a 2D spatial map of real-valued intensities in row-major order.
// EOFs, phase images and cold-subtraction difference maps are all Maps.
type Map struct {
	// Data holds Height*Width values, row by row
	Data []float64

	// Width and Height are the dimensions of the map in pixels
	Width  int
	Height int
}

// NewMap allocates a zeroed map.
func NewMap(width, height int) *Map {
	return &Map{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// MapFromData wraps data as a width x height map without copying.
func MapFromData(data []float64, width, height int) (*Map, error) {
	if len(data) != width*height {
		return nil, fmt.Errorf("map data has %d values, want %dx%d", len(data), width, height)
	}
	return &Map{Data: data, Width: width, Height: height}, nil
}

// At returns the value at column x, row y.
func (m *Map) At(x, y int) float64 {
	return m.Data[y*m.Width+x]
}

// Set stores v at column x, row y.
func (m *Map) Set(x, y int, v float64) {
	m.Data[y*m.Width+x] = v
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	return &Map{Data: data, Width: m.Width, Height: m.Height}
}

// IsFinite reports whether every value is neither NaN nor infinite.
func (m *Map) IsFinite() bool {
	for _, v := range m.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
