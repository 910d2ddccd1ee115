package video

import (
	"fmt"
	"image"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	"thermopct/internal/models"
	"thermopct/pkg/pcterrors"
)

// Matrix is a grayscale video held as a dense 3D tensor.
//
// Data is stored in row-major (frame, row, col) order, so frame f occupies
// Data[f*Height*Width : (f+1)*Height*Width]. Intensities keep the 0-255 scale
// of the source frames.
type Matrix struct {
	// Data holds Frames*Height*Width intensity samples
	Data []float64

	// Frames is the number of frames in the video
	Frames int

	// Height and Width are the frame dimensions in pixels
	Height int
	Width  int
}

// NewMatrix allocates a zeroed tensor.
func NewMatrix(frames, height, width int) *Matrix {
	return &Matrix{
		Data:   make([]float64, frames*height*width),
		Frames: frames,
		Height: height,
		Width:  width,
	}
}

// Pixels returns the number of pixels per frame.
func (m *Matrix) Pixels() int {
	return m.Height * m.Width
}

// At returns the sample at column x, row y of frame f.
func (m *Matrix) At(x, y, f int) float64 {
	return m.Data[f*m.Pixels()+y*m.Width+x]
}

// Set stores v at column x, row y of frame f.
func (m *Matrix) Set(x, y, f int, v float64) {
	m.Data[f*m.Pixels()+y*m.Width+x] = v
}

// Frame returns frame f as a row-major slice sharing the tensor's storage.
func (m *Matrix) Frame(f int) []float64 {
	size := m.Pixels()
	return m.Data[f*size : (f+1)*size]
}

// Decode materializes frames into a tensor, converting each one to 8-bit
// luma. All frames must share the first frame's dimensions.
func Decode(frames []image.Image) (*Matrix, error) {
	if len(frames) == 0 {
		return nil, pcterrors.Decode("decode", "", fmt.Errorf("no frames to decode"))
	}

	bounds := frames[0].Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, pcterrors.Decode("decode", "frame 0", fmt.Errorf("empty frame"))
	}

	m := NewMatrix(len(frames), height, width)
	for i, frame := range frames {
		b := frame.Bounds()
		if b.Dx() != width || b.Dy() != height {
			return nil, pcterrors.Decode("decode", fmt.Sprintf("frame %d", i),
				fmt.Errorf("frame is %dx%d, expected %dx%d", b.Dx(), b.Dy(), width, height))
		}

		gray := Grayscale(frame)
		dst := m.Frame(i)
		for y := 0; y < height; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+width]
			for x, v := range row {
				dst[y*width+x] = float64(v)
			}
		}
	}

	return m, nil
}

// ReadAll drains src and decodes every frame. src is closed on return.
func ReadAll(src FrameSource) (m *Matrix, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = pcterrors.Decode("decode", "", cerr)
		}
	}()

	var frames []image.Image
	for {
		frame, nerr := src.Next()
		if nerr == io.EOF {
			break
		}
		if nerr != nil {
			return nil, asDecodeError(nerr, len(frames))
		}
		frames = append(frames, frame)
	}

	return Decode(frames)
}

// Crop returns a new tensor holding roi of every frame.
func (m *Matrix) Crop(roi models.ROI) (*Matrix, error) {
	if err := roi.Validate(m.Width, m.Height); err != nil {
		return nil, pcterrors.InvalidRegion("crop", "", err)
	}

	out := NewMatrix(m.Frames, roi.Height, roi.Width)
	for f := 0; f < m.Frames; f++ {
		src, dst := m.Frame(f), out.Frame(f)
		for y := 0; y < roi.Height; y++ {
			start := (roi.Y+y)*m.Width + roi.X
			copy(dst[y*roi.Width:(y+1)*roi.Width], src[start:start+roi.Width])
		}
	}
	return out, nil
}

// Observation reshapes the tensor into a (pixels x frames) matrix: row p is
// the time series of pixel p, column f is frame f flattened row by row.
func (m *Matrix) Observation() *mat.Dense {
	pixels := m.Pixels()
	data := make([]float64, pixels*m.Frames)
	for f := 0; f < m.Frames; f++ {
		frame := m.Frame(f)
		for p, v := range frame {
			data[p*m.Frames+f] = v
		}
	}
	return mat.NewDense(pixels, m.Frames, data)
}

// FromObservation rebuilds a tensor from a (pixels x frames) observation
// matrix with frames of height x width.
func FromObservation(obs mat.Matrix, height, width int) (*Matrix, error) {
	pixels, frames := obs.Dims()
	if pixels != height*width {
		return nil, fmt.Errorf("observation has %d rows, expected %dx%d=%d", pixels, height, width, height*width)
	}

	m := NewMatrix(frames, height, width)
	for p := 0; p < pixels; p++ {
		for f := 0; f < frames; f++ {
			m.Data[f*pixels+p] = obs.At(p, f)
		}
	}
	return m, nil
}

// FrameImage renders frame f as an 8-bit gray image, rounding and clamping
// samples to [0, 255].
func (m *Matrix) FrameImage(f int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Frame(f) {
		img.Pix[i] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
	return img
}

// Images renders every frame as an 8-bit gray image.
func (m *Matrix) Images() []image.Image {
	images := make([]image.Image, m.Frames)
	for f := range images {
		images[f] = m.FrameImage(f)
	}
	return images
}

// MeanImage returns the per-pixel mean across all frames.
func (m *Matrix) MeanImage() *models.Map {
	mean := models.NewMap(m.Width, m.Height)
	if m.Frames == 0 {
		return mean
	}
	for f := 0; f < m.Frames; f++ {
		for p, v := range m.Frame(f) {
			mean.Data[p] += v
		}
	}
	for p := range mean.Data {
		mean.Data[p] /= float64(m.Frames)
	}
	return mean
}

func asDecodeError(err error, frame int) error {
	switch err.(type) {
	case *pcterrors.DecodeError, *pcterrors.InvalidRegionError:
		return err
	}
	return pcterrors.Decode("decode", fmt.Sprintf("frame %d", frame), err)
}
