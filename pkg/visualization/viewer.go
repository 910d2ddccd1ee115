package visualization

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"

	"thermopct/internal/models"
	"thermopct/pkg/normalize"
)

// Format is an output encoding for a spatial map.
type Format string

const (
	// PNG stores the display-rescaled map as 8-bit gray
	PNG Format = "png"
	// JPEG stores the display-rescaled map as 8-bit gray, lossy
	JPEG Format = "jpg"
	// TIFF stores the map stretched over the full 16-bit range
	TIFF Format = "tiff"
	// Raw stores the exact float64 values with a width/height header
	Raw Format = "raw"
)

// ParseFormats parses a comma separated list such as "png,tiff,raw".
func ParseFormats(s string) ([]Format, error) {
	var formats []Format
	for _, part := range strings.Split(s, ",") {
		switch f := Format(strings.ToLower(strings.TrimSpace(part))); f {
		case "":
			continue
		case PNG, TIFF, Raw:
			formats = append(formats, f)
		case JPEG, "jpeg":
			formats = append(formats, JPEG)
		case "tif":
			formats = append(formats, TIFF)
		case "bin":
			formats = append(formats, Raw)
		default:
			return nil, fmt.Errorf("unknown output format %q (want png, jpg, tiff or raw)", part)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no output formats in %q", s)
	}
	return formats, nil
}

// Viewer holds named spatial maps (EOFs, phase images, difference maps) and
// renders or persists them.
type Viewer struct {
	maps  map[string]*models.Map
	order []string
}

// NewViewer creates an empty viewer
func NewViewer() *Viewer {
	return &Viewer{maps: make(map[string]*models.Map)}
}

// Add registers m under name, replacing any map with the same name.
func (v *Viewer) Add(name string, m *models.Map) error {
	if name == "" {
		return fmt.Errorf("map name must not be empty")
	}
	if m == nil || m.Width <= 0 || m.Height <= 0 || len(m.Data) != m.Width*m.Height {
		return fmt.Errorf("map %q has inconsistent dimensions", name)
	}
	if _, ok := v.maps[name]; !ok {
		v.order = append(v.order, name)
	}
	v.maps[name] = m
	return nil
}

// Names returns the registered map names in insertion order.
func (v *Viewer) Names() []string {
	return append([]string(nil), v.order...)
}

// Map returns the map registered under name.
func (v *Viewer) Map(name string) (*models.Map, error) {
	m, ok := v.maps[name]
	if !ok {
		return nil, fmt.Errorf("no map named %q", name)
	}
	return m, nil
}

// Render returns the named map rescaled to an 8-bit gray image.
func (v *Viewer) Render(name string) (*image.Gray, error) {
	m, err := v.Map(name)
	if err != nil {
		return nil, err
	}
	return normalize.ToGray8(m), nil
}

// Render16 returns the named map stretched over [0, 65535]. A constant map
// renders as mid-gray.
func (v *Viewer) Render16(name string) (*image.Gray16, error) {
	m, err := v.Map(name)
	if err != nil {
		return nil, err
	}

	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, val := range m.Data {
		lo, hi = math.Min(lo, val), math.Max(hi, val)
	}
	for i, val := range m.Data {
		level := uint16(32768)
		if hi > lo {
			level = uint16(math.Round((val - lo) / (hi - lo) * 65535))
		}
		binary.BigEndian.PutUint16(img.Pix[2*i:], level)
	}
	return img, nil
}

// SaveAll writes every registered map in each format to dir as
// <prefix>-<name>.<ext> and returns the written paths.
func (v *Viewer) SaveAll(dir, prefix string, formats []Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for _, name := range v.order {
		base := name
		if prefix != "" {
			base = prefix + "-" + name
		}
		for _, format := range formats {
			filename := filepath.Join(dir, base+"."+string(format))
			if err := v.save(name, format, filename); err != nil {
				return written, errors.Wrapf(err, "saving %s", filename)
			}
			written = append(written, filename)
		}
	}
	return written, nil
}

func (v *Viewer) save(name string, format Format, filename string) error {
	switch format {
	case PNG, JPEG:
		img, err := v.Render(name)
		if err != nil {
			return err
		}
		if format == JPEG {
			return SaveJPEG(img, filename)
		}
		return SavePNG(img, filename)
	case TIFF:
		img, err := v.Render16(name)
		if err != nil {
			return err
		}
		return SaveTIFF(img, filename)
	case Raw:
		m, err := v.Map(name)
		if err != nil {
			return err
		}
		return SaveRaw(m, filename)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// SavePNG saves img as a PNG file
func SavePNG(img image.Image, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		return png.Encode(w, img)
	})
}

// SaveJPEG saves img as a JPEG file
func SaveJPEG(img image.Image, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	})
}

// SaveTIFF saves img as a deflate-compressed TIFF file
func SaveTIFF(img image.Image, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	})
}

// SaveRaw writes m as two little-endian uint32 dimensions (width, height)
// followed by width*height little-endian float64 values.
func SaveRaw(m *models.Map, filename string) error {
	return writeFile(filename, func(w io.Writer) error {
		header := [2]uint32{uint32(m.Width), uint32(m.Height)}
		if err := binary.Write(w, binary.LittleEndian, header); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, m.Data)
	})
}

// LoadRaw reads a map written by SaveRaw.
func LoadRaw(filename string) (*models.Map, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrap(err, "reading raw header")
	}
	m := models.NewMap(int(header[0]), int(header[1]))
	if err := binary.Read(r, binary.LittleEndian, m.Data); err != nil {
		return nil, errors.Wrap(err, "reading raw values")
	}
	return m, nil
}

// SaveSequence saves frames as numbered PNG files <prefix>_<NNN>.png in dir.
func SaveSequence(frames []image.Image, dir, prefix string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for i, frame := range frames {
		filename := filepath.Join(dir, fmt.Sprintf("%s_%03d.png", prefix, i))
		if err := SavePNG(frame, filename); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(filename string, encode func(io.Writer) error) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)
	if err := encode(w); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
