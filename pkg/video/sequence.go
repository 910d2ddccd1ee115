package video

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/tiff"

	"thermopct/pkg/pcterrors"
)

// ImageSequenceSource reads a capture stored as one image file per frame,
// as produced by external frame grabbers (e.g. `ffmpeg -i in.mp4 frame_%04d.png`).
//
// Frames are ordered by the number embedded in each filename so that
// frame_2.png comes before frame_10.png.
type ImageSequenceSource struct {
	dir    string
	files  []string
	pos    int
	closed bool
}

// NewImageSequenceSource lists the PNG, JPEG and TIFF files in dir.
func NewImageSequenceSource(dir string) (*ImageSequenceSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pcterrors.Decode("open", dir, errors.Wrap(err, "reading frame directory"))
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
			files = append(files, entry.Name())
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		numI, numJ := extractNumber(files[i]), extractNumber(files[j])
		if numI != numJ {
			return numI < numJ
		}
		return files[i] < files[j]
	})

	return &ImageSequenceSource{dir: dir, files: files}, nil
}

// Len returns the number of frame files found.
func (s *ImageSequenceSource) Len() int {
	return len(s.files)
}

func (s *ImageSequenceSource) Next() (image.Image, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.pos >= len(s.files) {
		return nil, io.EOF
	}

	path := filepath.Join(s.dir, s.files[s.pos])
	s.pos++

	img, err := loadImage(path)
	if err != nil {
		return nil, pcterrors.Decode("decode", path, err)
	}
	return img, nil
}

func (s *ImageSequenceSource) Close() error {
	s.closed = true
	return nil
}

// loadImage decodes a single frame file.
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrap(err, "decoding frame image")
	}
	return img, nil
}

// extractNumber returns the digits of a filename as an integer, or -1 when
// the name has none.
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() == 0 {
		return -1
	}
	num, err := strconv.Atoi(digits.String())
	if err != nil {
		return -1
	}
	return num
}
