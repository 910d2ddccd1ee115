package video

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"thermopct/internal/models"
)

// Grayscale converts img to 8-bit luma. Gray images are copied as-is; other
// colour models go through color.GrayModel, which uses the ITU-R 601 weights
// (0.299 R + 0.587 G + 0.114 B).
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	gray := image.NewGray(image.Rect(0, 0, width, height))

	if src, ok := img.(*image.Gray); ok {
		for y := 0; y < height; y++ {
			srcOff := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+width], src.Pix[srcOff:srcOff+width])
		}
		return gray
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			gray.Pix[y*gray.Stride+x] = c.Y
		}
	}
	return gray
}

// MeanIntensity returns the mean luma of img on the 0-255 scale.
func MeanIntensity(img image.Image) float64 {
	gray := Grayscale(img)
	if len(gray.Pix) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range gray.Pix {
		sum += float64(v)
	}
	return sum / float64(len(gray.Pix))
}

// Crop copies the roi of img into a new image whose origin is (0,0).
// roi is relative to the top-left corner of img's bounds. Gray frames stay
// gray; everything else is copied into RGBA.
func Crop(img image.Image, roi models.ROI) image.Image {
	src := roi.Rect().Add(img.Bounds().Min)
	rect := image.Rect(0, 0, roi.Width, roi.Height)

	var dst draw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	draw.Draw(dst, rect, img, src.Min, draw.Src)
	return dst
}
