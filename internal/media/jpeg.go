package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"
)

// Encoding qualities used by the persist and preview paths.
const (
	QualityArchive = 95
	QualityStereo  = 100
	QualityPreview = 80
)

// DecodeJPEG decodes a JPEG payload.
func DecodeJPEG(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode jpeg: empty payload")
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}

// EncodeJPEG writes img to w at the given quality (1-100).
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, converting
// when necessary. An *image.RGBA already at the origin is returned as is.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// CloneRGBA returns a deep copy of src.
func CloneRGBA(src *image.RGBA) *image.RGBA {
	if src == nil {
		return nil
	}
	dst := &image.RGBA{
		Pix:    make([]byte, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}

// Crop copies the columns [x0, x1) of src into a new image at the origin.
func Crop(src *image.RGBA, x0, x1 int) *image.RGBA {
	b := src.Bounds()
	x0 = max(x0, b.Min.X)
	x1 = min(x1, b.Max.X)
	if x1 < x0 {
		x1 = x0
	}
	dst := image.NewRGBA(image.Rect(0, 0, x1-x0, b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, image.Pt(x0, b.Min.Y), draw.Src)
	return dst
}
