package stereo

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/zsiec/rovlink/internal/media"
)

// Rotate180 returns src rotated by 180 degrees, anchored at the origin.
func Rotate180(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	s2d := f64.Aff3{
		-1, 0, float64(b.Max.X),
		0, -1, float64(b.Max.Y),
	}
	draw.NearestNeighbor.Transform(dst, s2d, src, b, draw.Src, nil)
	return dst
}

// Split copies the columns left of x and the columns from x onwards into
// two new images.
func Split(img *image.RGBA, x int) (west, east *image.RGBA) {
	b := img.Bounds()
	return media.Crop(img, b.Min.X, b.Min.X+x), media.Crop(img, b.Min.X+x, b.Max.X)
}
