package stereo

import (
	"fmt"
	"image"
	"math"
)

// Rectifier undistorts and rectifies images of a fixed size using a
// precomputed per-pixel source map.
type Rectifier struct {
	width, height int
	mapX, mapY    []float32
}

// NewRectifier builds the source map for width x height images. The model
// is the five-coefficient plumb-bob distortion with the rectified camera
// taken from the first three columns of the projection matrix.
func NewRectifier(c *Calibration, width, height int) (*Rectifier, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrCalibration, width, height)
	}

	var newK, r mat3
	for i := range 3 {
		for j := range 3 {
			newK[i*3+j] = c.Projection.At(4, i, j)
			r[i*3+j] = c.Rectification.At(3, i, j)
		}
	}
	ir, ok := newK.mul(r).inverse()
	if !ok {
		return nil, fmt.Errorf("%w: projection x rectification is singular", ErrCalibration)
	}

	k := c.CameraMatrix.Data
	fx, cx, fy, cy := k[0], k[2], k[4], k[5]
	d := c.Distortion.Data
	k1, k2, p1, p2, k3 := d[0], d[1], d[2], d[3], d[4]

	rect := &Rectifier{
		width:  width,
		height: height,
		mapX:   make([]float32, width*height),
		mapY:   make([]float32, width*height),
	}
	for v := range height {
		fv := float64(v)
		for u := range width {
			fu := float64(u)
			x := ir[0]*fu + ir[1]*fv + ir[2]
			y := ir[3]*fu + ir[4]*fv + ir[5]
			w := ir[6]*fu + ir[7]*fv + ir[8]
			w = 1 / w
			x *= w
			y *= w

			x2, y2 := x*x, y*y
			r2 := x2 + y2
			xy2 := 2 * x * y
			kr := 1 + ((k3*r2+k2)*r2+k1)*r2
			xd := x*kr + p1*xy2 + p2*(r2+2*x2)
			yd := y*kr + p1*(r2+2*y2) + p2*xy2

			i := v*width + u
			rect.mapX[i] = float32(fx*xd + cx)
			rect.mapY[i] = float32(fy*yd + cy)
		}
	}
	return rect, nil
}

// Size returns the image size the rectifier was built for.
func (r *Rectifier) Size() (width, height int) {
	return r.width, r.height
}

// Apply remaps src with bilinear interpolation. Samples falling outside
// src are black.
func (r *Rectifier) Apply(src *image.RGBA) (*image.RGBA, error) {
	b := src.Bounds()
	if b.Dx() != r.width || b.Dy() != r.height {
		return nil, fmt.Errorf("rectify: image is %dx%d, rectifier is %dx%d", b.Dx(), b.Dy(), r.width, r.height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	for v := range r.height {
		row := dst.Pix[v*dst.Stride:]
		for u := range r.width {
			i := v*r.width + u
			sampleBilinear(src, float64(r.mapX[i]), float64(r.mapY[i]), row[u*4:u*4+4])
		}
	}
	return dst, nil
}

// sampleBilinear writes the interpolated pixel at (x, y) in origin-relative
// coordinates into out.
func sampleBilinear(src *image.RGBA, x, y float64, out []byte) {
	x0f, y0f := math.Floor(x), math.Floor(y)
	ax, ay := x-x0f, y-y0f
	x0, y0 := int(x0f), int(y0f)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if x0 < -1 || y0 < -1 || x0 >= w || y0 >= h {
		out[0], out[1], out[2], out[3] = 0, 0, 0, 0
		return
	}

	weights := [4]float64{(1 - ax) * (1 - ay), ax * (1 - ay), (1 - ax) * ay, ax * ay}
	coords := [4][2]int{{x0, y0}, {x0 + 1, y0}, {x0, y0 + 1}, {x0 + 1, y0 + 1}}
	var acc [4]float64
	for n, c := range coords {
		if c[0] < 0 || c[1] < 0 || c[0] >= w || c[1] >= h || weights[n] == 0 {
			continue
		}
		off := c[1]*src.Stride + c[0]*4
		for ch := range 4 {
			acc[ch] += weights[n] * float64(src.Pix[off+ch])
		}
	}
	for ch := range 4 {
		out[ch] = uint8(math.Min(255, math.Round(acc[ch])))
	}
}

// mat3 is a row-major 3x3 matrix.
type mat3 [9]float64

func (a mat3) mul(b mat3) mat3 {
	var m mat3
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				m[i*3+j] += a[i*3+k] * b[k*3+j]
			}
		}
	}
	return m
}

func (a mat3) inverse() (mat3, bool) {
	det := a[0]*(a[4]*a[8]-a[5]*a[7]) -
		a[1]*(a[3]*a[8]-a[5]*a[6]) +
		a[2]*(a[3]*a[7]-a[4]*a[6])
	if math.Abs(det) < 1e-12 {
		return mat3{}, false
	}
	inv := 1 / det
	return mat3{
		(a[4]*a[8] - a[5]*a[7]) * inv,
		(a[2]*a[7] - a[1]*a[8]) * inv,
		(a[1]*a[5] - a[2]*a[4]) * inv,
		(a[5]*a[6] - a[3]*a[8]) * inv,
		(a[0]*a[8] - a[2]*a[6]) * inv,
		(a[2]*a[3] - a[0]*a[5]) * inv,
		(a[3]*a[7] - a[4]*a[6]) * inv,
		(a[1]*a[6] - a[0]*a[7]) * inv,
		(a[0]*a[4] - a[1]*a[3]) * inv,
	}, true
}
