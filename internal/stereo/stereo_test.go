package stereo

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zsiec/rovlink/internal/framecache"
	"github.com/zsiec/rovlink/internal/persist"
)

// identityYAML is a distortion-free camera whose rectified projection
// equals its intrinsics.
func identityYAML(f, cx, cy float64) string {
	return fmt.Sprintf(`image_width: 16
image_height: 4
camera_name: test
camera_matrix:
  rows: 3
  cols: 3
  data: [%[1]g, 0, %[2]g, 0, %[1]g, %[3]g, 0, 0, 1]
distortion_model: plumb_bob
distortion_coefficients:
  rows: 1
  cols: 5
  data: [0, 0, 0, 0, 0]
rectification_matrix:
  rows: 3
  cols: 3
  data: [1, 0, 0, 0, 1, 0, 0, 0, 1]
projection_matrix:
  rows: 3
  cols: 4
  data: [%[1]g, 0, %[2]g, 0, 0, %[1]g, %[3]g, 0, 0, 0, 1, 0]
`, f, cx, cy)
}

func identityCalibration(t *testing.T) *Calibration {
	t.Helper()
	c, err := ParseCalibration([]byte(identityYAML(100, 4, 2)))
	if err != nil {
		t.Fatalf("ParseCalibration: %v", err)
	}
	return c
}

func pattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 40), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func TestLoadCalibration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "left.yaml")
	if err := os.WriteFile(path, []byte(identityYAML(500, 320, 240)), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if c.CameraName != "test" || c.DistortionModel != "plumb_bob" {
		t.Errorf("metadata = %q %q", c.CameraName, c.DistortionModel)
	}
	if c.CameraMatrix.At(3, 0, 2) != 320 || c.Projection.At(4, 1, 1) != 500 {
		t.Errorf("matrix values not decoded: %v %v", c.CameraMatrix.Data, c.Projection.Data)
	}

	if _, err := LoadCalibration(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestParseCalibration_Shapes(t *testing.T) {
	t.Parallel()

	good := identityYAML(100, 4, 2)
	tests := []struct {
		name string
		yaml string
	}{
		{"short distortion", strings.Replace(good, "data: [0, 0, 0, 0, 0]", "data: [0, 0, 0, 0]", 1)},
		{"wrong declared cols", strings.Replace(good, "  cols: 5", "  cols: 4", 1)},
		{"missing projection", good[:strings.Index(good, "projection_matrix")]},
		{"not yaml", "camera_matrix: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseCalibration([]byte(tt.yaml)); !errors.Is(err, ErrCalibration) {
				t.Errorf("err = %v, want ErrCalibration", err)
			}
		})
	}
}

func TestRectifier_Identity(t *testing.T) {
	t.Parallel()

	src := pattern(8, 4)
	r, err := NewRectifier(identityCalibration(t), 8, 4)
	if err != nil {
		t.Fatalf("NewRectifier: %v", err)
	}
	got, err := r.Apply(src)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for y := range 4 {
		for x := range 8 {
			if got.RGBAAt(x, y) != src.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.RGBAAt(x, y), src.RGBAAt(x, y))
			}
		}
	}

	if _, err := r.Apply(pattern(4, 4)); err == nil {
		t.Error("Apply accepted an image of the wrong size")
	}
}

func TestRectifier_ShiftedPrincipalPoint(t *testing.T) {
	t.Parallel()

	// Rectified principal point three pixels right of the camera's: every
	// output pixel samples three columns to the left.
	c := identityCalibration(t)
	c.Projection.Data[2] = 7
	r, err := NewRectifier(c, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	src := pattern(8, 4)
	got, _ := r.Apply(src)
	if got.RGBAAt(5, 1) != src.RGBAAt(2, 1) {
		t.Errorf("pixel (5,1) = %v, want %v", got.RGBAAt(5, 1), src.RGBAAt(2, 1))
	}
	if got.RGBAAt(0, 1) != (color.RGBA{}) {
		t.Errorf("pixel sampled outside source = %v, want black", got.RGBAAt(0, 1))
	}
}

func TestRectifier_Singular(t *testing.T) {
	t.Parallel()

	c := identityCalibration(t)
	c.Rectification.Data = make([]float64, 9)
	if _, err := NewRectifier(c, 8, 4); !errors.Is(err, ErrCalibration) {
		t.Errorf("err = %v, want ErrCalibration", err)
	}
}

func TestRotate180(t *testing.T) {
	t.Parallel()

	src := pattern(3, 2)
	got := Rotate180(src)
	for y := range 2 {
		for x := range 3 {
			if got.RGBAAt(x, y) != src.RGBAAt(2-x, 1-y) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.RGBAAt(x, y), src.RGBAAt(2-x, 1-y))
			}
		}
	}

	sub := src.SubImage(image.Rect(1, 0, 3, 2))
	if got := Rotate180(sub); got.RGBAAt(0, 0) != src.RGBAAt(2, 1) {
		t.Errorf("offset rotation (0,0) = %v, want %v", got.RGBAAt(0, 0), src.RGBAAt(2, 1))
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	src := pattern(10, 2)
	west, east := Split(src, 6)
	if west.Bounds().Dx() != 6 || east.Bounds().Dx() != 4 {
		t.Fatalf("widths = %d, %d", west.Bounds().Dx(), east.Bounds().Dx())
	}
	if east.RGBAAt(0, 0) != src.RGBAAt(6, 0) {
		t.Errorf("east starts at wrong column")
	}
}

func newTestProcessor(t *testing.T) (*Processor, *framecache.Cache, *persist.Store) {
	t.Helper()
	cache := &framecache.Cache{}
	store, err := persist.NewStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	cal := identityCalibration(t)
	p, err := NewProcessor(cache, store, Options{Left: cal, Right: cal, SplitX: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p, cache, store
}

func TestProcessor_NoFrame(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestProcessor(t)
	if _, ok := p.DisplayView(); ok {
		t.Error("DisplayView returned a frame from an empty cache")
	}
	if _, err := p.SavePair(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("SavePair err = %v, want ErrNoFrame", err)
	}
	if _, err := p.SaveDisplay(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("SaveDisplay err = %v, want ErrNoFrame", err)
	}
	if _, err := p.SaveFish(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("SaveFish err = %v, want ErrNoFrame", err)
	}
}

func TestProcessor_DisplayView(t *testing.T) {
	t.Parallel()

	p, cache, _ := newTestProcessor(t)
	src := pattern(16, 4)
	cache.Store(src)

	view, ok := p.DisplayView()
	if !ok {
		t.Fatal("DisplayView returned no frame")
	}
	rgba := view.(*image.RGBA)
	if rgba.Bounds().Dx() != 8 {
		t.Fatalf("width = %d, want 8", rgba.Bounds().Dx())
	}
	// Column 8 of the rotated frame is column 7 of the original.
	if rgba.RGBAAt(0, 0) != src.RGBAAt(7, 3) {
		t.Errorf("pixel (0,0) = %v, want %v", rgba.RGBAAt(0, 0), src.RGBAAt(7, 3))
	}
}

func TestProcessor_SaveActions(t *testing.T) {
	t.Parallel()

	p, cache, store := newTestProcessor(t)
	cache.Store(pattern(16, 4))

	pair, err := p.SavePair()
	if err != nil {
		t.Fatalf("SavePair: %v", err)
	}
	if len(pair) != 2 {
		t.Fatalf("SavePair wrote %d files, want 2", len(pair))
	}
	for i, prefix := range []string{"left_", "right_"} {
		if pair[i].Category != persist.CategoryStereo || !strings.HasPrefix(filepath.Base(pair[i].Path), prefix) {
			t.Errorf("artifact %d = %+v, want %s in stereo", i, pair[i], prefix)
		}
	}
	if pair[0].Seq != pair[1].Seq {
		t.Errorf("pair sequence numbers differ: %d, %d", pair[0].Seq, pair[1].Seq)
	}

	disp, err := p.SaveDisplay()
	if err != nil || disp.Category != persist.CategoryImage || !strings.HasPrefix(filepath.Base(disp.Path), "display_") {
		t.Errorf("SaveDisplay = %+v, %v", disp, err)
	}
	fish, err := p.SaveFish()
	if err != nil || fish.Category != persist.CategoryFish || !strings.HasPrefix(filepath.Base(fish.Path), "fish_") {
		t.Errorf("SaveFish = %+v, %v", fish, err)
	}

	if files, _ := store.Written(); files != 4 {
		t.Errorf("files written = %d, want 4", files)
	}
}

func TestProcessor_NarrowFrame(t *testing.T) {
	t.Parallel()

	p, cache, _ := newTestProcessor(t)
	cache.Store(pattern(8, 4))
	if _, err := p.SaveDisplay(); !errors.Is(err, ErrFrameTooNarrow) {
		t.Errorf("err = %v, want ErrFrameTooNarrow", err)
	}
}
