// Package stereo turns the side-by-side stereo camera frame into rectified
// left/right images and the operator display view.
package stereo

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrCalibration is wrapped by every calibration load or shape error.
var ErrCalibration = errors.New("stereo: invalid calibration")

// Matrix is a row-major matrix as written by the ROS camera_info YAML.
type Matrix struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Data []float64 `yaml:"data"`
}

// At returns the element at row r, column c of a matrix with cols columns.
func (m Matrix) At(cols, r, c int) float64 {
	return m.Data[r*cols+c]
}

// Calibration holds one camera's intrinsic and rectification parameters.
type Calibration struct {
	ImageWidth      int    `yaml:"image_width"`
	ImageHeight     int    `yaml:"image_height"`
	CameraName      string `yaml:"camera_name"`
	CameraMatrix    Matrix `yaml:"camera_matrix"`
	DistortionModel string `yaml:"distortion_model"`
	Distortion      Matrix `yaml:"distortion_coefficients"`
	Rectification   Matrix `yaml:"rectification_matrix"`
	Projection      Matrix `yaml:"projection_matrix"`
}

// LoadCalibration reads and validates a camera_info YAML file.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration %s: %w", path, err)
	}
	return ParseCalibration(data)
}

// ParseCalibration decodes and validates camera_info YAML.
func ParseCalibration(data []byte) (*Calibration, error) {
	var c Calibration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibration, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every matrix has the shape the rectifier expects.
func (c *Calibration) Validate() error {
	checks := []struct {
		name       string
		m          Matrix
		rows, cols int
	}{
		{"camera_matrix", c.CameraMatrix, 3, 3},
		{"distortion_coefficients", c.Distortion, 1, 5},
		{"rectification_matrix", c.Rectification, 3, 3},
		{"projection_matrix", c.Projection, 3, 4},
	}
	for _, ch := range checks {
		if len(ch.m.Data) != ch.rows*ch.cols {
			return fmt.Errorf("%w: %s has %d values, want %dx%d", ErrCalibration, ch.name, len(ch.m.Data), ch.rows, ch.cols)
		}
		if (ch.m.Rows != 0 && ch.m.Rows != ch.rows) || (ch.m.Cols != 0 && ch.m.Cols != ch.cols) {
			return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrCalibration, ch.name, ch.m.Rows, ch.m.Cols, ch.rows, ch.cols)
		}
	}
	return nil
}
