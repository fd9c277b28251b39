// Package camera describes the drone camera: its physical lens and sensor,
// the pinhole intrinsics derived from them, and the planar target model
// used by the pose solver. Settings can be changed at runtime through Manager.
package camera

import "fmt"

// Config holds the physical camera parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// FocalLengthMm is the lens focal length in millimetres.
	FocalLengthMm float64 `json:"focal_length_mm"`

	// SensorWidthMm is the physical sensor width in millimetres.
	// With a 35mm-equivalent focal length use 36.
	SensorWidthMm float64 `json:"sensor_width_mm"`

	// Image resolution the frames arrive in.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Limits for validation.
const (
	MaxFocalLengthMm = 2000.0
	MaxSensorWidthMm = 100.0
	MaxResolution    = 16384
)

// DefaultConfig returns a 26mm (35mm-equivalent) phone camera at 1080p,
// the setup the reference flights were recorded with.
func DefaultConfig() Config {
	return Config{
		FocalLengthMm: 26.0,
		SensorWidthMm: 36.0,
		Width:         1920,
		Height:        1080,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.FocalLengthMm <= 0 || c.FocalLengthMm > MaxFocalLengthMm {
		errors = append(errors, fmt.Sprintf("focal_length_mm must be in (0, %g]", MaxFocalLengthMm))
	}
	if c.SensorWidthMm <= 0 || c.SensorWidthMm > MaxSensorWidthMm {
		errors = append(errors, fmt.Sprintf("sensor_width_mm must be in (0, %g]", MaxSensorWidthMm))
	}
	if c.Width <= 0 || c.Width > MaxResolution {
		errors = append(errors, fmt.Sprintf("width must be between 1 and %d", MaxResolution))
	}
	if c.Height <= 0 || c.Height > MaxResolution {
		errors = append(errors, fmt.Sprintf("height must be between 1 and %d", MaxResolution))
	}

	return errors
}

// WithResolution returns a copy of the config for a different frame size.
func (c Config) WithResolution(width, height int) Config {
	c.Width = width
	c.Height = height
	return c
}
