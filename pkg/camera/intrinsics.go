package camera

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidConfig is returned when intrinsics cannot be derived from a config.
var ErrInvalidConfig = errors.New("camera: invalid configuration")

// Vec3 is a point or translation in camera or object coordinates.
type Vec3 = r3.Vector

// Point2 is an image point in pixels.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Intrinsics is a pinhole camera with square pixels, no skew and no lens
// distortion. The principal point sits at the image centre.
type Intrinsics struct {
	FocalPx float64 `json:"focal_px"`
	Cx      float64 `json:"cx"`
	Cy      float64 `json:"cy"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// BuildIntrinsics derives pixel intrinsics from the physical camera.
//
//	focal_px = focal_mm / sensor_width_mm * image_width
func BuildIntrinsics(cfg Config) (Intrinsics, error) {
	switch {
	case cfg.SensorWidthMm <= 0:
		return Intrinsics{}, fmt.Errorf("%w: sensor width %v", ErrInvalidConfig, cfg.SensorWidthMm)
	case cfg.FocalLengthMm <= 0:
		return Intrinsics{}, fmt.Errorf("%w: focal length %v", ErrInvalidConfig, cfg.FocalLengthMm)
	case cfg.Width <= 0 || cfg.Height <= 0:
		return Intrinsics{}, fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}

	return Intrinsics{
		FocalPx: cfg.FocalLengthMm / cfg.SensorWidthMm * float64(cfg.Width),
		Cx:      float64(cfg.Width) / 2,
		Cy:      float64(cfg.Height) / 2,
		Width:   cfg.Width,
		Height:  cfg.Height,
	}, nil
}

// Matrix returns K as a 3x3 matrix.
func (k Intrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		k.FocalPx, 0, k.Cx,
		0, k.FocalPx, k.Cy,
		0, 0, 1,
	})
}

// Project maps a camera-frame point to pixels. ok is false for points on or
// behind the image plane.
func (k Intrinsics) Project(p Vec3) (Point2, bool) {
	if p.Z <= 0 {
		return Point2{}, false
	}
	return Point2{
		X: k.FocalPx*p.X/p.Z + k.Cx,
		Y: k.FocalPx*p.Y/p.Z + k.Cy,
	}, true
}

// Normalize maps a pixel to normalised image coordinates (K⁻¹·[u v 1]).
func (k Intrinsics) Normalize(p Point2) Point2 {
	return Point2{
		X: (p.X - k.Cx) / k.FocalPx,
		Y: (p.Y - k.Cy) / k.FocalPx,
	}
}

// ObjectCorners returns the corners of a planar target of the given size,
// centred on the origin in the Z=0 plane. The order matches a bounding box's
// top-left, top-right, bottom-right, bottom-left corners.
func ObjectCorners(width, height float64) [4]Vec3 {
	w, h := width/2, height/2
	return [4]Vec3{
		{X: -w, Y: h},
		{X: w, Y: h},
		{X: w, Y: -h},
		{X: -w, Y: -h},
	}
}
