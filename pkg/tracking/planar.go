package tracking

import (
	"github.com/teslashibe/go-skyfix/pkg/camera"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// PlanarEstimator models the object as always facing the camera:
//
//	distance = realWidth * focal / pixelWidth
//	realΔ    = pixelΔ * distance / focal
//
// The focal length is used as configured; with the default it is the lens
// focal length in millimetres.
type PlanarEstimator struct {
	focal float64
}

// NewPlanar creates a planar estimator.
func NewPlanar(focal float64) (*PlanarEstimator, error) {
	if !(focal > 0) || !finite(focal) {
		return nil, configErrorf("focal_length", "must be positive, got %v", focal)
	}
	return &PlanarEstimator{focal: focal}, nil
}

// Strategy implements Estimator.
func (p *PlanarEstimator) Strategy() Strategy {
	return StrategyPlanar
}

// Focal returns the focal length the estimator divides by.
func (p *PlanarEstimator) Focal() float64 {
	return p.focal
}

// Distance returns the distance to an object of realWidth that appears
// pixelWidth wide, in realWidth's unit.
func (p *PlanarEstimator) Distance(realWidth, pixelWidth float64) (float64, error) {
	if pixelWidth == 0 {
		return 0, ErrUndefinedDistance
	}
	return realWidth * p.focal / pixelWidth, nil
}

// Estimate implements Estimator. The first detection of a session proposes
// its centre as the home centre; its estimate has zero displacement. A
// zero-width first box still anchors the centre but yields
// ErrUndefinedDistance.
func (p *PlanarEstimator) Estimate(ref Reference, det detection.Detected) (Estimate, error) {
	if err := validateBox(det.Box); err != nil {
		return Estimate{}, err
	}

	center := det.Box.Center()
	distance, err := p.Distance(ref.ObjectWidthMm, det.Box.Width())
	if err != nil {
		if ref.StartCenter == nil {
			return Estimate{Anchor: Anchor{Center: &center}}, err
		}
		return Estimate{}, err
	}

	fix := &PlanarFix{
		X:              ref.Start.X,
		Y:              ref.Start.Y,
		DistanceMm:     distance,
		ObjectHeightMm: camera.RealLength(det.Box.Height(), distance, p.focal),
	}

	if ref.StartCenter == nil {
		return Estimate{Planar: fix, Anchor: Anchor{Center: &center}}, nil
	}

	fix.PixelDX = center.X - ref.StartCenter.X
	fix.PixelDY = center.Y - ref.StartCenter.Y
	fix.DX = fix.PixelDX * distance / p.focal
	fix.DY = fix.PixelDY * distance / p.focal
	fix.X += fix.DX
	fix.Y += fix.DY

	return Estimate{Planar: fix}, nil
}
