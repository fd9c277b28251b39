package tracking

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-skyfix/pkg/camera"
	"github.com/teslashibe/go-skyfix/pkg/geodesy"
	"github.com/teslashibe/go-skyfix/pkg/pnp"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// PoseEstimator solves the pose of the rectangular target from the four
// corners of its bounding box and reports geodetic fixes. Only the
// translation is used.
//
// The first successful solve becomes the home translation. Later solves are
// expressed relative to it: camera X/Y are rotated by the azimuth into
// north/east metres and applied to the start with a flat-Earth step of
// geodesy.MetersPerDegree, camera Z becomes altitude above home.
type PoseEstimator struct {
	intrinsics camera.Intrinsics
	solver     *pnp.Solver
}

// NewPose creates a pose estimator for a camera. A nil solver uses the
// default solver settings.
func NewPose(k camera.Intrinsics, solver *pnp.Solver) (*PoseEstimator, error) {
	if !(k.FocalPx > 0) {
		return nil, configErrorf("camera", "focal length %v px", k.FocalPx)
	}
	if solver == nil {
		solver = pnp.NewSolver()
	}
	return &PoseEstimator{intrinsics: k, solver: solver}, nil
}

// Strategy implements Estimator.
func (p *PoseEstimator) Strategy() Strategy {
	return StrategyPose
}

// Intrinsics returns the camera the estimator solves against.
func (p *PoseEstimator) Intrinsics() camera.Intrinsics {
	return p.intrinsics
}

// Solve returns the target's pose for a box. Object dimensions are in
// millimetres; the pose translation is in metres.
func (p *PoseEstimator) Solve(box detection.BoundingBox, widthMm, heightMm float64) (pnp.Pose, error) {
	model := camera.ObjectCorners(widthMm/1000, heightMm/1000)

	var image [4]camera.Point2
	for i, c := range box.Corners() {
		image[i] = camera.Point2{X: c.X, Y: c.Y}
	}

	pose, err := p.solver.Solve(p.intrinsics, model[:], image[:])
	if err != nil {
		return pnp.Pose{}, fmt.Errorf("%w: %w", ErrPoseSolve, err)
	}
	return pose, nil
}

// Estimate implements Estimator.
func (p *PoseEstimator) Estimate(ref Reference, det detection.Detected) (Estimate, error) {
	if err := validateBox(det.Box); err != nil {
		return Estimate{}, err
	}
	if det.Box.Width() == 0 {
		return Estimate{}, ErrUndefinedDistance
	}
	if det.Box.Height() == 0 {
		return Estimate{}, fmt.Errorf("%w: zero-height box", ErrPoseSolve)
	}

	// Without a configured height the target keeps the aspect ratio of the
	// box that anchors the session.
	height := ref.ObjectHeightMm
	if height == 0 {
		height = ref.ObjectWidthMm * det.Box.Height() / det.Box.Width()
	}

	pose, err := p.Solve(det.Box, ref.ObjectWidthMm, height)
	if err != nil {
		return Estimate{}, err
	}
	t := pose.Translation
	start := ref.Start.LLA()

	if ref.HomeTranslation == nil {
		return Estimate{
			Geo: &GeoFix{
				Lat:  start.Lat,
				Lon:  start.Lon,
				ECEF: geodesy.LLAToECEF(start),
			},
			Anchor: Anchor{Translation: &t, ObjectHeightMm: height},
		}, nil
	}

	d := t.Sub(*ref.HomeTranslation)
	north, east := geodesy.Rotate(d.X, d.Y, ref.AzimuthDeg)
	pos := geodesy.Offset(start, north, east)
	altitude := round(d.Z, 3)
	pos.Alt = start.Alt + altitude

	return Estimate{
		Geo: &GeoFix{
			Lat:                pos.Lat,
			Lon:                pos.Lon,
			AltitudeM:          altitude,
			DistanceFromStartM: round(math.Hypot(d.X, d.Y), 2),
			North:              north,
			East:               east,
			ECEF:               geodesy.LLAToECEF(pos),
		},
	}, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
