// Package pnp recovers the pose of a planar target from four or more
// point correspondences in a single calibrated image.
//
// The initial pose comes from decomposing the plane-to-image homography;
// a Nelder-Mead pass then minimises the reprojection error in pixels.
package pnp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/teslashibe/go-skyfix/pkg/camera"
)

var (
	// ErrDegenerate is returned when the correspondences cannot determine a
	// pose: too few points, collinear or coincident points, a target that
	// ends up behind the camera, or non-finite intermediate values.
	ErrDegenerate = errors.New("pnp: degenerate configuration")

	// ErrReprojection is returned when the best pose still reprojects worse
	// than the configured threshold.
	ErrReprojection = errors.New("pnp: reprojection error too large")
)

// Pose maps object coordinates into the camera frame: p_cam = R·p_obj + T.
type Pose struct {
	Rotation    Rotation
	Translation camera.Vec3

	// RMS reprojection error in pixels.
	RMS float64
}

// Transform maps an object point into the camera frame.
func (p Pose) Transform(v camera.Vec3) camera.Vec3 {
	return p.Rotation.Apply(v).Add(p.Translation)
}

// Solver solves planar perspective-n-point problems.
type Solver struct {
	config Config
}

// NewSolver creates a solver with DefaultConfig and the given options.
func NewSolver(opts ...Option) *Solver {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Solver{config: cfg}
}

// Config returns the solver settings.
func (s *Solver) Config() Config {
	return s.config
}

// Solve finds the pose of the target whose corners (in the object's Z=0
// plane) appear at image. object and image are matched by index.
func (s *Solver) Solve(k camera.Intrinsics, object []camera.Vec3, image []camera.Point2) (Pose, error) {
	if k.FocalPx <= 0 {
		return Pose{}, fmt.Errorf("%w: focal length %v", ErrDegenerate, k.FocalPx)
	}
	if len(object) != len(image) {
		return Pose{}, fmt.Errorf("%w: %d object and %d image points", ErrDegenerate, len(object), len(image))
	}

	plane := make([]camera.Point2, len(object))
	for i, p := range object {
		if p.Z != 0 {
			return Pose{}, fmt.Errorf("%w: object point %d is off the Z=0 plane", ErrDegenerate, i)
		}
		plane[i] = camera.Point2{X: p.X, Y: p.Y}
	}
	rays := make([]camera.Point2, len(image))
	for i, p := range image {
		if !finite(p.X, p.Y) {
			return Pose{}, fmt.Errorf("%w: image point %d is not finite", ErrDegenerate, i)
		}
		rays[i] = k.Normalize(p)
	}

	h, err := Homography(plane, rays)
	if err != nil {
		return Pose{}, err
	}

	pose, err := decompose(h)
	if err != nil {
		return Pose{}, err
	}
	cost := reprojectionCost(k, object, image, pose.Rotation, pose.Translation)

	if s.config.Refine {
		if refined, c, ok := s.refine(k, object, image, pose); ok && c < cost {
			pose, cost = refined, c
		}
	}

	if !finite(pose.Translation.X, pose.Translation.Y, pose.Translation.Z, cost) {
		return Pose{}, fmt.Errorf("%w: non-finite pose", ErrDegenerate)
	}
	for i, p := range object {
		if pose.Transform(p).Z <= 0 {
			return Pose{}, fmt.Errorf("%w: corner %d behind the camera", ErrDegenerate, i)
		}
	}

	pose.RMS = math.Sqrt(cost / float64(len(object)))
	if pose.RMS > s.config.MaxReprojectionPx {
		return pose, fmt.Errorf("%w: %.2fpx > %.2fpx", ErrReprojection, pose.RMS, s.config.MaxReprojectionPx)
	}
	return pose, nil
}

// decompose splits H ~ [r1 r2 t] into a rotation and translation, choosing
// the sign that puts the target in front of the camera.
func decompose(h *mat.Dense) (Pose, error) {
	h1 := camera.Vec3{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := camera.Vec3{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := camera.Vec3{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	n1, n2 := h1.Norm(), h2.Norm()
	if n1 == 0 || n2 == 0 {
		return Pose{}, fmt.Errorf("%w: rank-deficient homography", ErrDegenerate)
	}

	lambda := 2 / (n1 + n2)
	r1, r2, t := h1.Mul(lambda), h2.Mul(lambda), h3.Mul(lambda)
	if t.Z < 0 {
		r1, r2, t = r1.Mul(-1), r2.Mul(-1), t.Mul(-1)
	}
	if t.Z == 0 {
		return Pose{}, fmt.Errorf("%w: target in the image plane", ErrDegenerate)
	}
	n := r1.Cross(r2)

	m := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, n.X,
		r1.Y, r2.Y, n.Y,
		r1.Z, r2.Z, n.Z,
	})
	r, ok := orthonormalize(m)
	if !ok {
		return Pose{}, fmt.Errorf("%w: rotation svd failed", ErrDegenerate)
	}
	return Pose{Rotation: r, Translation: t}, nil
}

// refine minimises the squared reprojection error over a rotation vector
// applied on top of the initial rotation, plus the translation.
func (s *Solver) refine(k camera.Intrinsics, object []camera.Vec3, image []camera.Point2, initial Pose) (Pose, float64, bool) {
	pose := func(x []float64) (Rotation, camera.Vec3) {
		r := FromAxisAngle(camera.Vec3{X: x[0], Y: x[1], Z: x[2]}).Mul(initial.Rotation)
		return r, camera.Vec3{X: x[3], Y: x[4], Z: x[5]}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			r, t := pose(x)
			return reprojectionCost(k, object, image, r, t)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: s.config.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 200,
		},
	}

	t := initial.Translation
	x0 := []float64{0, 0, 0, t.X, t.Y, t.Z}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: 0.01})
	if result == nil || len(result.X) != len(x0) {
		return Pose{}, 0, false
	}
	if err != nil && !finite(result.F) {
		return Pose{}, 0, false
	}

	r, tr := pose(result.X)
	return Pose{Rotation: r, Translation: tr}, result.F, true
}

// penalty stands in for the cost of poses that put a point behind the camera.
const penalty = 1e18

func reprojectionCost(k camera.Intrinsics, object []camera.Vec3, image []camera.Point2, r Rotation, t camera.Vec3) float64 {
	var sum float64
	for i, p := range object {
		proj, ok := k.Project(r.Apply(p).Add(t))
		if !ok {
			return penalty
		}
		dx, dy := proj.X-image[i].X, proj.Y-image[i].Y
		sum += dx*dx + dy*dy
	}
	return sum
}
