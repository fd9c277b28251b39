package pnp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-skyfix/pkg/camera"
)

var testK = camera.Intrinsics{FocalPx: 1000, Cx: 960, Cy: 540, Width: 1920, Height: 1080}

// facing turns the target so its +Y axis points up in the image.
var facing = Rotation{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}}

func project(t *testing.T, k camera.Intrinsics, pose Pose, object []camera.Vec3) []camera.Point2 {
	t.Helper()
	out := make([]camera.Point2, len(object))
	for i, p := range object {
		pt, ok := k.Project(pose.Transform(p))
		require.True(t, ok)
		out[i] = pt
	}
	return out
}

func corners(w, h float64) []camera.Vec3 {
	c := camera.ObjectCorners(w, h)
	return c[:]
}

func TestSolve_FrontoParallelClosedForm(t *testing.T) {
	const w, z = 0.2, 3.0
	pw := testK.FocalPx * w / z

	image := []camera.Point2{
		{X: testK.Cx - pw/2, Y: testK.Cy - pw/4},
		{X: testK.Cx + pw/2, Y: testK.Cy - pw/4},
		{X: testK.Cx + pw/2, Y: testK.Cy + pw/4},
		{X: testK.Cx - pw/2, Y: testK.Cy + pw/4},
	}

	pose, err := NewSolver().Solve(testK, corners(w, w/2), image)
	require.NoError(t, err)
	assert.InDelta(t, 0, pose.Translation.X, 1e-7)
	assert.InDelta(t, 0, pose.Translation.Y, 1e-7)
	assert.InDelta(t, testK.FocalPx*w/pw, pose.Translation.Z, 1e-7)
	assert.Less(t, pose.RMS, 1e-6)
}

func TestSolve_SyntheticPoses(t *testing.T) {
	tests := []struct {
		name string
		axis camera.Vec3
		t    camera.Vec3
	}{
		{"straight ahead", camera.Vec3{}, camera.Vec3{X: 0, Y: 0, Z: 2}},
		{"offset", camera.Vec3{}, camera.Vec3{X: 0.4, Y: -0.3, Z: 5}},
		{"tilted", camera.Vec3{X: 0.3}, camera.Vec3{X: -0.2, Y: 0.1, Z: 1.5}},
		{"yawed and rolled", camera.Vec3{Y: 0.4, Z: 0.2}, camera.Vec3{X: 0.1, Y: 0.2, Z: 3}},
	}

	object := corners(0.16, 0.08)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			want := Pose{Rotation: FromAxisAngle(tc.axis).Mul(facing), Translation: tc.t}
			image := project(t, testK, want, object)

			for _, refine := range []bool{false, true} {
				got, err := NewSolver(WithRefinement(refine)).Solve(testK, object, image)
				require.NoError(t, err)

				tol := 1e-6 * tc.t.Norm()
				assert.InDelta(t, tc.t.X, got.Translation.X, tol)
				assert.InDelta(t, tc.t.Y, got.Translation.Y, tol)
				assert.InDelta(t, tc.t.Z, got.Translation.Z, tol)
				for i := 0; i < 3; i++ {
					for j := 0; j < 3; j++ {
						assert.InDelta(t, want.Rotation[i][j], got.Rotation[i][j], 1e-6)
					}
				}
			}
		})
	}
}

func TestSolve_Collinear(t *testing.T) {
	// a zero-width box collapses every corner onto one vertical line
	image := []camera.Point2{
		{X: 700, Y: 500}, {X: 700, Y: 500}, {X: 700, Y: 600}, {X: 700, Y: 600},
	}
	_, err := NewSolver().Solve(testK, corners(0.2, 0.1), image)
	assert.ErrorIs(t, err, ErrDegenerate)

	image = []camera.Point2{
		{X: 100, Y: 100}, {X: 200, Y: 200}, {X: 300, Y: 300}, {X: 100, Y: 300},
	}
	_, err = NewSolver().Solve(testK, corners(0.2, 0.1), image)
	assert.Error(t, err)
}

func TestSolve_BadInput(t *testing.T) {
	s := NewSolver()
	_, err := s.Solve(testK, corners(0.2, 0.1)[:3], make([]camera.Point2, 3))
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = s.Solve(testK, corners(0.2, 0.1), make([]camera.Point2, 3))
	assert.ErrorIs(t, err, ErrDegenerate)

	object := corners(0.2, 0.1)
	object[0].Z = 1
	_, err = s.Solve(testK, object, make([]camera.Point2, 4))
	assert.ErrorIs(t, err, ErrDegenerate)

	image := []camera.Point2{{X: math.NaN()}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
	_, err = s.Solve(testK, corners(0.2, 0.1), image)
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = s.Solve(camera.Intrinsics{}, corners(0.2, 0.1), image)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestSolve_ReprojectionThreshold(t *testing.T) {
	// a square target cannot appear as a 1:4 axis-aligned rectangle
	image := []camera.Point2{
		{X: 900, Y: 340}, {X: 1000, Y: 340}, {X: 1000, Y: 740}, {X: 900, Y: 740},
	}
	pose, err := NewSolver().Solve(testK, corners(0.2, 0.2), image)
	assert.ErrorIs(t, err, ErrReprojection)
	assert.Greater(t, pose.RMS, DefaultConfig().MaxReprojectionPx)
}

func TestHomography_Identity(t *testing.T) {
	pts := []camera.Point2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	h, err := Homography(pts, pts)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, h.At(i, j), 1e-9)
		}
	}
}

func TestFromAxisAngle(t *testing.T) {
	r := FromAxisAngle(camera.Vec3{Z: math.Pi / 2})
	v := r.Apply(camera.Vec3{X: 1})
	assert.InDelta(t, 0, v.X, 1e-12)
	assert.InDelta(t, 1, v.Y, 1e-12)

	assert.Equal(t, Identity, FromAxisAngle(camera.Vec3{}))
	assert.InDelta(t, 1.0, mat.Det(r.Dense()), 1e-12)
}

func TestRotation_Mul(t *testing.T) {
	quarter := FromAxisAngle(camera.Vec3{Z: math.Pi / 2})
	eighth := FromAxisAngle(camera.Vec3{Z: math.Pi / 4})

	got := eighth.Mul(eighth)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, quarter[i][j], got[i][j], 1e-12, "[%d][%d]", i, j)
			assert.InDelta(t, facing[i][j], Identity.Mul(facing)[i][j], 1e-15)
		}
	}
}

func TestPose_Transform(t *testing.T) {
	pose := Pose{
		Rotation:    FromAxisAngle(camera.Vec3{Z: math.Pi / 2}),
		Translation: camera.Vec3{X: 1, Y: 2, Z: 3},
	}

	p := pose.Transform(camera.Vec3{X: 1})
	assert.InDelta(t, 1, p.X, 1e-12)
	assert.InDelta(t, 3, p.Y, 1e-12)
	assert.InDelta(t, 3, p.Z, 1e-12)
	assert.InDelta(t, math.Sqrt(19), p.Norm(), 1e-12)

	d := p.Sub(pose.Translation)
	assert.InDelta(t, 1, d.Norm(), 1e-12, "rotation keeps length")
}
