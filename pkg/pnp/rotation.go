package pnp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-skyfix/pkg/camera"
)

// Rotation is a row-major 3x3 rotation matrix.
type Rotation [3][3]float64

// Identity is the rotation that leaves every vector unchanged.
var Identity = Rotation{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// Apply returns R·v.
func (r Rotation) Apply(v camera.Vec3) camera.Vec3 {
	return camera.Vec3{X: r.row(0).Dot(v), Y: r.row(1).Dot(v), Z: r.row(2).Dot(v)}
}

func (r Rotation) row(i int) camera.Vec3 {
	return camera.Vec3{X: r[i][0], Y: r[i][1], Z: r[i][2]}
}

// Mul returns r·o.
func (r Rotation) Mul(o Rotation) Rotation {
	var m mat.Dense
	m.Mul(r.Dense(), o.Dense())
	return fromDense(&m)
}

// Dense returns the rotation as a gonum matrix.
func (r Rotation) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		r[0][0], r[0][1], r[0][2],
		r[1][0], r[1][1], r[1][2],
		r[2][0], r[2][1], r[2][2],
	})
}

// FromAxisAngle builds a rotation from a rotation vector (axis scaled by
// angle in radians) with the Rodrigues formula.
func FromAxisAngle(w camera.Vec3) Rotation {
	theta := w.Norm()
	if theta < 1e-15 {
		return Identity
	}
	axis := w.Mul(1 / theta)
	x, y, z := axis.X, axis.Y, axis.Z
	s, c := math.Sin(theta), math.Cos(theta)
	t := 1 - c
	return Rotation{
		{c + x*x*t, x*y*t - z*s, x*z*t + y*s},
		{y*x*t + z*s, c + y*y*t, y*z*t - x*s},
		{z*x*t - y*s, z*y*t + x*s, c + z*z*t},
	}
}

// orthonormalize returns the rotation closest to m in the Frobenius norm
// (U·Vᵀ from its SVD), with the sign fixed so the determinant is +1.
func orthonormalize(m *mat.Dense) (Rotation, bool) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return Rotation{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	return fromDense(&r), true
}

func fromDense(m mat.Matrix) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
