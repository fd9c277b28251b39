package pnp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-skyfix/pkg/camera"
)

// rankTolerance is the smallest ratio between the 8th and 1st singular
// values of the DLT system that still pins down a unique homography.
const rankTolerance = 1e-9

// Homography estimates H with dst ~ H·src by the normalised direct linear
// transform. At least four correspondences with no three collinear are
// required.
func Homography(src, dst []camera.Point2) (*mat.Dense, error) {
	if len(src) != len(dst) {
		return nil, fmt.Errorf("%w: %d source and %d destination points", ErrDegenerate, len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, fmt.Errorf("%w: need 4 points, got %d", ErrDegenerate, len(src))
	}

	ns, ts, err := normalizePoints(src)
	if err != nil {
		return nil, err
	}
	nd, td, err := normalizePoints(dst)
	if err != nil {
		return nil, err
	}

	rows := 2 * len(src)
	if rows < 9 {
		rows = 9
	}
	a := mat.NewDense(rows, 9, nil)
	for i := range ns {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, fmt.Errorf("%w: svd failed", ErrDegenerate)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7]/values[0] < rankTolerance {
		return nil, fmt.Errorf("%w: points are collinear", ErrDegenerate)
	}

	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// H = Td⁻¹ · Hn · Ts
	var tmp, h mat.Dense
	tmp.Mul(invertSimilarity(td), hn)
	h.Mul(&tmp, ts)

	if z := h.At(2, 2); z != 0 {
		h.Scale(1/z, &h)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !finite(h.At(i, j)) {
				return nil, fmt.Errorf("%w: non-finite homography", ErrDegenerate)
			}
		}
	}
	return &h, nil
}

// normalizePoints translates points to their centroid and scales them to a
// mean distance of √2, returning the similarity that does it.
func normalizePoints(pts []camera.Point2) ([]camera.Point2, *mat.Dense, error) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	if mean == 0 || !finite(mean, cx, cy) {
		return nil, nil, fmt.Errorf("%w: coincident points", ErrDegenerate)
	}

	s := math.Sqrt2 / mean
	out := make([]camera.Point2, len(pts))
	for i, p := range pts {
		out[i] = camera.Point2{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	return out, t, nil
}

func invertSimilarity(t *mat.Dense) *mat.Dense {
	s := t.At(0, 0)
	return mat.NewDense(3, 3, []float64{
		1 / s, 0, -t.At(0, 2) / s,
		0, 1 / s, -t.At(1, 2) / s,
		0, 0, 1,
	})
}
