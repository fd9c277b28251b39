// Package geodesy converts between WGS-84 geodetic coordinates and
// Earth-Centred Earth-Fixed (ECEF) cartesian coordinates, and provides the
// short-range flat-Earth offsets used to turn local metre displacements into
// latitude/longitude.
package geodesy

import "math"

// WGS-84 ellipsoid parameters.
const (
	SemiMajorAxis  = 6378137.0                      // a, metres
	Flattening     = 1.0 / 298.257223563            // f
	EccentricitySq = Flattening * (2 - Flattening) // e²
)

// Iterations is the fixed number of refinement passes in ECEFToLLA.
//
// Five passes leave a latitude residual well under 1e-9 degrees and an
// altitude residual under a millimetre for points between the surface and a
// few kilometres up. There is no convergence check; raise this for points far
// from the ellipsoid.
const Iterations = 5

// LLA is a geodetic position: degrees and metres above the ellipsoid.
type LLA struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// ECEF is an Earth-Centred Earth-Fixed position in metres.
type ECEF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Array returns the position as [X, Y, Z].
func (e ECEF) Array() [3]float64 {
	return [3]float64{e.X, e.Y, e.Z}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// primeVerticalRadius is N, the radius of curvature in the prime vertical.
func primeVerticalRadius(sinLat float64) float64 {
	return SemiMajorAxis / math.Sqrt(1-EccentricitySq*sinLat*sinLat)
}

// LLAToECEF converts geodetic coordinates to ECEF with the closed-form
// WGS-84 forward transform.
func LLAToECEF(p LLA) ECEF {
	lat := Radians(p.Lat)
	lon := Radians(p.Lon)

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	n := primeVerticalRadius(sinLat)

	return ECEF{
		X: (n + p.Alt) * cosLat * cosLon,
		Y: (n + p.Alt) * cosLat * sinLon,
		Z: (n*(1-EccentricitySq) + p.Alt) * sinLat,
	}
}

// ECEFToLLA converts ECEF coordinates to geodetic coordinates.
//
// Latitude starts from atan2(Z, p(1-e²)) and is refined Iterations times,
// recomputing N and altitude on each pass. Longitude is exact.
func ECEFToLLA(e ECEF) LLA {
	lon := math.Atan2(e.Y, e.X)
	p := math.Hypot(e.X, e.Y)

	lat := math.Atan2(e.Z, p*(1-EccentricitySq))
	var alt float64
	for i := 0; i < Iterations; i++ {
		sinLat := math.Sin(lat)
		n := primeVerticalRadius(sinLat)
		alt = altitude(p, e.Z, lat, n)
		lat = math.Atan2(e.Z, p*(1-EccentricitySq*n/(n+alt)))
	}

	sinLat := math.Sin(lat)
	alt = altitude(p, e.Z, lat, primeVerticalRadius(sinLat))

	return LLA{
		Lat: Degrees(lat),
		Lon: Degrees(lon),
		Alt: alt,
	}
}

// altitude picks the better-conditioned height formula; p/cos(lat) blows up
// near the poles.
func altitude(p, z, lat, n float64) float64 {
	cosLat := math.Cos(lat)
	if math.Abs(cosLat) > 1e-10 {
		return p/cosLat - n
	}
	return math.Abs(z)/math.Abs(math.Sin(lat)) - n*(1-EccentricitySq)
}
