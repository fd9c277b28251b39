package geodesy

import "math"

// MetersPerDegree is the approximate length of one degree of latitude.
const MetersPerDegree = 111132.0

// Rotate turns a camera-frame horizontal displacement into north/east metres
// using the camera azimuth (0 = north, clockwise positive).
func Rotate(dx, dy, azimuthDeg float64) (north, east float64) {
	rad := Radians(azimuthDeg)
	sin, cos := math.Sin(rad), math.Cos(rad)
	north = dy*cos - dx*sin
	east = dy*sin + dx*cos
	return north, east
}

// Offset moves origin by north/east metres with a flat-Earth approximation:
// one degree of latitude is MetersPerDegree and one degree of longitude is
// MetersPerDegree·cos(lat). Valid only for displacements that are small next
// to the Earth's radius; no great-circle correction is applied. Altitude is
// copied from origin.
func Offset(origin LLA, north, east float64) LLA {
	latStep := MetersPerDegree
	lonStep := MetersPerDegree * math.Cos(Radians(origin.Lat))

	out := origin
	out.Lat += north / latStep
	if lonStep != 0 {
		out.Lon += east / lonStep
	}
	return out
}
