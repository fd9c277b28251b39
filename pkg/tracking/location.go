package tracking

import (
	"math"

	"github.com/teslashibe/go-skyfix/pkg/geodesy"
)

// LocationKind tells which half of a Location is meaningful.
type LocationKind string

const (
	// Cartesian locations are local X, Y, Z in millimetres.
	Cartesian LocationKind = "cartesian"
	// Geodetic locations are WGS84 latitude/longitude in degrees and
	// altitude in metres.
	Geodetic LocationKind = "geodetic"
)

// Location is a session's starting point. The planar strategy works in a
// local cartesian frame; the pose strategy needs a geodetic origin.
type Location struct {
	Kind LocationKind `json:"kind"`

	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	Z float64 `json:"z,omitempty"`

	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`
	Alt float64 `json:"alt,omitempty"`
}

// CartesianLocation returns a local position in millimetres.
func CartesianLocation(x, y, z float64) Location {
	return Location{Kind: Cartesian, X: x, Y: y, Z: z}
}

// GeodeticLocation returns a WGS84 position.
func GeodeticLocation(lat, lon, alt float64) Location {
	return Location{Kind: Geodetic, Lat: lat, Lon: lon, Alt: alt}
}

// ECEFLocation converts an earth-centred position in metres to a geodetic
// Location.
func ECEFLocation(e geodesy.ECEF) Location {
	lla := geodesy.ECEFToLLA(e)
	return GeodeticLocation(lla.Lat, lla.Lon, lla.Alt)
}

// LLA returns the geodetic half of the location.
func (l Location) LLA() geodesy.LLA {
	return geodesy.LLA{Lat: l.Lat, Lon: l.Lon, Alt: l.Alt}
}

// Validate checks the coordinates for the location's kind.
func (l Location) Validate() error {
	switch l.Kind {
	case Cartesian:
		if !finite(l.X, l.Y, l.Z) {
			return configErrorf("start", "non-finite coordinates")
		}
	case Geodetic:
		if !finite(l.Lat, l.Lon, l.Alt) {
			return configErrorf("start", "non-finite coordinates")
		}
		if l.Lat < -90 || l.Lat > 90 {
			return configErrorf("start", "latitude %v out of range", l.Lat)
		}
		if l.Lon < -180 || l.Lon > 180 {
			return configErrorf("start", "longitude %v out of range", l.Lon)
		}
	default:
		return configErrorf("start", "unknown location kind %q", l.Kind)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
