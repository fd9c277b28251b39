package tracking

import (
	"time"

	"github.com/teslashibe/go-skyfix/pkg/geodesy"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// PlanarFix is a position in the session's local cartesian frame, in
// millimetres.
type PlanarFix struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	DistanceMm float64 `json:"distance_mm"`

	// Displacement from the home centre.
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	PixelDX float64 `json:"pixel_dx"`
	PixelDY float64 `json:"pixel_dy"`

	// Apparent physical height of the object at DistanceMm.
	ObjectHeightMm float64 `json:"object_height_mm"`
}

// GeoFix is a geodetic position derived from the object's pose.
type GeoFix struct {
	Lat                float64      `json:"lat"`
	Lon                float64      `json:"lon"`
	AltitudeM          float64      `json:"altitude_m"`            // above home, 3 decimals
	DistanceFromStartM float64      `json:"distance_from_start_m"` // horizontal, 2 decimals
	North              float64      `json:"north_m"`
	East               float64      `json:"east_m"`
	ECEF               geodesy.ECEF `json:"ecef"`
}

// Fix is the outcome of one successful update. Exactly one of Planar and
// Geo is set, depending on the session's strategy.
type Fix struct {
	SessionID string    `json:"session_id"`
	Strategy  Strategy  `json:"strategy"`
	Timestamp time.Time `json:"timestamp"`

	// Home is true for the fix that captured the session's reference.
	Home bool `json:"home"`

	Planar *PlanarFix `json:"planar,omitempty"`
	Geo    *GeoFix    `json:"geo,omitempty"`

	Detection detection.Detected `json:"detection"`
}
