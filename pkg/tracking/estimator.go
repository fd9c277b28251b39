package tracking

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-skyfix/pkg/camera"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// Strategy selects how a detection becomes a position.
type Strategy string

const (
	// StrategyPlanar infers distance from apparent width and displacement
	// from the centre's pixel shift (similar triangles).
	StrategyPlanar Strategy = "planar"
	// StrategyPose solves the target's full pose and reports geodetic fixes.
	StrategyPose Strategy = "pose"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyPlanar:
		return StrategyPlanar, nil
	case StrategyPose:
		return StrategyPose, nil
	}
	return "", configErrorf("strategy", "unknown strategy %q", s)
}

// Reference is a session's home state. Start and the object dimensions are
// fixed at open; StartCenter and HomeTranslation are captured once, from the
// first detection the estimator can anchor on.
type Reference struct {
	Start          Location `json:"start"`
	ObjectWidthMm  float64  `json:"object_width_mm"`
	ObjectHeightMm float64  `json:"object_height_mm,omitempty"` // 0 until known
	AzimuthDeg     float64  `json:"azimuth_deg"`

	StartCenter     *detection.Point `json:"start_center,omitempty"`
	HomeTranslation *camera.Vec3     `json:"home_translation,omitempty"`
}

// Anchored reports whether the home state has been captured.
func (r Reference) Anchored() bool {
	return r.StartCenter != nil || r.HomeTranslation != nil
}

// Anchor is home state an estimate proposes for capture. Fields are only
// applied to a Reference that does not have them yet.
type Anchor struct {
	Center         *detection.Point
	Translation    *camera.Vec3
	ObjectHeightMm float64
}

// apply fills unset reference fields from a. It reports whether anything
// changed.
func (a Anchor) apply(ref *Reference) bool {
	changed := false
	if a.Center != nil && ref.StartCenter == nil {
		c := *a.Center
		ref.StartCenter = &c
		changed = true
	}
	if a.Translation != nil && ref.HomeTranslation == nil {
		t := *a.Translation
		ref.HomeTranslation = &t
		changed = true
	}
	if a.ObjectHeightMm > 0 && ref.ObjectHeightMm == 0 {
		ref.ObjectHeightMm = a.ObjectHeightMm
		changed = true
	}
	return changed
}

// Estimate is an estimator's answer for one detection.
type Estimate struct {
	Planar *PlanarFix
	Geo    *GeoFix
	Anchor Anchor
}

// Estimator turns a detection into a position relative to the reference.
// Implementations are pure: they never modify ref. An estimate returned with
// an error carries only the anchor, if any, the detection still provides.
type Estimator interface {
	Strategy() Strategy
	Estimate(ref Reference, det detection.Detected) (Estimate, error)
}

// validateBox rejects malformed boxes before any geometry runs.
func validateBox(b detection.BoundingBox) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
