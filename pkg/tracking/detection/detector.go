// Package detection defines what a reference-object detector returns and the
// contract every detector backend implements.
package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBox is returned for boxes with non-finite or inverted coordinates.
var ErrInvalidBox = errors.New("detection: invalid bounding box")

// Point is an image position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned box in pixels, (X1,Y1) top-left and
// (X2,Y2) bottom-right.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Box builds a BoundingBox from [x1, y1, x2, y2].
func Box(xyxy [4]float64) BoundingBox {
	return BoundingBox{X1: xyxy[0], Y1: xyxy[1], X2: xyxy[2], Y2: xyxy[3]}
}

// Validate rejects non-finite coordinates and inverted boxes. A zero-width
// box is valid.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %v", ErrInvalidBox, b)
		}
	}
	if b.X2 < b.X1 || b.Y2 < b.Y1 {
		return fmt.Errorf("%w: inverted box %v", ErrInvalidBox, b)
	}
	return nil
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Width returns the horizontal extent in pixels.
func (b BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent in pixels.
func (b BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Corners returns top-left, top-right, bottom-right, bottom-left.
func (b BoundingBox) Corners() [4]Point {
	return [4]Point{
		{X: b.X1, Y: b.Y1},
		{X: b.X2, Y: b.Y1},
		{X: b.X2, Y: b.Y2},
		{X: b.X1, Y: b.Y2},
	}
}

// Detection is the outcome of running a detector on one frame. It is either
// Detected or NotDetected.
type Detection interface {
	isDetection()
}

// Detected is a recognised reference object.
type Detected struct {
	Label string      `json:"label"`
	Score float64     `json:"score"` // 0-1
	Box   BoundingBox `json:"box"`
}

// NotDetected means the frame held no acceptable candidate.
type NotDetected struct{}

func (Detected) isDetection()    {}
func (NotDetected) isDetection() {}

// Detector is the interface for object detection backends.
type Detector interface {
	// Detect finds the object described by prompt in an encoded image.
	Detect(ctx context.Context, image []byte, prompt string) (Detection, error)
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context, image []byte, prompt string) (Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, image []byte, prompt string) (Detection, error) {
	return f(ctx, image, prompt)
}

// SelectBest picks the highest-scoring candidate. Ties keep the earliest.
// An empty list yields NotDetected.
func SelectBest(candidates []Detected) Detection {
	if len(candidates) == 0 {
		return NotDetected{}
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[best].Score {
			best = i
		}
	}
	return candidates[best]
}

// Filter keeps candidates scoring at least minScore whose label is accepted.
// A nil accept keeps every label.
func Filter(candidates []Detected, minScore float64, accept func(label string) bool) []Detected {
	var out []Detected
	for _, c := range candidates {
		if c.Score < minScore {
			continue
		}
		if accept != nil && !accept(c.Label) {
			continue
		}
		out = append(out, c)
	}
	return out
}
