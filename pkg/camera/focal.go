package camera

import (
	"errors"
	"fmt"
)

// ErrZeroLength is returned when a pixel measurement is zero and would be
// divided into.
var ErrZeroLength = errors.New("camera: zero pixel length")

// EstimateFocalLength returns the focal length, in pixels, that places an
// object of realWidth at distance when it appears pixelWidth wide. realWidth
// and distance must share a unit.
func EstimateFocalLength(pixelWidth, realWidth, distance float64) (float64, error) {
	if realWidth <= 0 {
		return 0, fmt.Errorf("%w: real width %v", ErrInvalidConfig, realWidth)
	}
	if distance <= 0 {
		return 0, fmt.Errorf("%w: distance %v", ErrInvalidConfig, distance)
	}
	if pixelWidth <= 0 {
		return 0, ErrZeroLength
	}
	return pixelWidth * distance / realWidth, nil
}

// RealLength converts an apparent length in pixels to a physical length at
// distance, using the same unit as distance.
func RealLength(pixelLength, distance, focal float64) float64 {
	if focal == 0 {
		return 0
	}
	return pixelLength * distance / focal
}
