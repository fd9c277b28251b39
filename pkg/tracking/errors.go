package tracking

import (
	"errors"
	"fmt"
)

// Frame-level failures. The session stays usable and its reference is left
// untouched; the caller simply has no fix for this frame.
var (
	// ErrNoDetection is returned when the detector found nothing this frame.
	ErrNoDetection = errors.New("tracking: no detection")

	// ErrUndefinedDistance is returned for a zero pixel width.
	ErrUndefinedDistance = errors.New("tracking: undefined distance")

	// ErrPoseSolve is returned when the perspective solver found no
	// consistent pose.
	ErrPoseSolve = errors.New("tracking: pose solve failed")

	// ErrDetectorTimeout is returned when the detector did not answer within
	// the configured timeout.
	ErrDetectorTimeout = errors.New("tracking: detector timed out")

	// ErrDetectorFailed wraps any other detector backend error.
	ErrDetectorFailed = errors.New("tracking: detector failed")
)

// Session-level failures.
var (
	// ErrUnknownSession is returned for ids not present in the store.
	ErrUnknownSession = errors.New("tracking: unknown session")

	// ErrSessionClosed is returned when a session was closed while a frame
	// for it was being processed.
	ErrSessionClosed = errors.New("tracking: session closed")

	// ErrInvalidConfig is returned for camera, object or request parameters
	// that cannot produce meaningful geometry.
	ErrInvalidConfig = errors.New("tracking: invalid configuration")
)

// ConfigError names the offending parameter of an invalid configuration.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("tracking: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsFrameFailure reports whether err only invalidates the current frame.
func IsFrameFailure(err error) bool {
	return errors.Is(err, ErrNoDetection) ||
		errors.Is(err, ErrUndefinedDistance) ||
		errors.Is(err, ErrPoseSolve) ||
		errors.Is(err, ErrDetectorTimeout) ||
		errors.Is(err, ErrDetectorFailed)
}

// Reason returns a short machine-readable code for err, used on the wire.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoDetection):
		return "no_detection"
	case errors.Is(err, ErrUndefinedDistance):
		return "undefined_distance"
	case errors.Is(err, ErrPoseSolve):
		return "pose_solve_failed"
	case errors.Is(err, ErrDetectorTimeout):
		return "detector_timeout"
	case errors.Is(err, ErrDetectorFailed):
		return "detector_failed"
	case errors.Is(err, ErrUnknownSession):
		return "unknown_session"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	default:
		return "internal"
	}
}
