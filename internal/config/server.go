// Package config provides configuration helpers for go-skyfix commands.
//
// Every value is read from a SKYFIX_* environment variable and falls back to
// a default, so the server starts with no configuration at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the server.
const (
	DefaultPort          = "8000"
	DefaultLogLevel      = "info"
	DefaultDetector      = "yolo"
	DefaultModelPath     = "models/yolov8n.onnx"
	DefaultDetectorURL   = "http://localhost:9000/detect"
	DefaultPrompt        = "phone."
	DefaultFocalMm       = 26.0
	DefaultSensorMm      = 36.0
	DefaultStrategy      = "planar"
	DefaultDetectTimeout = 5 * time.Second
	DefaultIdleTimeout   = 10 * time.Minute
)

// Server holds the settings for cmd/skyfix.
type Server struct {
	Port          string
	LogLevel      string
	Detector      string // "yolo", "remote" or "chain" (yolo, then remote)
	ModelPath     string
	DetectorURL   string
	Prompt        string
	FocalMm       float64
	SensorMm      float64
	PlanarFocal   float64 // 0 = use FocalMm
	Strategy      string  // "planar" or "pose"
	DetectTimeout time.Duration
	IdleTimeout   time.Duration
}

// Load reads the server configuration from the environment.
func Load() (Server, error) {
	cfg := Server{
		Port:        String("SKYFIX_PORT", DefaultPort),
		LogLevel:    String("SKYFIX_LOG_LEVEL", DefaultLogLevel),
		Detector:    String("SKYFIX_DETECTOR", DefaultDetector),
		ModelPath:   String("SKYFIX_MODEL_PATH", DefaultModelPath),
		DetectorURL: String("SKYFIX_DETECTOR_URL", DefaultDetectorURL),
		Prompt:      String("SKYFIX_PROMPT", DefaultPrompt),
		Strategy:    String("SKYFIX_STRATEGY", DefaultStrategy),
	}

	var err error
	if cfg.FocalMm, err = Float("SKYFIX_FOCAL_MM", DefaultFocalMm); err != nil {
		return cfg, err
	}
	if cfg.SensorMm, err = Float("SKYFIX_SENSOR_MM", DefaultSensorMm); err != nil {
		return cfg, err
	}
	if cfg.PlanarFocal, err = Float("SKYFIX_PLANAR_FOCAL", 0); err != nil {
		return cfg, err
	}
	if cfg.DetectTimeout, err = Duration("SKYFIX_DETECT_TIMEOUT", DefaultDetectTimeout); err != nil {
		return cfg, err
	}
	if cfg.IdleTimeout, err = Duration("SKYFIX_IDLE_TIMEOUT", DefaultIdleTimeout); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (s Server) Validate() error {
	switch s.Detector {
	case "yolo", "remote", "chain":
	default:
		return fmt.Errorf("SKYFIX_DETECTOR must be yolo, remote or chain, got %q", s.Detector)
	}
	switch s.Strategy {
	case "planar", "pose":
	default:
		return fmt.Errorf("SKYFIX_STRATEGY must be planar or pose, got %q", s.Strategy)
	}
	if s.FocalMm <= 0 {
		return fmt.Errorf("SKYFIX_FOCAL_MM must be positive, got %v", s.FocalMm)
	}
	if s.SensorMm <= 0 {
		return fmt.Errorf("SKYFIX_SENSOR_MM must be positive, got %v", s.SensorMm)
	}
	if s.PlanarFocal < 0 {
		return fmt.Errorf("SKYFIX_PLANAR_FOCAL must not be negative, got %v", s.PlanarFocal)
	}
	if s.DetectTimeout <= 0 {
		return fmt.Errorf("SKYFIX_DETECT_TIMEOUT must be positive, got %v", s.DetectTimeout)
	}
	return nil
}

// String returns the env var or def when unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Float parses the env var as a float64, or returns def when unset.
func Float(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// Duration parses the env var as a time.Duration, or returns def when unset.
func Duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ServerURL returns the websocket URL of a skyfix server at host.
func ServerURL(host string) string {
	return fmt.Sprintf("ws://%s/ws/stream", host)
}
