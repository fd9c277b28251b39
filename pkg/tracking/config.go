package tracking

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-skyfix/pkg/pnp"
)

// Config holds the tunable parameters of a Manager.
type Config struct {
	// Strategy used by sessions that do not ask for one.
	Strategy Strategy

	// Prompt describes the reference object to the detector.
	Prompt string

	// PlanarFocal is the focal length the planar strategy divides by.
	// 0 uses the camera's focal length in millimetres; set a calibrated
	// focal length in pixels (see camera.EstimateFocalLength) for metric
	// displacements.
	PlanarFocal float64

	// Timing
	DetectTimeout time.Duration // Upper bound on one detector call
	IdleTimeout   time.Duration // Close sessions without updates for this long (0 = never)
	SweepInterval time.Duration // How often Run looks for idle sessions

	// Pose solver
	Solver []pnp.Option

	// Observability
	Logger *slog.Logger
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyPlanar,
		Prompt:        "phone.",
		DetectTimeout: 5 * time.Second,
		IdleTimeout:   10 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

// FastConfig returns a configuration for low-latency links where a slow
// detector answer is worthless.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.DetectTimeout = time.Second
	cfg.IdleTimeout = 2 * time.Minute
	cfg.SweepInterval = 10 * time.Second
	return cfg
}

// Validate rejects configurations the manager cannot run with.
func (c Config) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.DetectTimeout <= 0 {
		return configErrorf("detect_timeout", "must be positive, got %v", c.DetectTimeout)
	}
	if c.IdleTimeout < 0 {
		return configErrorf("idle_timeout", "must not be negative, got %v", c.IdleTimeout)
	}
	if c.IdleTimeout > 0 && c.SweepInterval <= 0 {
		return configErrorf("sweep_interval", "must be positive when idle_timeout is set")
	}
	if c.PlanarFocal < 0 || !finite(c.PlanarFocal) {
		return configErrorf("planar_focal", "must not be negative, got %v", c.PlanarFocal)
	}
	return nil
}

// Option is a functional option for configuring a Manager.
type Option func(*Config)

// WithStrategy sets the default strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Config) { c.Strategy = s }
}

// WithPrompt sets the detector prompt.
func WithPrompt(p string) Option {
	return func(c *Config) { c.Prompt = p }
}

// WithPlanarFocal sets the planar strategy's focal length.
func WithPlanarFocal(f float64) Option {
	return func(c *Config) { c.PlanarFocal = f }
}

// WithDetectTimeout bounds each detector call.
func WithDetectTimeout(d time.Duration) Option {
	return func(c *Config) { c.DetectTimeout = d }
}

// WithIdleTimeout sets how long a session may go without updates.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithSweepInterval sets how often idle sessions are looked for.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.SweepInterval = d }
}

// WithSolver passes options to the pose solver.
func WithSolver(opts ...pnp.Option) Option {
	return func(c *Config) { c.Solver = append(c.Solver, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
