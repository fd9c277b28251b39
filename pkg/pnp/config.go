package pnp

// Config holds solver tuning.
type Config struct {
	// MaxReprojectionPx rejects poses whose RMS reprojection error, in
	// pixels, exceeds this value.
	MaxReprojectionPx float64

	// Refinement budget for the Nelder-Mead pass.
	MaxEvaluations int
	Refine         bool
}

// DefaultConfig returns the solver settings used by the pose strategy.
// Bounding boxes are axis-aligned, so a tilted target never reprojects
// exactly; the threshold is loose enough to accept that.
func DefaultConfig() Config {
	return Config{
		MaxReprojectionPx: 10,
		MaxEvaluations:    4000,
		Refine:            true,
	}
}

// Option is a functional option for configuring the solver.
type Option func(*Config)

// WithMaxReprojection sets the RMS reprojection threshold in pixels.
func WithMaxReprojection(px float64) Option {
	return func(c *Config) { c.MaxReprojectionPx = px }
}

// WithRefinement toggles the iterative refinement pass.
func WithRefinement(on bool) Option {
	return func(c *Config) { c.Refine = on }
}

// WithMaxEvaluations bounds the refinement's cost evaluations.
func WithMaxEvaluations(n int) Option {
	return func(c *Config) { c.MaxEvaluations = n }
}
