package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoDetectors is returned by NewChain without detectors.
var ErrNoDetectors = errors.New("detection: chain needs at least one detector")

// Chain tries detectors in order until one answers without error.
// A NotDetected answer is an answer: later detectors are not asked.
type Chain struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewChain creates a detector chain.
func NewChain(detectors ...Detector) (*Chain, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	return &Chain{
		detectors: detectors,
		logger:    slog.Default().With("component", "detection.chain"),
	}, nil
}

// WithLogger replaces the chain's logger.
func (c *Chain) WithLogger(l *slog.Logger) *Chain {
	c.logger = l.With("component", "detection.chain")
	return c
}

// Detect implements Detector.
func (c *Chain) Detect(ctx context.Context, image []byte, prompt string) (Detection, error) {
	var errs []error

	for i, d := range c.detectors {
		det, err := d.Detect(ctx, image, prompt)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback detector succeeded", "detector_index", i)
			}
			return det, nil
		}

		errs = append(errs, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("detector failed, trying next", "detector_index", i, "error", err)
	}

	return nil, &ChainError{Errors: errs}
}

// Len returns the number of detectors in the chain.
func (c *Chain) Len() int {
	return len(c.detectors)
}

// ChainError collects the errors of every detector in a chain.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("detection chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("detection chain: all %d detectors failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns every collected error.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var _ Detector = (*Chain)(nil)
