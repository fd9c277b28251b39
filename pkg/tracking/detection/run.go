package detection

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned by Run when the context ends before the detector
// answers.
var ErrTimeout = errors.New("detection: timed out")

type result struct {
	det Detection
	err error
}

// Run calls d and returns as soon as it answers or ctx is done, whichever
// comes first. Backends that ignore ctx keep running in the background and
// their late answer is dropped.
func Run(ctx context.Context, d Detector, image []byte, prompt string) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	done := make(chan result, 1)
	go func() {
		det, err := d.Detect(ctx, image, prompt)
		done <- result{det, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
			}
			return nil, r.err
		}
		if r.det == nil {
			return NotDetected{}, nil
		}
		return r.det, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
