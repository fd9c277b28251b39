package detection

import (
	"context"
	"sync"
)

// Mock is a Detector for tests. It replays Results in order and then keeps
// returning the last one. DetectFunc, when set, takes precedence.
type Mock struct {
	DetectFunc func(ctx context.Context, image []byte, prompt string) (Detection, error)
	Results    []Detection

	mu      sync.Mutex
	calls   int
	prompts []string
}

// NewMock returns a Mock that replays results.
func NewMock(results ...Detection) *Mock {
	return &Mock{Results: results}
}

// Detect implements Detector.
func (m *Mock) Detect(ctx context.Context, image []byte, prompt string) (Detection, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, image, prompt)
	}
	if len(m.Results) == 0 {
		return NotDetected{}, nil
	}
	if i >= len(m.Results) {
		i = len(m.Results) - 1
	}
	return m.Results[i], nil
}

// Calls returns how many times Detect ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts Detect was called with.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
