package detection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestBoundingBox_Center(t *testing.T) {
	tests := []struct {
		name    string
		box     BoundingBox
		expectX float64
		expectY float64
	}{
		{
			name:    "simple box",
			box:     Box([4]float64{10, 20, 30, 60}),
			expectX: 20,
			expectY: 40,
		},
		{
			name:    "degenerate point",
			box:     Box([4]float64{5, 5, 5, 5}),
			expectX: 5,
			expectY: 5,
		},
		{
			name:    "reference phone",
			box:     Box([4]float64{644.24, 569.27, 767.01, 1077.30}),
			expectX: 705.625,
			expectY: 823.285,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.box.Center()
			if math.Abs(c.X-tc.expectX) > 1e-9 {
				t.Errorf("Center X: got %.4f, want %.4f", c.X, tc.expectX)
			}
			if math.Abs(c.Y-tc.expectY) > 1e-9 {
				t.Errorf("Center Y: got %.4f, want %.4f", c.Y, tc.expectY)
			}
		})
	}
}

func TestBoundingBox_Dimensions(t *testing.T) {
	b := Box([4]float64{10, 20, 30, 60})
	if b.Width() != 20 {
		t.Errorf("Width: got %v, want 20", b.Width())
	}
	if b.Height() != 40 {
		t.Errorf("Height: got %v, want 40", b.Height())
	}

	zero := Box([4]float64{7, 1, 7, 9})
	if zero.Width() != 0 {
		t.Errorf("zero-width box: got %v", zero.Width())
	}
}

func TestBoundingBox_Corners(t *testing.T) {
	got := Box([4]float64{1, 2, 3, 4}).Corners()
	want := [4]Point{{1, 2}, {3, 2}, {3, 4}, {1, 4}}
	if got != want {
		t.Errorf("Corners: got %v, want %v", got, want)
	}
}

func TestBoundingBox_Validate(t *testing.T) {
	tests := []struct {
		name    string
		box     BoundingBox
		wantErr bool
	}{
		{"valid", Box([4]float64{0, 0, 10, 10}), false},
		{"zero width is valid", Box([4]float64{5, 0, 5, 10}), false},
		{"inverted x", Box([4]float64{10, 0, 5, 10}), true},
		{"inverted y", Box([4]float64{0, 10, 5, 0}), true},
		{"nan", Box([4]float64{math.NaN(), 0, 5, 10}), true},
		{"inf", Box([4]float64{0, 0, math.Inf(1), 10}), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.box.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidBox) {
					t.Errorf("Validate: got %v, want ErrInvalidBox", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate: unexpected error %v", err)
			}
		})
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Detected
		expectNone bool
		expectIdx  int
	}{
		{
			name:       "empty list",
			candidates: nil,
			expectNone: true,
		},
		{
			name:       "single detection",
			candidates: []Detected{{Label: "phone", Score: 0.4}},
			expectIdx:  0,
		},
		{
			name: "highest score wins",
			candidates: []Detected{
				{Label: "phone", Score: 0.5, Box: Box([4]float64{0, 0, 400, 400})},
				{Label: "phone", Score: 0.95, Box: Box([4]float64{0, 0, 10, 10})},
			},
			expectIdx: 1,
		},
		{
			name: "tie keeps first",
			candidates: []Detected{
				{Label: "a", Score: 0.8},
				{Label: "b", Score: 0.8},
			},
			expectIdx: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			best := SelectBest(tc.candidates)
			if tc.expectNone {
				if _, ok := best.(NotDetected); !ok {
					t.Errorf("SelectBest: expected NotDetected, got %+v", best)
				}
				return
			}

			got, ok := best.(Detected)
			if !ok {
				t.Fatalf("SelectBest: expected Detected, got %T", best)
			}
			if got != tc.candidates[tc.expectIdx] {
				t.Errorf("SelectBest: got %+v, want %+v", got, tc.candidates[tc.expectIdx])
			}
		})
	}
}

func TestFilter(t *testing.T) {
	in := []Detected{
		{Label: "cell phone", Score: 0.9},
		{Label: "cell phone", Score: 0.1},
		{Label: "cup", Score: 0.9},
	}
	got := Filter(in, 0.25, func(l string) bool { return l == "cell phone" })
	if len(got) != 1 || got[0] != in[0] {
		t.Errorf("Filter: got %+v", got)
	}
	if n := len(Filter(in, 0.25, nil)); n != 2 {
		t.Errorf("Filter without label check: got %d, want 2", n)
	}
}

func TestRun_ReturnsResult(t *testing.T) {
	want := Detected{Label: "phone", Score: 0.7, Box: Box([4]float64{1, 2, 3, 4})}
	m := NewMock(want)

	got, err := Run(context.Background(), m, []byte("jpeg"), "phone.")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != want {
		t.Errorf("Run: got %+v, want %+v", got, want)
	}
	if p := m.Prompts(); len(p) != 1 || p[0] != "phone." {
		t.Errorf("prompts: got %v", p)
	}
}

func TestRun_NilDetectionIsNotDetected(t *testing.T) {
	d := Func(func(context.Context, []byte, string) (Detection, error) { return nil, nil })
	got, err := Run(context.Background(), d, nil, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := got.(NotDetected); !ok {
		t.Errorf("Run: got %T, want NotDetected", got)
	}
}

func TestRun_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	// ignores ctx, like a blocking inference call
	d := Func(func(context.Context, []byte, string) (Detection, error) {
		<-block
		return NotDetected{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, d, nil, "")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run: got %v, want ErrTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run: %v should wrap DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Run did not return promptly")
	}
}

func TestRun_BackendError(t *testing.T) {
	boom := errors.New("boom")
	m := &Mock{DetectFunc: func(context.Context, []byte, string) (Detection, error) { return nil, boom }}
	_, err := Run(context.Background(), m, nil, "")
	if !errors.Is(err, boom) {
		t.Errorf("Run: got %v, want boom", err)
	}
}

func TestMock_ReplaysLast(t *testing.T) {
	a := Detected{Label: "a"}
	b := NotDetected{}
	m := NewMock(a, b)
	for i, want := range []Detection{a, b, b} {
		got, _ := m.Detect(context.Background(), nil, "")
		if got != want {
			t.Errorf("call %d: got %+v, want %+v", i, got, want)
		}
	}
	if m.Calls() != 3 {
		t.Errorf("Calls: got %d", m.Calls())
	}
}

func TestChainFallback(t *testing.T) {
	failing := &Mock{DetectFunc: func(context.Context, []byte, string) (Detection, error) {
		return nil, errors.New("model not loaded")
	}}
	phone := Detected{Label: "cell phone", Score: 0.9}
	working := NewMock(phone)

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	got, err := chain.Detect(context.Background(), nil, "phone.")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got != phone {
		t.Errorf("Detect: got %+v, want %+v", got, phone)
	}
	if failing.Calls() != 1 || working.Calls() != 1 {
		t.Errorf("calls: %d, %d", failing.Calls(), working.Calls())
	}
}

func TestChainNotDetectedStops(t *testing.T) {
	first := NewMock(NotDetected{})
	second := NewMock(Detected{Label: "cell phone"})

	chain, _ := NewChain(first, second)
	got, err := chain.Detect(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := got.(NotDetected); !ok {
		t.Errorf("Detect: got %T, want NotDetected", got)
	}
	if second.Calls() != 0 {
		t.Errorf("second detector should not run")
	}
}

func TestChainAllFail(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	chain, _ := NewChain(
		Func(func(context.Context, []byte, string) (Detection, error) { return nil, e1 }),
		Func(func(context.Context, []byte, string) (Detection, error) { return nil, e2 }),
	)

	_, err := chain.Detect(context.Background(), nil, "")
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(chainErr.Errors))
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("%v should wrap both errors", err)
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	second := NewMock(Detected{})
	chain, _ := NewChain(
		Func(func(context.Context, []byte, string) (Detection, error) {
			cancel()
			return nil, errors.New("interrupted")
		}),
		second,
	)

	_, err := chain.Detect(ctx, nil, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Detect: got %v, want Canceled", err)
	}
	if second.Calls() != 0 {
		t.Errorf("second detector should not run after cancel")
	}
}

func TestNewChainEmpty(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrNoDetectors) {
		t.Errorf("NewChain(): got %v", err)
	}
}
