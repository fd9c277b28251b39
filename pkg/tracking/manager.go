package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-skyfix/internal/log"
	"github.com/teslashibe/go-skyfix/pkg/camera"
	"github.com/teslashibe/go-skyfix/pkg/pnp"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// OpenRequest describes a new session.
type OpenRequest struct {
	// Start is cartesian (mm) for the planar strategy and geodetic for the
	// pose strategy.
	Start Location

	// Physical size of the reference object. Height is optional; without it
	// the pose strategy takes the aspect ratio of the anchoring box.
	ObjectWidthCm  float64
	ObjectHeightCm float64

	// Strategy overrides the manager's default when set.
	Strategy Strategy

	// AzimuthDeg is the camera's compass heading, 0 = north, clockwise.
	AzimuthDeg float64

	// Frame is an optional first image. Its detection, if any, anchors the
	// session immediately.
	Frame     []byte
	Timestamp time.Time

	// Frame resolution, when it differs from the camera configuration.
	FrameWidth  int
	FrameHeight int
}

// Stats summarises manager activity since start.
type Stats struct {
	Live     int    `json:"live"`
	Opened   uint64 `json:"opened"`
	Closed   uint64 `json:"closed"`
	Expired  uint64 `json:"expired"`
	Updates  uint64 `json:"updates"`
	Fixes    uint64 `json:"fixes"`
	Failures uint64 `json:"failures"`
	Timeouts uint64 `json:"timeouts"`
}

// Manager owns the flying sessions: it opens them, routes frames through
// the detector and the session's estimator, and closes them.
//
// The detector runs without any lock held. Only the estimator step and the
// anchor capture run under the session's lock, so frames of different
// sessions never wait on each other.
type Manager struct {
	config   Config
	detector detection.Detector
	camera   *camera.Manager
	store    Store
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	onFix func(Fix)

	opened, closed, expired  atomic.Uint64
	updates, fixes, failures atomic.Uint64
	timeouts                 atomic.Uint64
}

// NewManager creates a session manager. A nil camera uses the default
// camera configuration and a nil store keeps sessions in memory.
func NewManager(det detection.Detector, cam *camera.Manager, store Store, opts ...Option) (*Manager, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if det == nil {
		return nil, configErrorf("detector", "required")
	}
	if cam == nil {
		cam = camera.NewManager()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.For("tracking")
	}

	return &Manager{
		config:   cfg,
		detector: det,
		camera:   cam,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Camera returns the camera configuration new sessions are built from.
func (m *Manager) Camera() *camera.Manager {
	return m.camera
}

// OnFix registers a callback invoked with every fix, after the session lock
// is released.
func (m *Manager) OnFix(fn func(Fix)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFix = fn
}

// Open validates the request, creates a session and, when a first frame is
// given, tries to anchor it. A first frame without a usable detection still
// opens the session; the anchor is captured by a later update.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (SessionInfo, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = m.config.Strategy
	}
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return SessionInfo{}, err
	}

	ref, est, err := m.prepare(req, strategy)
	if err != nil {
		return SessionInfo{}, err
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}

	var first detection.Detection
	if len(req.Frame) > 0 {
		first, err = m.detect(ctx, req.Frame)
		if err != nil {
			m.logger.Warn("first frame detection failed", "error", err)
		}
	}

	s := m.store.Create(func(id string) *Session {
		return newSession(id, ref, est, ts)
	})
	m.opened.Add(1)
	m.logger.Info("session opened",
		"session", s.ID,
		"strategy", s.Strategy,
		"object_width_mm", ref.ObjectWidthMm,
		"start", ref.Start,
	)

	if first != nil {
		m.updates.Add(1)
		fix, err := s.apply(first, ts)
		if err != nil {
			m.failures.Add(1)
			m.logger.Debug("first frame yielded no fix", "session", s.ID, "anchored", s.Info().Anchored, "reason", Reason(err))
		} else {
			m.fixes.Add(1)
			m.publish(fix)
		}
	}

	return s.Info(), nil
}

// prepare validates an open request and builds the session's estimator.
func (m *Manager) prepare(req OpenRequest, strategy Strategy) (Reference, Estimator, error) {
	if !(req.ObjectWidthCm > 0) || !finite(req.ObjectWidthCm) {
		return Reference{}, nil, configErrorf("object_width_cm", "must be positive, got %v", req.ObjectWidthCm)
	}
	if req.ObjectHeightCm < 0 || !finite(req.ObjectHeightCm) {
		return Reference{}, nil, configErrorf("object_height_cm", "must not be negative, got %v", req.ObjectHeightCm)
	}
	if !finite(req.AzimuthDeg) {
		return Reference{}, nil, configErrorf("azimuth_deg", "must be finite")
	}
	if err := req.Start.Validate(); err != nil {
		return Reference{}, nil, err
	}

	ref := Reference{
		Start:          req.Start,
		ObjectWidthMm:  req.ObjectWidthCm * 10,
		ObjectHeightMm: req.ObjectHeightCm * 10,
		AzimuthDeg:     req.AzimuthDeg,
	}

	cfg := m.camera.GetConfig()
	if req.FrameWidth > 0 && req.FrameHeight > 0 {
		cfg = cfg.WithResolution(req.FrameWidth, req.FrameHeight)
	}

	switch strategy {
	case StrategyPlanar:
		if req.Start.Kind != Cartesian {
			return Reference{}, nil, configErrorf("start", "planar sessions need a cartesian start, got %s", req.Start.Kind)
		}
		focal := m.config.PlanarFocal
		if focal == 0 {
			focal = cfg.FocalLengthMm
		}
		est, err := NewPlanar(focal)
		if err != nil {
			return Reference{}, nil, err
		}
		return ref, est, nil

	case StrategyPose:
		if req.Start.Kind != Geodetic {
			return Reference{}, nil, configErrorf("start", "pose sessions need a geodetic start, got %s", req.Start.Kind)
		}
		k, err := camera.BuildIntrinsics(cfg)
		if err != nil {
			return Reference{}, nil, configErrorf("camera", "%v", err)
		}
		est, err := NewPose(k, pnp.NewSolver(m.config.Solver...))
		if err != nil {
			return Reference{}, nil, err
		}
		return ref, est, nil
	}

	return Reference{}, nil, configErrorf("strategy", "unknown strategy %q", strategy)
}

// Update runs one frame through the detector and the session's estimator.
// ts is the capture time; zero means now.
func (m *Manager) Update(ctx context.Context, id string, frame []byte, ts time.Time) (Fix, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return Fix{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if ts.IsZero() {
		ts = m.now()
	}
	m.updates.Add(1)

	det, err := m.detect(ctx, frame)
	if err != nil {
		s.touch(ts)
		m.failures.Add(1)
		m.logger.Debug("frame skipped", "session", id, "reason", Reason(err), "error", err)
		return Fix{}, err
	}

	return m.apply(s, det, ts)
}

// Apply feeds a detection made elsewhere (for example on board the drone)
// to a session, skipping the detector.
func (m *Manager) Apply(id string, det detection.Detection, ts time.Time) (Fix, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return Fix{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if ts.IsZero() {
		ts = m.now()
	}
	if det == nil {
		det = detection.NotDetected{}
	}
	m.updates.Add(1)
	return m.apply(s, det, ts)
}

func (m *Manager) apply(s *Session, det detection.Detection, ts time.Time) (Fix, error) {
	fix, err := s.apply(det, ts)
	if err != nil {
		m.failures.Add(1)
		m.logger.Debug("frame skipped", "session", s.ID, "reason", Reason(err))
		return Fix{}, err
	}

	m.fixes.Add(1)
	if fix.Home {
		m.logger.Info("session anchored", "session", s.ID)
	}
	m.publish(fix)
	return fix, nil
}

// detect runs the detector under the configured timeout.
func (m *Manager) detect(ctx context.Context, frame []byte) (detection.Detection, error) {
	dctx, cancel := context.WithTimeout(ctx, m.config.DetectTimeout)
	defer cancel()

	det, err := detection.Run(dctx, m.detector, frame, m.config.Prompt)
	switch {
	case err == nil:
		return det, nil
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return nil, ctx.Err()
	case errors.Is(err, detection.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		m.timeouts.Add(1)
		return nil, fmt.Errorf("%w after %v", ErrDetectorTimeout, m.config.DetectTimeout)
	default:
		return nil, fmt.Errorf("%w: %w", ErrDetectorFailed, err)
	}
}

func (m *Manager) publish(fix Fix) {
	m.mu.RLock()
	fn := m.onFix
	m.mu.RUnlock()
	if fn != nil {
		fn(fix)
	}
}

// Close ends a session. Frames already being processed for it fail with
// ErrSessionClosed.
func (m *Manager) Close(id string) error {
	s, ok := m.store.Delete(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if s.close() {
		m.closed.Add(1)
		m.logger.Info("session closed", "session", id)
	}
	return nil
}

// Get returns a copy of a session's state.
func (m *Manager) Get(id string) (SessionInfo, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s.Info(), nil
}

// List returns every live session, oldest first.
func (m *Manager) List() []SessionInfo {
	sessions := m.store.List()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Stats returns activity counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Live:     m.store.Count(),
		Opened:   m.opened.Load(),
		Closed:   m.closed.Load(),
		Expired:  m.expired.Load(),
		Updates:  m.updates.Load(),
		Fixes:    m.fixes.Load(),
		Failures: m.failures.Load(),
		Timeouts: m.timeouts.Load(),
	}
}

// Sweep closes sessions that have not seen a frame for IdleTimeout and
// returns how many it closed.
func (m *Manager) Sweep(now time.Time) int {
	if m.config.IdleTimeout <= 0 {
		return 0
	}

	n := 0
	for _, s := range m.store.Idle(now.Add(-m.config.IdleTimeout)) {
		if _, ok := m.store.Delete(s.ID); !ok {
			continue
		}
		if s.close() {
			m.expired.Add(1)
			n++
			m.logger.Info("session expired", "session", s.ID, "idle", now.Sub(s.LastSeen()).Round(time.Second))
		}
	}
	return n
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.config.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	m.logger.Info("session sweeper started",
		"idle_timeout", m.config.IdleTimeout,
		"interval", m.config.SweepInterval,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}
