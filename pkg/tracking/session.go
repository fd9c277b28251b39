package tracking

import (
	"sync"
	"time"

	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// Session is one continuous track. Its reference is guarded by mu so that
// the set-once anchor capture is a single critical section.
type Session struct {
	ID        string
	Strategy  Strategy
	CreatedAt time.Time

	estimator Estimator

	mu       sync.Mutex
	ref      Reference
	lastSeen time.Time
	updates  int
	fixes    int
	closed   bool
}

func newSession(id string, ref Reference, est Estimator, now time.Time) *Session {
	return &Session{
		ID:        id,
		Strategy:  est.Strategy(),
		CreatedAt: now,
		estimator: est,
		ref:       ref,
		lastSeen:  now,
	}
}

// SessionInfo is a point-in-time copy of a session's state.
type SessionInfo struct {
	ID        string    `json:"session_id"`
	Strategy  Strategy  `json:"strategy"`
	Reference Reference `json:"reference"`
	Anchored  bool      `json:"anchored"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	Updates   int       `json:"updates"`
	Fixes     int       `json:"fixes"`
}

// Info returns a copy of the session's state.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := s.ref
	if ref.StartCenter != nil {
		c := *ref.StartCenter
		ref.StartCenter = &c
	}
	if ref.HomeTranslation != nil {
		t := *ref.HomeTranslation
		ref.HomeTranslation = &t
	}

	return SessionInfo{
		ID:        s.ID,
		Strategy:  s.Strategy,
		Reference: ref,
		Anchored:  ref.Anchored(),
		CreatedAt: s.CreatedAt,
		LastSeen:  s.lastSeen,
		Updates:   s.updates,
		Fixes:     s.fixes,
	}
}

// LastSeen returns when the session last received a frame.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// apply runs the estimator on a detection and captures the anchor it
// proposes, even when the frame yields no fix.
func (s *Session) apply(det detection.Detection, ts time.Time) (Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Fix{}, ErrSessionClosed
	}
	s.updates++
	s.lastSeen = ts

	found, ok := det.(detection.Detected)
	if !ok {
		return Fix{}, ErrNoDetection
	}

	est, err := s.estimator.Estimate(s.ref, found)
	home := est.Anchor.apply(&s.ref)
	if err != nil {
		return Fix{}, err
	}
	s.fixes++

	return Fix{
		SessionID: s.ID,
		Strategy:  s.Strategy,
		Timestamp: ts,
		Home:      home,
		Planar:    est.Planar,
		Geo:       est.Geo,
		Detection: found,
	}, nil
}

// touch records a frame that never reached the estimator.
func (s *Session) touch(ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	s.lastSeen = ts
}

func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
