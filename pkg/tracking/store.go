package tracking

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds the live sessions. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create allocates a fresh id, builds the session with it and stores it.
	// The id is unique among live sessions.
	Create(build func(id string) *Session) *Session

	// Get retrieves a session by id
	Get(id string) (*Session, bool)

	// Delete removes a session by id and returns it
	Delete(id string) (*Session, bool)

	// List returns all sessions, oldest first
	List() []*Session

	// Idle returns sessions whose last frame is older than cutoff
	Idle(cutoff time.Time) []*Session

	// Count returns the number of live sessions
	Count() int
}

// MemoryStore keeps sessions in a map for the life of the process.
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	newID    func() string
}

// NewMemoryStore creates an empty store issuing random uuid v4 ids.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		newID:    NewSessionID,
	}
}

// NewSessionID returns a random 32-character hex token.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create implements Store. Ids are drawn under the write lock and redrawn
// on collision.
func (m *MemoryStore) Create(build func(id string) *Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	for {
		if _, taken := m.sessions[id]; !taken {
			break
		}
		id = m.newID()
	}

	s := build(id)
	m.sessions[id] = s
	return s
}

// Get implements Store.
func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete implements Store.
func (m *MemoryStore) Delete(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return s, ok
}

// List implements Store.
func (m *MemoryStore) List() []*Session {
	m.mu.RLock()
	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Idle implements Store.
func (m *MemoryStore) Idle(cutoff time.Time) []*Session {
	var idle []*Session
	for _, s := range m.List() {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	return idle
}

// Count implements Store.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
