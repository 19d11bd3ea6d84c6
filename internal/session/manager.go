package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/a-kowalenko/classy-weather/internal/weather"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or closed session ids.
var ErrNotFound = errors.New("session not found")

// Session is one mounted widget and its orchestrator.
type Session struct {
	ID      string
	Created time.Time

	orch *weather.Orchestrator

	mu       sync.Mutex
	lastSeen time.Time
	done     chan struct{}
	once     sync.Once
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the last interaction.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetQuery forwards a search box change to the orchestrator.
func (s *Session) SetQuery(query string) {
	s.touch()
	s.orch.OnQueryChange(query)
}

// UseCurrentPosition starts the current-location flow.
func (s *Session) UseCurrentPosition(src weather.PositionSource) {
	s.touch()
	s.orch.UseCurrentPosition(src)
}

// State returns the current widget state.
func (s *Session) State() weather.State {
	return s.orch.State()
}

// Done is closed once the session is unmounted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Events streams state transitions into a buffered channel, starting after
// the returned state. Transitions are dropped when the reader falls behind.
// Call the returned func to stop.
func (s *Session) Events(buffer int) (weather.State, <-chan weather.State, func()) {
	ch := make(chan weather.State, buffer)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)
	initial, unsubscribe := s.orch.Watch(func(st weather.State) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- st:
		default:
			log.Printf("session %s event channel full, skipping generation %d", s.ID, st.Generation)
		}
	})

	return initial, ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		s.orch.Close()
		close(s.done)
	})
}

// Manager keeps the mounted sessions of the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  func() *weather.Orchestrator
}

// NewManager creates a Manager that builds one orchestrator per session.
func NewManager(factory func() *weather.Orchestrator) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Create mounts a new session and restores the persisted query into it.
// A failed restore leaves the session idle.
func (m *Manager) Create(ctx context.Context) *Session {
	now := time.Now()
	s := &Session{
		ID:       uuid.NewString(),
		Created:  now,
		orch:     m.factory(),
		lastSeen: now,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	_ = s.orch.Restore(ctx)
	log.Printf("session created: %s (total: %d)", s.ID, total)
	return s
}

// Get returns a mounted session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// Remove unmounts a session, cancelling its in-flight chain.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.close()
	log.Printf("session removed: %s (remaining: %d)", id, remaining)
	return nil
}

// Count returns the number of mounted sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RefreshAll re-runs the query of every session showing a forecast.
func (m *Manager) RefreshAll() int {
	n := 0
	for _, s := range m.snapshot() {
		if s.orch.Refresh() {
			n++
		}
	}
	return n
}

// ExpireIdle unmounts sessions not seen for longer than maxIdle.
func (m *Manager) ExpireIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	n := 0
	for _, s := range m.snapshot() {
		if s.LastSeen().Before(cutoff) {
			if m.Remove(s.ID) == nil {
				n++
			}
		}
	}
	return n
}

// CloseAll unmounts every session.
func (m *Manager) CloseAll() {
	for _, s := range m.snapshot() {
		_ = m.Remove(s.ID)
	}
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
