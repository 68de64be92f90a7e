package live

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
)

// Manager owns the live sessions of a process, one per recording.
type Manager struct {
	defaults Options
	metrics  *observability.LiveMetrics

	mu       sync.RWMutex
	sessions map[string]*Session
	onCreate []func(*Session)
	onClose  []func(*Session)
}

// NewManager creates a manager. defaults supplies every option except ID and
// Title for sessions it creates.
func NewManager(defaults Options) *Manager {
	return &Manager{
		defaults: defaults,
		metrics:  defaults.Metrics,
		sessions: make(map[string]*Session),
	}
}

// OnCreate registers a hook run for every new session before Create returns.
// Hooks typically attach listeners such as the mirror or the event publisher.
func (m *Manager) OnCreate(fn func(*Session)) {
	m.mu.Lock()
	m.onCreate = append(m.onCreate, fn)
	m.mu.Unlock()
}

// OnClose registers a hook run after a session is closed through the manager,
// once its listeners have received their last event.
func (m *Manager) OnClose(fn func(*Session)) {
	m.mu.Lock()
	m.onClose = append(m.onClose, fn)
	m.mu.Unlock()
}

func (m *Manager) closed(s *Session) {
	m.mu.RLock()
	hooks := slices.Clone(m.onClose)
	m.mu.RUnlock()

	s.Close()
	m.metrics.AddActiveSessions(-1)
	for _, fn := range hooks {
		fn(s)
	}
}

// Create starts a new session.
func (m *Manager) Create(title string) (*Session, error) {
	return m.CreateWithID("", title)
}

// CreateWithID starts a session with a caller-chosen ID.
func (m *Manager) CreateWithID(id, title string) (*Session, error) {
	opts := m.defaults
	opts.ID = id
	opts.Title = title

	m.mu.Lock()
	if id != "" {
		if _, exists := m.sessions[id]; exists {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: session %s already exists", plerrors.ErrConflict, id)
		}
	}
	s := NewSession(opts)
	m.sessions[s.ID()] = s
	hooks := slices.Clone(m.onCreate)
	m.mu.Unlock()

	m.metrics.AddActiveSessions(1)
	for _, fn := range hooks {
		fn(s)
	}
	return s, nil
}

// Get returns a running session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", plerrors.ErrNotFound, id)
	}
	return s, nil
}

// List returns the running sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close stops and forgets one session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: session %s", plerrors.ErrNotFound, id)
	}
	m.closed(s)
	return nil
}

// CloseAll stops every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.closed(s)
	}
}
