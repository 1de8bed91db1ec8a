package session

import (
	"context"
	"sync"
	"time"

	"github.com/matthewbaird/accountdesk/internal/wizard"
)

type memoryEntry struct {
	session      wizard.Session
	lastActiveAt time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]memoryEntry
	idleTimeout time.Duration
	now         func() time.Time
}

// NewMemoryStore creates a store that forgets sessions idle for longer
// than idleTimeout.
func NewMemoryStore(idleTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]memoryEntry),
		idleTimeout: idleOrDefault(idleTimeout),
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryStore) isIdle(e memoryEntry) bool {
	return m.now().Sub(e.lastActiveAt) > m.idleTimeout
}

func (m *MemoryStore) Get(_ context.Context, id string) (wizard.Session, bool, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return wizard.Session{}, false, nil
	}
	if m.isIdle(e) {
		m.mu.Lock()
		if cur, ok := m.sessions[id]; ok && m.isIdle(cur) {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		return wizard.Session{}, false, nil
	}
	return e.session.Clone(), true, nil
}

func (m *MemoryStore) Put(_ context.Context, id string, s wizard.Session) error {
	m.mu.Lock()
	m.sessions[id] = memoryEntry{session: s.Clone(), lastActiveAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Cleanup(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if m.isIdle(e) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many sessions are held, idle or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
