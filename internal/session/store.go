package session

import (
	"sync"
	"time"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/google/uuid"
)

type Store struct {
	sessions map[uuid.UUID]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		now:      time.Now,
	}
}

func (st *Store) Create(mark *model.WatermarkAsset) *Session {
	s := New(uuid.New(), mark, st.now())

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.id] = s
	return s
}

// Get returns the session and refreshes its idle timer.
func (st *Store) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	s.touch(st.now())
	return s, nil
}

// Delete removes and closes the session.
func (st *Store) Delete(id uuid.UUID) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	s.Close()
	return s, nil
}

// Expire closes and removes sessions idle for longer than ttl. Sessions with a running
// export are kept.
func (st *Store) Expire(ttl time.Duration) []*Session {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	var expired []*Session
	for id, s := range st.sessions {
		if s.idle(now, ttl) {
			delete(st.sessions, id)
			s.Close()
			expired = append(expired, s)
		}
	}
	return expired
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
