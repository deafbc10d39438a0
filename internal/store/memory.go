package store

import (
	"context"
	"sync"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]chat.Session)}
}

func (s *memoryStore) Save(ctx context.Context, sess *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return ErrInvalidConfig
	}
	// store by value so later mutations of the caller's session do not
	// leak into the snapshot
	snap := *sess
	snap.Turns = append([]chat.Turn(nil), sess.Turns...)
	if sess.Pending != nil {
		p := *sess.Pending
		snap.Pending = &p
	}
	s.sessions[sess.ID] = snap
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := snap
	out.Turns = append([]chat.Turn(nil), snap.Turns...)
	if snap.Pending != nil {
		p := *snap.Pending
		out.Pending = &p
	}
	return &out, nil
}

func (s *memoryStore) List(ctx context.Context) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Session, 0, len(s.sessions))
	for _, snap := range s.sessions {
		cp := snap
		cp.Turns = append([]chat.Turn(nil), snap.Turns...)
		if snap.Pending != nil {
			p := *snap.Pending
			cp.Pending = &p
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	return nil
}
