package service

import (
	"sync"

	"ai-chatroom/internal/domain"
)

// SessionRegistry vincula cada conexión con su par (sala, usuario).
type SessionRegistry struct {
	mu       sync.Mutex
	bindings map[string]domain.Binding
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{bindings: make(map[string]domain.Binding)}
}

// Bind asocia la conexión; un bind previo se sobrescribe y se devuelve.
func (s *SessionRegistry) Bind(connID string, b domain.Binding) (domain.Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.bindings[connID]
	s.bindings[connID] = b
	return prev, ok
}

// Unbind elimina la asociación y devuelve la anterior, si había.
func (s *SessionRegistry) Unbind(connID string) (domain.Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.bindings[connID]
	delete(s.bindings, connID)
	return prev, ok
}

func (s *SessionRegistry) Lookup(connID string) (domain.Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[connID]
	return b, ok
}

// Bound indica si alguna conexión sigue vinculada al mismo par.
func (s *SessionRegistry) Bound(b domain.Binding) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundLocked(b)
}

func (s *SessionRegistry) boundLocked(b domain.Binding) bool {
	for _, other := range s.bindings {
		if other == b {
			return true
		}
	}
	return false
}

// ReleaseIfUnbound llama a leave si ninguna conexión mantiene el par. La
// comprobación y leave corren bajo el mismo lock, así un Bind concurrente
// del mismo par queda antes (y se conserva) o después (y vuelve a unirse).
func (s *SessionRegistry) ReleaseIfUnbound(b domain.Binding, leave func(room, user string)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundLocked(b) {
		return false
	}
	leave(b.Room, b.User)
	return true
}

func (s *SessionRegistry) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bindings)
}
