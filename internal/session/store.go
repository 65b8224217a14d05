// Package session provides the in-memory registry that upload and pipeline
// sessions live in for their whole lifetime. All state changes go through
// Mutate; Remove's boolean return is the single arbitration point deciding
// which of several racing callers performs terminal side effects.
package session

import (
	"sync"

	"github.com/bridgeml/bridge/pkg/types"
)

// Store is a concurrency-safe map of session id to session state.
// The critical sections are short and never perform I/O.
type Store[T any] struct {
	mu       sync.Mutex
	sessions map[string]*T
}

// NewStore creates an empty session store
func NewStore[T any]() *Store[T] {
	return &Store[T]{
		sessions: make(map[string]*T),
	}
}

// Create registers a new session under id. It returns false if the id is
// already present; ids are caller-generated opaque tokens, so a collision is
// a caller error to retry with a fresh id.
func (s *Store[T]) Create(id string, state T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return false
	}
	s.sessions[id] = &state
	return true
}

// Get returns a snapshot of the session state
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.sessions[id]
	if !exists {
		var zero T
		return zero, false
	}
	return *state, true
}

// Mutate applies fn to the stored state atomically and returns the updated
// value. fn must not block or perform I/O.
func (s *Store[T]) Mutate(id string, fn func(*T)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.sessions[id]
	if !exists {
		var zero T
		return zero, types.ErrSessionNotFound
	}
	fn(state)
	return *state, nil
}

// Remove deletes the session and reports whether this call deleted it.
// Exactly one caller among any concurrent set observes true; only that
// caller may raise terminal side effects for the session.
func (s *Store[T]) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of live sessions
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
