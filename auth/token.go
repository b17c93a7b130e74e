// Package auth holds the backend API token for the running session.
package auth

import (
	"sync"

	"go.uber.org/zap"
)

// TokenStore is an in-memory holder for the backend bearer token. The
// extension UI sets it after login; the gateway reads it per request. When
// the backend rejects the token (401), Invalidate clears it and notifies
// listeners so the UI can prompt for re-authentication.
type TokenStore struct {
	mu        sync.Mutex
	token     string
	listeners map[int]func()
	nextID    int
	logger    *zap.SugaredLogger
}

// NewTokenStore creates an empty token store.
func NewTokenStore(logger *zap.SugaredLogger) *TokenStore {
	return &TokenStore{
		listeners: make(map[int]func()),
		logger:    logger,
	}
}

// SetToken stores the current bearer token.
func (s *TokenStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the current bearer token, or "" if unauthenticated.
func (s *TokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Invalidate clears the token and notifies listeners. A panicking listener
// does not prevent the others from being notified.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if hadToken {
		s.logger.Infow("Auth token invalidated")
	}

	for _, fn := range listeners {
		s.notify(fn)
	}
}

// OnInvalidate registers a listener called whenever the token is invalidated.
// Returns an unsubscribe function.
func (s *TokenStore) OnInvalidate(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *TokenStore) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Auth listener panicked", "panic", r)
		}
	}()
	fn()
}
