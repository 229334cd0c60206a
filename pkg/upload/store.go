package upload

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when a session id resolves to nothing.
var ErrSessionNotFound = errors.New("upload: session not found")

// SessionStore persists upload sessions so interrupted uploads survive
// process restarts (with a persistent implementation).
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error

	// ListExpired returns sessions whose ExpiresAt lies before the given
	// moment and that have not reached a terminal state.
	ListExpired(ctx context.Context, before time.Time) ([]*Session, error)

	Close() error
}

// MemorySessionStore keeps sessions in a map. Development and tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone := cloneSession(session)
	s.sessions[session.ID] = clone
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemorySessionStore) Update(ctx context.Context, session *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) ListExpired(ctx context.Context, before time.Time) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*Session
	for _, sess := range s.sessions {
		if !sess.Status.Terminal() && sess.ExpiresAt.Before(before) {
			expired = append(expired, cloneSession(sess))
		}
	}
	return expired, nil
}

func (s *MemorySessionStore) Close() error {
	return nil
}

// cloneSession deep-copies the slices so store internals never alias
// caller-held sessions.
func cloneSession(in *Session) *Session {
	out := *in
	out.Received = append([]bool(nil), in.Received...)
	out.Parts = append(out.Parts[:0:0], in.Parts...)
	out.ConfirmedParts = append(out.ConfirmedParts[:0:0], in.ConfirmedParts...)
	return &out
}
