package upload

import "sync"

// lockTable hands out one mutex per session id. Entries are reference
// counted and dropped when the last holder unlocks, so the table never
// grows with the total number of sessions ever seen.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the session's mutex and returns its unlock function.
func (t *lockTable) lock(sessionID string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sessionLock)
	}
	l, ok := t.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		t.locks[sessionID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, sessionID)
		}
		t.mu.Unlock()
	}
}
