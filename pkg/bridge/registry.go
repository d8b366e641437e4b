package bridge

import "sync"

// Registry tracks active sessions by call SID. Sessions register at creation
// and deregister at teardown; the count feeds diagnostics only, never
// routing decisions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under its call SID, replacing any stale entry.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.CallSID()] = s
}

// Remove deregisters the session for callSID if it is still the one
// registered. A newer session for the same call is left alone.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.CallSID()]; ok && current == s {
		delete(r.sessions, s.CallSID())
	}
}

// Get returns the active session for callSID, or nil.
func (r *Registry) Get(callSID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[callSID]
}

// ActiveCount returns the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of every live session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll tears down every registered session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.RUnlock()

	for _, s := range open {
		s.Close()
	}
}
