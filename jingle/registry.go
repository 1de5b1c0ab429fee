package jingle

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the weak-valued session map of spec.md §3/§4.3: sessions are
// owned by their participant/conference, and the registry only ever hands
// out a reference to one still in use. Go has no language-level weak
// references, so ownership is modeled explicitly: Unregister must be
// called when a session's owner goes away (participant leave, conference
// destroy), per spec.md §9's "do not rely on garbage collection" note.
type Registry struct {
	log zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{log: log, sessions: make(map[string]*Session)}
}

// Register adds session under its sid. If an sid collision occurs, the
// prior session is evicted with a warning, per spec.md §4.3.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.sessions[s.SID]; ok && prior != s {
		r.log.Warn().Str("sid", s.SID).Msg("evicting prior jingle session with colliding sid")
	}
	r.sessions[s.SID] = s
}

// Get returns the session registered under sid, if any.
func (r *Registry) Get(sid string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// Unregister removes sid from the registry.
func (r *Registry) Unregister(sid string) {
	r.mu.Lock()
	delete(r.sessions, sid)
	r.mu.Unlock()
}
