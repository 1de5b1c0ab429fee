// Package auth implements the authentication session store of spec.md
// §4.11: a sessionId ↔ (machineUid, identity, room, activity) mapping with
// TTL eviction, backing the XMPP-domain authentication strategy that
// ConferenceIqHandler consults.
package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one AuthenticationSession (spec.md §3).
type Session struct {
	SessionID        string
	MachineUID       string
	Identity         string
	Room             string
	ActivityTimestamp time.Time
}

// touch advances the session's activity timestamp, returning an updated copy.
func (s Session) touch(now time.Time) Session {
	s.ActivityTimestamp = now
	return s
}

// Store is the process-wide authentication session registry. Per spec.md
// §5, lookups are lock-free against a concurrent map while mutations take a
// single lock; here a RWMutex over a plain map serves the same role, as it
// already does for bridge.Brewery and jibri.Brewery.
type Store struct {
	lifetime time.Duration

	mu       sync.RWMutex
	sessions map[string]Session

	stop chan struct{}
}

// NewStore constructs a Store that expires sessions idle for longer than
// lifetime.
func NewStore(lifetime time.Duration) *Store {
	return &Store{lifetime: lifetime, sessions: make(map[string]Session)}
}

// CreateSession allocates a new session bound to machineUid/identity/room.
func (s *Store) CreateSession(machineUID, identity, room string, now time.Time) Session {
	sess := Session{SessionID: uuid.NewString(), MachineUID: machineUID, Identity: identity, Room: room, ActivityTimestamp: now}
	s.mu.Lock()
	s.sessions[sess.SessionID] = sess
	s.mu.Unlock()
	return sess
}

// GetSession returns the session for id, touching its activity timestamp,
// or ok=false if it is unknown or has expired (invariant 7).
func (s *Store) GetSession(id string, now time.Time) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	if now.Sub(sess.ActivityTimestamp) > s.lifetime {
		delete(s.sessions, id)
		return Session{}, false
	}
	sess = sess.touch(now)
	s.sessions[id] = sess
	return sess, true
}

// FindByJid returns the session (if any) whose identity matches jidStr,
// without touching its activity timestamp.
func (s *Store) FindByJid(jidStr string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Identity == jidStr {
			return sess, true
		}
	}
	return Session{}, false
}

// Destroy removes a session unconditionally.
func (s *Store) Destroy(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// ConferenceEnded removes every session bound to room. conference.Registry
// calls it from its own ConferenceEnded for every ended room; no auto-login
// setting exists to keep a room's sessions.
func (s *Store) ConferenceEnded(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.Room == room {
			delete(s.sessions, id)
		}
	}
}

// StartEvictionSweep runs a background goroutine that evicts expired
// sessions every poll interval, per spec.md §4.11. Stop with StopEviction.
func (s *Store) StartEvictionSweep(poll time.Duration) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				s.evictExpired(now)
			case <-stop:
				return
			}
		}
	}()
}

// StopEviction stops the background sweep started by StartEvictionSweep.
func (s *Store) StopEviction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Store) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if now.Sub(sess.ActivityTimestamp) > s.lifetime {
			delete(s.sessions, id)
		}
	}
}
