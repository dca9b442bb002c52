// Package session provides the in-memory SessionStore implementation used
// by the coordinator and supplier services.
package session

import (
	"sync"
	"time"

	"github.com/cyberx-ai/supplymesh/core"
)

// DefaultTTL is how long an untouched session survives before the sweeper
// evicts it.
const DefaultTTL = time.Hour

// InMemoryStore is a volatile SessionStore storing sessions in a process
// local map. It is safe for concurrent access. Each returned session is
// cloned to prevent external mutation of internal state. Sessions idle past
// their TTL are evicted by a background sweeper; Close stops the sweeper.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// Options configure an InMemoryStore.
type Options struct {
	// TTL is the idle lifetime of a session; 0 means DefaultTTL.
	TTL time.Duration
	// SweepInterval overrides how often expired sessions are collected.
	SweepInterval time.Duration
}

// NewInMemoryStore constructs an empty in-memory session store and starts
// its eviction sweeper.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{TTL: DefaultTTL}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.TTL / 4
	}
	s := &InMemoryStore{
		sessions: make(map[string]*core.Session),
		ttl:      opts.TTL,
		stop:     make(chan struct{}),
	}
	go s.sweep(opts.SweepInterval)
	return s
}

// Get returns an existing session (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Touch()
		return sess.Clone(), nil
	}
	return s.createSessionLocked(sessionID).Clone(), nil
}

// Create forces the creation (or overwriting) of a session with the given id.
func (s *InMemoryStore) Create(sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSessionLocked(sessionID).Clone(), nil
}

// AppendEvent adds an event to an existing or newly created session.
func (s *InMemoryStore) AppendEvent(sessionID string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = s.createSessionLocked(sessionID)
	}
	sess.AddEvent(ev)
	return nil
}

// ApplyDelta merges a key/value delta into the session state on behalf of
// the writing author. The producer guard is enforced by the session itself.
func (s *InMemoryStore) ApplyDelta(sessionID, author string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = s.createSessionLocked(sessionID)
	}
	return sess.ApplyStateDelta(author, delta)
}

// Len reports the number of live sessions. Intended for tests and health
// reporting.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the eviction sweeper. Sessions remain readable until process
// shutdown.
func (s *InMemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *InMemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, sess := range s.sessions {
				if now.Sub(sess.LastUpdated()) > s.ttl {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// createSessionLocked allocates and stores a new session; caller must
// already hold the write lock.
func (s *InMemoryStore) createSessionLocked(sessionID string) *core.Session {
	sess := core.NewSession(sessionID)
	s.sessions[sessionID] = sess
	return sess
}
