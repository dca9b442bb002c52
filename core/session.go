package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrKeyOwned is returned when a step attempts to overwrite a state key that
// a different step produced. Keys are bound to their first writer; only that
// producer may overwrite them later.
var ErrKeyOwned = errors.New("state key owned by another producer")

// Session is the shared context for one conversation: mutable key/value
// state plus an ordered, append-only event history. It is safe for
// concurrent access.
//
// Contract:
//   - The first writer of a state key becomes its producer; writes by any
//     other author fail with ErrKeyOwned. Keys are never deleted.
//   - GetEvents returns a defensive copy to avoid external mutation.
//   - GetConversationHistory filters events to user/assistant roles and
//     excludes partial streaming fragments.
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID        string            `json:"id"`
	State     map[string]any    `json:"state"`
	Events    []Event           `json:"events"`
	Created   time.Time         `json:"created"`
	Updated   time.Time         `json:"updated"`
	Metadata  map[string]string `json:"metadata"`
	producers map[string]string
	mu        sync.RWMutex
}

// NewSession creates a new session with the given ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		State:     map[string]any{},
		Events:    []Event{},
		Created:   now,
		Updated:   now,
		Metadata:  map[string]string{},
		producers: map[string]string{},
	}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// GetStateString returns the state value rendered as a string, or "" when
// absent. Values produced by steps are either strings or JSON-shaped maps.
func (s *Session) GetStateString(key string) string {
	v, ok := s.GetState(key)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// SetState writes a key/value pair on behalf of the named author, binding
// the key to that author on first write and rejecting overwrites by anyone
// else.
func (s *Session) SetState(author, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStateLocked(author, key, value)
}

func (s *Session) setStateLocked(author, key string, value any) error {
	if owner, bound := s.producers[key]; bound && owner != author {
		return fmt.Errorf("%w: key %q produced by %q, write attempted by %q", ErrKeyOwned, key, owner, author)
	}
	s.producers[key] = author
	s.State[key] = value
	s.Updated = time.Now()
	return nil
}

// ApplyStateDelta merges the provided key/value pairs into State on behalf
// of one author, enforcing the producer guard per key. On the first
// violation no further keys are applied.
func (s *Session) ApplyStateDelta(author string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		if err := s.setStateLocked(author, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Touch refreshes the Updated timestamp, deferring TTL eviction.
func (s *Session) Touch() {
	s.mu.Lock()
	s.Updated = time.Now()
	s.mu.Unlock()
}

// LastUpdated returns the Updated timestamp under the session lock.
func (s *Session) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Updated
}

// Producer reports which author owns a state key, if any.
func (s *Session) Producer(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.producers[key]
	return owner, ok
}

// AddEvent appends an event to the history updating the Updated timestamp.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational
// roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:        s.ID,
		State:     make(map[string]any, len(s.State)),
		Events:    make([]Event, len(s.Events)),
		Created:   s.Created,
		Updated:   s.Updated,
		Metadata:  make(map[string]string, len(s.Metadata)),
		producers: make(map[string]string, len(s.producers)),
	}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	for k, v := range s.producers {
		clone.producers[k] = v
	}
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Implementations own session lifecycle: creation on first use, TTL
// eviction, and shutdown.
type SessionStore interface {
	Create(id string) (*Session, error)
	Get(id string) (*Session, error)
	AppendEvent(sessionID string, event Event) error
	ApplyDelta(sessionID, author string, delta map[string]any) error
}

// ArtifactStore persists opaque artifact bytes keyed by session and id.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, artifactID string) error
}
