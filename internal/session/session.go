// Package session keeps the bounded conversation history of each session.
package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultCap is the number of messages a session retains.
const DefaultCap = 50

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry.
type Message struct {
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type session struct {
	mu       sync.Mutex
	messages []Message
}

// Store holds sessions in memory. Sessions are created on first reference and
// live for the lifetime of the store.
type Store struct {
	cap int

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewStore returns a store retaining capacity messages per session. A
// non-positive capacity means DefaultCap.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Store{cap: capacity, sessions: make(map[string]*session)}
}

// Cap returns the per-session capacity.
func (s *Store) Cap() int { return s.cap }

func (s *Store) get(id string, create bool) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok || !create {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess
}

// Append adds msgs to the session as one unit, evicting the oldest messages
// beyond capacity. Zero timestamps are set to now.
func (s *Store) Append(id string, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	sess := s.get(id, true)
	now := time.Now().UTC()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		sess.messages = append(sess.messages, m)
	}
	if over := len(sess.messages) - s.cap; over > 0 {
		kept := make([]Message, s.cap)
		copy(kept, sess.messages[over:])
		sess.messages = kept
	}
}

// History returns a copy of the session's messages, oldest first.
func (s *Store) History(id string) []Message {
	return s.Recent(id, 0)
}

// Recent returns up to n of the newest messages, oldest first. n <= 0 means all.
func (s *Store) Recent(id string, n int) []Message {
	sess := s.get(id, false)
	if sess == nil {
		return []Message{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	msgs := sess.messages
	if n > 0 && n < len(msgs) {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len returns the number of messages held for the session.
func (s *Store) Len(id string) int {
	sess := s.get(id, false)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.messages)
}

// Sessions lists known session ids in sorted order.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
