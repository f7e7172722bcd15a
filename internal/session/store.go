package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds every active conversation in memory, keyed by an opaque
// session token. Sessions live for the lifetime of the process; there
// is no persistence and no expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewStore creates an empty session store
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// GetOrCreate resolves a session token. An empty or unrecognized token
// gets a freshly generated one with an empty history. The returned
// history is a snapshot; mutating it does not touch the store.
func (s *Store) GetOrCreate(id string) (string, []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			return id, copyMessages(sess.Messages)
		}
	}

	id = uuid.NewString()
	s.sessions[id] = &Session{
		ID:        id,
		StartTime: time.Now(),
	}
	s.logger.Info("created new session", "session_id", id)
	return id, nil
}

// Append adds a message to the end of the session's history. The
// caller is expected to have resolved the id via GetOrCreate first.
func (s *Store) Append(id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	sess.Messages = append(sess.Messages, msg)
	return nil
}

// Reset clears the session's history in place, keeping its token.
// Resetting an unknown session is a harmless no-op.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	sess.Messages = nil
	s.logger.Info("session reset", "session_id", id)
}

// Recent returns the last n messages of the session in chronological
// order, or fewer if the history is shorter.
func (s *Store) Recent(id string, n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	msgs := sess.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return copyMessages(msgs)
}

func copyMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
