package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/szaher/nova/internal/ids"
	"github.com/szaher/nova/internal/iteration"
)

// MemoryStore is an in-memory session store with expiry support.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	expiry   time.Duration
	now      func() time.Time

	iterations map[string][]*iteration.Iteration // by session, in creation order
	owners     map[string]string                 // iteration id -> session id
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store.
// expiry defines session idle timeout; 0 means no expiry.
func NewMemoryStore(expiry time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*Session),
		expiry:     expiry,
		now:        time.Now,
		iterations: make(map[string][]*iteration.Iteration),
		owners:     make(map[string]string),
	}
}

// CreateSession creates a new session.
func (s *MemoryStore) CreateSession(_ context.Context, userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	sess := &Session{
		ID:         ids.New(ids.Session),
		UserID:     userID,
		Name:       DefaultName,
		CreatedAt:  now,
		LastActive: now,
		Messages:   []Message{},
	}
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	return sess.clone(), nil
}

// GetSession retrieves a session by ID.
func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return nil, false, nil
	}
	return sess.clone(), true, nil
}

// ListSessions returns sessions in creation order, optionally filtered by user.
func (s *MemoryStore) ListSessions(_ context.Context, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*Session{}
	for _, id := range s.order {
		sess := s.sessions[id]
		if userID != "" && sess.UserID != userID {
			continue
		}
		if s.expired(sess) {
			continue
		}
		result = append(result, sess.clone())
	}
	return result, nil
}

// DeleteSession removes a session and everything recorded under it.
func (s *MemoryStore) DeleteSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(id) == nil {
		return false, nil
	}
	s.remove(id)
	return true, nil
}

// RenameSession sets a session's display name.
func (s *MemoryStore) RenameSession(_ context.Context, id, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return false, nil
	}
	sess.Name = name
	return true, nil
}

// Touch updates the last activity timestamp.
func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return fmt.Errorf("touch %q: %w", id, ErrSessionNotFound)
	}
	sess.LastActive = s.now().UTC()
	return nil
}

// AddMessage appends a message to the session log. Timestamps within a
// session are strictly increasing.
func (s *MemoryStore) AddMessage(_ context.Context, sessionID string, role Role, content string, metadata map[string]any) (*Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(sessionID)
	if sess == nil {
		return nil, false, nil
	}
	ts := s.now().UTC()
	if n := len(sess.Messages); n > 0 {
		if last := sess.Messages[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
	}
	msg := Message{
		ID:        ids.New(ids.Message),
		Role:      role,
		Content:   content,
		Timestamp: ts,
		Metadata:  metadata,
	}
	msg = msg.clone()
	sess.Messages = append(sess.Messages, msg)
	sess.LastActive = ts
	out := msg.clone()
	return &out, true, nil
}

// GetMessages returns the selected messages in chronological order.
func (s *MemoryStore) GetMessages(_ context.Context, sessionID string, q MessageQuery) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(sessionID)
	if sess == nil {
		return []Message{}, nil
	}
	return selectMessages(sess.Messages, q), nil
}

// RecordIteration stores a copy of it under sessionID.
func (s *MemoryStore) RecordIteration(_ context.Context, sessionID string, it *iteration.Iteration) error {
	if it == nil {
		return fmt.Errorf("record iteration: nil iteration")
	}
	if it.SessionID != sessionID {
		return fmt.Errorf("record iteration %q in session %q: %w", it.ID, sessionID, ErrCrossSession)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(sessionID) == nil {
		return fmt.Errorf("record iteration %q: %w", it.ID, ErrSessionNotFound)
	}
	if owner, ok := s.owners[it.ID]; ok && owner != sessionID {
		return fmt.Errorf("record iteration %q in session %q: %w", it.ID, sessionID, ErrCrossSession)
	}

	list := s.iterations[sessionID]
	for i, existing := range list {
		if existing.ID != it.ID {
			continue
		}
		if it.Number != existing.Number {
			return fmt.Errorf("record iteration %q: number %d, stored %d: %w", it.ID, it.Number, existing.Number, ErrIterationSequence)
		}
		if err := it.Validate(); err != nil {
			return fmt.Errorf("record iteration %q: %w", it.ID, err)
		}
		if err := extends(existing, it); err != nil {
			return fmt.Errorf("record iteration %q: %w", it.ID, err)
		}
		list[i] = it.Clone()
		return nil
	}

	next := len(list) + 1
	if it.Number != 0 && it.Number != next {
		return fmt.Errorf("record iteration %q: number %d, want %d: %w", it.ID, it.Number, next, ErrIterationSequence)
	}
	if err := it.Validate(); err != nil {
		return fmt.Errorf("record iteration %q: %w", it.ID, err)
	}
	it.Number = next
	s.iterations[sessionID] = append(list, it.Clone())
	s.owners[it.ID] = sessionID
	return nil
}

// GetIteration returns the iteration if it belongs to sessionID.
func (s *MemoryStore) GetIteration(_ context.Context, sessionID, iterationID string) (*iteration.Iteration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.owners[iterationID] != sessionID || !s.visible(sessionID) {
		return nil, false, nil
	}
	return s.find(sessionID, iterationID)
}

// FindIteration looks an iteration up by id alone.
func (s *MemoryStore) FindIteration(_ context.Context, iterationID string) (*iteration.Iteration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[iterationID]
	if !ok || !s.visible(owner) {
		return nil, false, nil
	}
	return s.find(owner, iterationID)
}

// ListIterations returns a session's iterations in creation order.
func (s *MemoryStore) ListIterations(_ context.Context, sessionID string) ([]*iteration.Iteration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.visible(sessionID) {
		return []*iteration.Iteration{}, nil
	}
	list := s.iterations[sessionID]
	out := make([]*iteration.Iteration, 0, len(list))
	for _, it := range list {
		out = append(out, it.Clone())
	}
	return out, nil
}

func (s *MemoryStore) find(sessionID, iterationID string) (*iteration.Iteration, bool, error) {
	for _, it := range s.iterations[sessionID] {
		if it.ID == iterationID {
			return it.Clone(), true, nil
		}
	}
	return nil, false, nil
}

// live returns the session or nil, evicting it when idle past expiry.
// Callers must hold the write lock.
func (s *MemoryStore) live(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.expired(sess) {
		s.remove(id)
		return nil
	}
	return sess
}

// visible reports whether id names an unexpired session. It does not evict,
// so it is safe under the read lock.
func (s *MemoryStore) visible(id string) bool {
	sess, ok := s.sessions[id]
	return ok && !s.expired(sess)
}

// extends checks that next keeps every stage stored in prev unchanged and
// adds at least one more.
func extends(prev, next *iteration.Iteration) error {
	if len(next.Stages) <= len(prev.Stages) {
		return fmt.Errorf("%d stages stored, update has %d: %w", len(prev.Stages), len(next.Stages), ErrStageRewrite)
	}
	for stage, rec := range prev.Stages {
		got, ok := next.Stages[stage]
		if !ok || !got.CompletedAt.Equal(rec.CompletedAt) {
			return fmt.Errorf("stage %s: %w", stage, ErrStageRewrite)
		}
	}
	return nil
}

func (s *MemoryStore) expired(sess *Session) bool {
	return s.expiry > 0 && s.now().Sub(sess.LastActive) > s.expiry
}

func (s *MemoryStore) remove(id string) {
	delete(s.sessions, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for _, it := range s.iterations[id] {
		delete(s.owners, it.ID)
	}
	delete(s.iterations, id)
}
