// Package session defines the session and iteration store for the Nova engine.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/szaher/nova/internal/iteration"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a session's message log.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is a long-lived container for messages and iterations.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Messages   []Message `json:"messages"`
}

// MessageQuery selects messages from a session log.
type MessageQuery struct {
	// Limit keeps only the most recent Limit messages; 0 means no limit.
	Limit int
	// BeforeID keeps only messages added before the message with this id.
	BeforeID string
}

// Errors returned by Store mutations. Lookups never fail on a miss; they
// report absence through their boolean result.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrCrossSession      = errors.New("iteration belongs to a different session")
	ErrIterationSequence = errors.New("iteration number out of sequence")
	ErrStageRewrite      = errors.New("stage records are write-once")
)

// Store owns sessions and hands out iteration records.
//
// Implementations must serialize mutations per session and must return
// copies, so callers never observe a record while it is being written.
type Store interface {
	// CreateSession creates a session, optionally owned by userID.
	CreateSession(ctx context.Context, userID string) (*Session, error)

	// GetSession returns the session with its message log.
	GetSession(ctx context.Context, id string) (*Session, bool, error)

	// ListSessions returns sessions in creation order, filtered by userID
	// when it is non-empty.
	ListSessions(ctx context.Context, userID string) ([]*Session, error)

	// DeleteSession removes a session and its iterations. It reports
	// whether a session was removed.
	DeleteSession(ctx context.Context, id string) (bool, error)

	// RenameSession sets the display name. It reports whether the session exists.
	RenameSession(ctx context.Context, id, name string) (bool, error)

	// Touch updates the last-activity timestamp.
	Touch(ctx context.Context, id string) error

	// AddMessage appends a message. The boolean is false when the session
	// does not exist.
	AddMessage(ctx context.Context, sessionID string, role Role, content string, metadata map[string]any) (*Message, bool, error)

	// GetMessages returns messages in chronological order.
	GetMessages(ctx context.Context, sessionID string, q MessageQuery) ([]Message, error)

	// RecordIteration inserts or replaces an iteration record. A new record
	// with Number 0 is assigned the next sequence number, which is written
	// back into it.
	RecordIteration(ctx context.Context, sessionID string, it *iteration.Iteration) error

	// GetIteration returns the iteration only if it belongs to sessionID.
	GetIteration(ctx context.Context, sessionID, iterationID string) (*iteration.Iteration, bool, error)

	// FindIteration looks an iteration up by id regardless of session.
	FindIteration(ctx context.Context, iterationID string) (*iteration.Iteration, bool, error)

	// ListIterations returns a session's iterations in creation order.
	ListIterations(ctx context.Context, sessionID string) ([]*iteration.Iteration, error)
}
