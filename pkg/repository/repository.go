package repository

import (
	"context"
	"time"

	"github.com/marketmind/marketmind/pkg/model"
)

// ChatRepository defines the interface for chat session and message persistence
type ChatRepository interface {
	// CreateSession creates a new chat session. An empty title falls back to
	// the default chat title.
	CreateSession(ctx context.Context, title string) (*model.ChatSession, error)

	// GetSession retrieves a session by ID, nil if not found
	GetSession(ctx context.Context, id model.ChatID) (*model.ChatSession, error)

	// ListSessions retrieves all sessions, most recently updated first
	ListSessions(ctx context.Context) ([]*model.ChatSession, error)

	// DeleteSession removes a session and its messages. Returns false if the
	// session did not exist.
	DeleteSession(ctx context.Context, id model.ChatID) (bool, error)

	// UpdateSessionTitle replaces the session title, nil if not found
	UpdateSessionTitle(ctx context.Context, id model.ChatID, title string) (*model.ChatSession, error)

	// AddMessage appends a message to a session
	AddMessage(ctx context.Context, chatID model.ChatID, role, content string, meta *model.MessageMetadata) (*model.Message, error)

	// ListMessages retrieves a session's messages in chronological order
	ListMessages(ctx context.Context, chatID model.ChatID) ([]*model.Message, error)

	// Purge deletes sessions and messages older than the cutoff. A nil
	// cutoff deletes everything.
	Purge(ctx context.Context, olderThan *time.Duration) (chats, messages int64, err error)

	Close() error
}

// MemoryStore defines the interface for the long-term vector memory. Records
// are appended only and queried globally by free-text similarity.
type MemoryStore interface {
	// Upsert indexes one record. Fails with model.ErrStoreUnavailable.
	Upsert(ctx context.Context, rec model.MemoryRecord) error

	// Query returns the texts of up to k nearest records.
	// Fails with model.ErrStoreUnavailable.
	Query(ctx context.Context, text string, k int) ([]string, error)
}
