package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultChatTitle is used for new sessions and as the terminal fallback
// when title generation produces nothing usable.
const DefaultChatTitle = "Market Mind Chat"

type ChatID string

// NewChatID generates a new unique ChatID
func NewChatID() ChatID {
	return ChatID(uuid.New().String())
}

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// ChatSession is one conversation thread.
type ChatSession struct {
	ID        ChatID    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single user or assistant turn within a session.
type Message struct {
	ID        MessageID        `json:"id"`
	ChatID    ChatID           `json:"chat_id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata records where an assistant answer came from.
type MessageMetadata struct {
	SearchResults []string `json:"search_results,omitempty"`
	VectorContext string   `json:"vector_context,omitempty"`
}
