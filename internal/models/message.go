package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one unit of conversation content within a chat.
// Sender and receiver are always the two participants of the chat, in
// either order. Content is immutable after creation; the only mutation a
// message ever sees is the read flag flipping false to true.
type Message struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ChatID     uuid.UUID `json:"chat_id" db:"chat_id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	ReceiverID string    `json:"receiver_id" db:"receiver_id"`
	Content    string    `json:"content" db:"content"`
	Read       bool      `json:"read" db:"read"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// SendMessageRequest is the structure for message creation requests
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}
