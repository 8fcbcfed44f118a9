package models

import (
	"time"

	"github.com/google/uuid"
)

// LastMessage is the inbox preview of a chat's most recent message.
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	SenderID  string    `json:"sender_id"`
}

// Conversation is the derived inbox row for one chat: the other
// participant's profile, a preview of the latest message, the viewer's
// unread count and, when the chat started from a marketplace post, a
// human-readable location for that post. It is recomputed on demand and
// never persisted.
type Conversation struct {
	ChatID       uuid.UUID    `json:"chat_id"`
	OtherUser    Profile      `json:"other_user"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
	PostID       *uuid.UUID   `json:"post_id,omitempty"`
	ListingID    *uuid.UUID   `json:"listing_id,omitempty"`
	PostLocation *string      `json:"post_location,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
