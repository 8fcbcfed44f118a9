package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat represents a one-to-one conversation between two users.
// User1ID and User2ID are stored in canonical order (user1 sorts before
// user2) so any unordered pair of participants maps to at most one row.
// PostID and ListingID optionally tie the chat to the marketplace post it
// started from; UpdatedAt is bumped on every appended message and drives
// inbox ordering.
type Chat struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	User1ID   string     `json:"user1_id" db:"user1_id"`
	User2ID   string     `json:"user2_id" db:"user2_id"`
	PostID    *uuid.UUID `json:"post_id,omitempty" db:"post_id"`
	ListingID *uuid.UUID `json:"listing_id,omitempty" db:"listing_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// CreateChatRequest is the structure for chat get-or-create requests
type CreateChatRequest struct {
	OtherUserID string     `json:"other_user_id" binding:"required"`
	PostID      *uuid.UUID `json:"post_id,omitempty"`
	ListingID   *uuid.UUID `json:"listing_id,omitempty"`
}
