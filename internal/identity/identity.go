package identity

import (
	"strings"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

// OtherParticipant returns the participant of chat that is not viewerID.
// Callers must only invoke it for chats the viewer participates in; for any
// other viewer the result is the empty identifier.
func OtherParticipant(chat *models.Chat, viewerID string) string {
	switch viewerID {
	case chat.User1ID:
		return chat.User2ID
	case chat.User2ID:
		return chat.User1ID
	}
	return ""
}

// CanonicalPair orders two participant identifiers so that get-or-create
// calls from either side of a conversation converge on the same chat row.
func CanonicalPair(a, b string) (string, string) {
	if strings.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// IsParticipant reports whether userID is one of the chat's two participants.
func IsParticipant(chat *models.Chat, userID string) bool {
	return userID == chat.User1ID || userID == chat.User2ID
}
