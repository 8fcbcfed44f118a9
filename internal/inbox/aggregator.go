package inbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/database"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/identity"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/logger"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

var log = logger.New("inbox")

// Aggregator builds the conversation list for a viewer by joining each of
// their chats with the other participant's profile, the latest message, the
// unread count and, when the chat references a post, a best-effort location
// lookup. It only reads; chat and message rows are never mutated here.
type Aggregator struct {
	db database.DBInterface
}

func New(db database.DBInterface) *Aggregator {
	return &Aggregator{db: db}
}

// Load recomputes the full conversation list. Per-chat joins run
// concurrently and all settle before the list is assembled; a chat whose
// other participant cannot be resolved is dropped rather than shown broken.
// The result is ordered by chat activity, most recent first.
func (a *Aggregator) Load(ctx context.Context, viewerID string) ([]*models.Conversation, error) {
	chats, err := a.db.ListChatsForUser(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	results := make([]*models.Conversation, len(chats))
	var wg sync.WaitGroup
	for i, chat := range chats {
		wg.Add(1)
		go func(i int, chat *models.Chat) {
			defer wg.Done()
			results[i] = a.buildConversation(ctx, chat, viewerID)
		}(i, chat)
	}
	wg.Wait()

	conversations := make([]*models.Conversation, 0, len(results))
	for _, conversation := range results {
		if conversation != nil {
			conversations = append(conversations, conversation)
		}
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return conversations, nil
}

func (a *Aggregator) buildConversation(ctx context.Context, chat *models.Chat, viewerID string) *models.Conversation {
	otherID := identity.OtherParticipant(chat, viewerID)
	if otherID == "" {
		log.Warn("Dropping chat %s: viewer %s is not a participant", chat.ID, viewerID)
		return nil
	}

	profile, err := a.db.GetProfile(ctx, otherID)
	if err != nil {
		// A deleted or unreadable profile must not break the whole inbox.
		log.Warn("Dropping chat %s: profile %s: %v", chat.ID, otherID, err)
		return nil
	}

	conversation := &models.Conversation{
		ChatID:    chat.ID,
		OtherUser: *profile,
		PostID:    chat.PostID,
		ListingID: chat.ListingID,
		UpdatedAt: chat.UpdatedAt,
	}

	messages, err := a.db.ListMessages(ctx, chat.ID)
	if err != nil {
		log.Warn("Chat %s: listing messages: %v", chat.ID, err)
		messages = nil
	}
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		conversation.LastMessage = &models.LastMessage{
			Content:   last.Content,
			CreatedAt: last.CreatedAt,
			SenderID:  last.SenderID,
		}
	}
	for _, m := range messages {
		if m.ReceiverID == viewerID && !m.Read {
			conversation.UnreadCount++
		}
	}

	if chat.PostID != nil {
		if location, ok := a.postLocation(ctx, *chat.PostID); ok {
			conversation.PostLocation = &location
		}
	}

	return conversation
}

// postLocation resolves a human-readable location for the post a chat
// started from. Roommate posts are tried first, then lease takeovers; both
// branches are best-effort and any failure leaves the location absent.
func (a *Aggregator) postLocation(ctx context.Context, postID uuid.UUID) (string, bool) {
	location, err := a.db.GetRoommatePostLocation(ctx, postID)
	if err == nil && location != "" {
		return location, true
	}

	location, err = a.db.GetLeaseTakeoverPostLocation(ctx, postID)
	if err == nil && location != "" {
		return location, true
	}

	return "", false
}
