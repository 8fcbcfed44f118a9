package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/database"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/identity"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

// MaxContentLength is the longest message content accepted, in runes,
// measured after trimming surrounding whitespace.
const MaxContentLength = 5000

const (
	defaultGraceWindow = 5 * time.Second
	defaultRecentSize  = 64
)

var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
	ErrNoActiveChat   = errors.New("no chat is open")
	ErrNotParticipant = errors.New("viewer is not a participant of this chat")
)

// Session is the per-open-chat synchronization engine. It merges messages
// the viewer sends locally with messages arriving over the change feed,
// keeps the list ordered by created_at, and suppresses the feed echo of the
// client's own sends. One Session serves one viewer; Load switches it
// between chats.
type Session struct {
	db       database.DBInterface
	viewerID string

	mu       sync.Mutex
	chatID   uuid.UUID
	otherID  string
	messages []*models.Message
	recent   *recentCache
}

func NewSession(db database.DBInterface, viewerID string) *Session {
	return NewSessionWithGrace(db, viewerID, defaultGraceWindow, defaultRecentSize)
}

// NewSessionWithGrace sets the window during which a just-sent message id
// still suppresses its feed echo, and the bound on how many such ids are
// remembered.
func NewSessionWithGrace(db database.DBInterface, viewerID string, grace time.Duration, recentSize int) *Session {
	if grace <= 0 {
		grace = defaultGraceWindow
	}
	if recentSize <= 0 {
		recentSize = defaultRecentSize
	}
	return &Session{
		db:       db,
		viewerID: viewerID,
		recent:   newRecentCache(grace, recentSize),
	}
}

// Open points the session at the chat, superseding whatever chat was open
// before. From this moment OnRemoteInsert accepts the chat's messages, so a
// caller can subscribe to the change feed before the backlog fetch and not
// lose messages inserted in between. Load finishes the job; callers without
// a feed to race may call Load alone.
func (s *Session) Open(chat *models.Chat) error {
	otherID := identity.OtherParticipant(chat, s.viewerID)
	if otherID == "" {
		return ErrNotParticipant
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID != chat.ID {
		s.messages = nil
	}
	s.chatID = chat.ID
	s.otherID = otherID
	return nil
}

// Load fetches the chat's message list and merges it into the session. The
// fetch is tagged with the chat id it was issued for: when the viewer has
// already moved to another chat by the time the store responds, the result
// is discarded instead of overwriting the new chat's state. Messages the
// feed delivered while the fetch was in flight survive the merge.
func (s *Session) Load(ctx context.Context, chat *models.Chat) ([]*models.Message, error) {
	if err := s.Open(chat); err != nil {
		return nil, err
	}

	messages, err := s.db.ListMessages(ctx, chat.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID != chat.ID {
		// Stale load: the viewer navigated away while it was in flight.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	for _, m := range messages {
		if s.findLocked(m.ID) < 0 {
			s.messages = append(s.messages, m)
		}
	}
	s.sortLocked()
	return s.snapshotLocked(), nil
}

// Close tears down the session's chat state. Any in-flight load resolves as
// stale afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = uuid.Nil
	s.otherID = ""
	s.messages = nil
}

// OnRemoteInsert merges a feed-delivered message. The merge is idempotent:
// a message already present, or one whose id the viewer just sent, is
// discarded so the optimistic local append and its feed echo never produce
// two copies. Arrival order is not trusted; the list is re-sorted by
// created_at.
func (s *Session) OnRemoteInsert(message models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.ChatID != s.chatID {
		return false
	}
	if s.recent.Contains(message.ID) || s.findLocked(message.ID) >= 0 {
		return false
	}

	m := message
	s.messages = append(s.messages, &m)
	s.sortLocked()
	return true
}

// OnRemoteUpdate replaces the stored message with the same id, preserving
// read monotonicity: a message the viewer already saw as read never flips
// back. Unknown ids are a no-op.
func (s *Session) OnRemoteUpdate(message models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(message.ID)
	if i < 0 {
		return false
	}

	m := message
	if s.messages[i].Read {
		m.Read = true
	}
	s.messages[i] = &m
	return true
}

// ValidateContent trims and bounds-checks message content. It is applied
// before any I/O wherever a message enters the system.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// Send validates and writes a new message. Validation happens before any
// I/O; on a store failure nothing is appended locally, so the caller can
// hand the unsent text back to the input field. On success the message id
// enters the recently-sent set for the grace window, suppressing the feed
// echo.
func (s *Session) Send(ctx context.Context, content string) (*models.Message, error) {
	trimmed, err := ValidateContent(content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	chatID := s.chatID
	receiverID := s.otherID
	s.mu.Unlock()
	if chatID == uuid.Nil {
		return nil, ErrNoActiveChat
	}

	message, err := s.db.CreateMessage(ctx, chatID, s.viewerID, receiverID, trimmed)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent.Add(message.ID)
	if s.chatID == chatID && s.findLocked(message.ID) < 0 {
		s.messages = append(s.messages, message)
		s.sortLocked()
	}

	return message, nil
}

// MarkAsRead flips read=true on every loaded message addressed to the
// viewer and asks the store to do the same. The local flip is optimistic
// and is not rolled back when the store call fails: a failure only delays
// convergence, and the next load reconciles.
func (s *Session) MarkAsRead(ctx context.Context) error {
	s.mu.Lock()
	chatID := s.chatID
	if chatID == uuid.Nil {
		s.mu.Unlock()
		return ErrNoActiveChat
	}
	for _, m := range s.messages {
		if m.ReceiverID == s.viewerID {
			m.Read = true
		}
	}
	s.mu.Unlock()

	if err := s.db.MarkChatRead(ctx, chatID, s.viewerID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Messages returns a snapshot of the current list, oldest first.
func (s *Session) Messages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ActiveChat returns the id of the open chat, or uuid.Nil.
func (s *Session) ActiveChat() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

func (s *Session) findLocked(id uuid.UUID) int {
	for i, m := range s.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// sortLocked orders by created_at ascending. The sort is stable so messages
// with equal timestamps keep their insertion order.
func (s *Session) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

func (s *Session) snapshotLocked() []*models.Message {
	snapshot := make([]*models.Message, len(s.messages))
	for i, m := range s.messages {
		copied := *m
		snapshot[i] = &copied
	}
	return snapshot
}
