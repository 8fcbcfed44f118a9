package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/logger"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

var log = logger.New("realtime")

// State tracks one subscription target through its lifecycle.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	}
	return "unknown"
}

type subscription struct {
	name    string
	state   State
	channel io.Closer
}

func (s *subscription) close() {
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			log.Warn("Failed to close channel %s: %v", s.name, err)
		}
		s.channel = nil
	}
	s.state = StateUnsubscribed
}

// Manager owns the subscribe/unsubscribe lifecycle for one client: at most
// one chat watch at a time, plus one inbox watch group. A channel-level
// failure moves the affected target to StateError and is surfaced through
// the caller's error callback; the manager never retries on its own — the
// owning view re-subscribes by re-entering.
type Manager struct {
	feed Feed

	mu         sync.Mutex
	chatID     uuid.UUID
	chatSubs   []*subscription
	inboxSubs  []*subscription
	chatState  State
	inboxState State
}

func NewManager(feed Feed) *Manager {
	return &Manager{feed: feed}
}

// WatchChat subscribes to message inserts and updates for one chat. Any
// previous chat watch is torn down first, so switching chats never leaks
// channels.
func (m *Manager) WatchChat(chatID uuid.UUID, onInsert, onUpdate func(models.Message), onError func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unwatchChatLocked()
	m.chatState = StateSubscribing

	insert, err := m.openMessageChannel(chatID, EventInsert, onInsert, m.chatFailure(onError))
	if err != nil {
		m.chatState = StateError
		return err
	}
	m.chatSubs = append(m.chatSubs, insert)

	update, err := m.openMessageChannel(chatID, EventUpdate, onUpdate, m.chatFailure(onError))
	if err != nil {
		m.unwatchChatLocked()
		m.chatState = StateError
		return err
	}
	m.chatSubs = append(m.chatSubs, update)

	m.chatID = chatID
	m.chatState = StateActive
	return nil
}

func (m *Manager) openMessageChannel(chatID uuid.UUID, eventType EventType, handle func(models.Message), onError func(error)) (*subscription, error) {
	name := fmt.Sprintf("messages:%s:%s", eventType, chatID)
	filter := Filter{
		Collection: "messages",
		Type:       eventType,
		Column:     "chat_id",
		Value:      chatID.String(),
	}

	sub := &subscription{name: name, state: StateSubscribing}
	channel, err := m.feed.Open(name, filter, func(ev Event) {
		var message models.Message
		if err := json.Unmarshal(ev.Row, &message); err != nil {
			log.Warn("Dropping malformed row on %s: %v", name, err)
			return
		}
		handle(message)
	}, onError)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	sub.channel = channel
	sub.state = StateActive
	return sub, nil
}

func (m *Manager) chatFailure(onError func(error)) func(error) {
	return func(err error) {
		m.mu.Lock()
		m.chatState = StateError
		m.mu.Unlock()
		onError(err)
	}
}

// UnwatchChat tears down the current chat watch, if any. Safe to call on
// every exit path regardless of state.
func (m *Manager) UnwatchChat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unwatchChatLocked()
}

func (m *Manager) unwatchChatLocked() {
	for _, sub := range m.chatSubs {
		sub.close()
	}
	m.chatSubs = nil
	m.chatID = uuid.Nil
	m.chatState = StateUnsubscribed
}

// WatchInbox subscribes to everything that can change the viewer's inbox:
// chat rows where the viewer is user1, chat rows where the viewer is user2
// (the feed's filter cannot express OR across the two columns), and all
// message inserts as a refresh trigger. The notify callback carries no
// payload; the caller recomputes the inbox from the store.
func (m *Manager) WatchInbox(userID string, notify func(), onError func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unwatchInboxLocked()
	m.inboxState = StateSubscribing

	filters := []struct {
		name   string
		filter Filter
	}{
		{"chats:user1:" + userID, Filter{Collection: "chats", Type: EventAll, Column: "user1_id", Value: userID}},
		{"chats:user2:" + userID, Filter{Collection: "chats", Type: EventAll, Column: "user2_id", Value: userID}},
		{"messages:inbox:" + userID, Filter{Collection: "messages", Type: EventInsert}},
	}

	fail := func(err error) {
		m.mu.Lock()
		m.inboxState = StateError
		m.mu.Unlock()
		onError(err)
	}

	for _, f := range filters {
		sub := &subscription{name: f.name, state: StateSubscribing}
		channel, err := m.feed.Open(f.name, f.filter, func(Event) { notify() }, fail)
		if err != nil {
			m.unwatchInboxLocked()
			m.inboxState = StateError
			return fmt.Errorf("open %s: %w", f.name, err)
		}
		sub.channel = channel
		sub.state = StateActive
		m.inboxSubs = append(m.inboxSubs, sub)
	}

	m.inboxState = StateActive
	return nil
}

// UnwatchInbox tears down the inbox watch group, if any.
func (m *Manager) UnwatchInbox() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unwatchInboxLocked()
}

func (m *Manager) unwatchInboxLocked() {
	for _, sub := range m.inboxSubs {
		sub.close()
	}
	m.inboxSubs = nil
	m.inboxState = StateUnsubscribed
}

// Close tears down every subscription the manager owns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unwatchChatLocked()
	m.unwatchInboxLocked()
}

// ChatState reports the lifecycle state of the chat watch.
func (m *Manager) ChatState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatState
}

// InboxState reports the lifecycle state of the inbox watch group.
func (m *Manager) InboxState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inboxState
}

// WatchedChat returns the chat id of the active chat watch, or uuid.Nil.
func (m *Manager) WatchedChat() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatID
}
