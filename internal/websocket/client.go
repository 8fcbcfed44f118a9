package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/chatsync"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/identity"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/realtime"
)

// Client actions
const (
	actionOpenChat   = "open_chat"
	actionCloseChat  = "close_chat"
	actionSend       = "send"
	actionMarkRead   = "mark_read"
	actionWatchInbox = "watch_inbox"
)

// Server frame types
const (
	frameMessages      = "messages"
	frameMessage       = "message"
	frameMessageUpdate = "message_update"
	frameInboxUpdate   = "inbox_update"
	frameError         = "error"
	frameConnection    = "connection"
)

type clientFrame struct {
	Action  string    `json:"action"`
	ChatID  uuid.UUID `json:"chat_id,omitempty"`
	Content string    `json:"content,omitempty"`
}

type serverFrame struct {
	Type      string            `json:"type"`
	ChatID    uuid.UUID         `json:"chat_id,omitempty"`
	Messages  []*models.Message `json:"messages,omitempty"`
	Message   *models.Message   `json:"message,omitempty"`
	Connected *bool             `json:"connected,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Client is one connected surface of a viewer. It owns the viewer's chat
// session and change-feed watches for the lifetime of the connection; both
// are torn down unconditionally when the connection ends, however it ends.
type Client struct {
	manager  *Manager
	viewerID string
	socket   *websocket.Conn
	session  *chatsync.Session
	watch    *realtime.Manager

	send       chan []byte
	sendMu     sync.Mutex
	sendClosed bool
}

// enqueue hands a payload to the write pump. It reports false when the
// buffer is full or the client is already torn down. Feed callbacks can
// still fire briefly after teardown, so every write to the send channel
// goes through here; nothing may touch the channel directly.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend shuts the send channel exactly once. Only the hub calls this,
// after removing the client from its registry.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		// Unconditional teardown: no exit path may leak feed channels.
		c.watch.Close()
		c.session.Close()
		c.manager.unregister <- c
		c.socket.Close()
	}()

	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Read error for %s: %v", c.viewerID, err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.pushError(uuid.Nil, "malformed frame")
			continue
		}

		c.handleFrame(frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(frame clientFrame) {
	ctx := context.Background()

	switch frame.Action {
	case actionOpenChat:
		c.openChat(ctx, frame.ChatID)
	case actionCloseChat:
		c.watch.UnwatchChat()
		c.session.Close()
	case actionSend:
		c.sendMessage(ctx, frame.Content)
	case actionMarkRead:
		c.markRead(ctx)
	case actionWatchInbox:
		c.watchInbox()
	default:
		c.pushError(uuid.Nil, "unknown action: "+frame.Action)
	}
}

func (c *Client) openChat(ctx context.Context, chatID uuid.UUID) {
	chat, err := c.manager.db.GetChat(ctx, chatID)
	if err != nil {
		c.pushError(chatID, "chat not found")
		return
	}
	if !identity.IsParticipant(chat, c.viewerID) {
		c.pushError(chatID, "not a participant of this chat")
		return
	}

	// Point the session at the chat and subscribe before fetching the
	// backlog: a message inserted between the fetch and the subscribe would
	// otherwise be invisible until the next open. Events arriving during
	// the fetch merge into the session and survive the load.
	if err := c.session.Open(chat); err != nil {
		c.pushError(chatID, err.Error())
		return
	}

	err = c.watch.WatchChat(chat.ID,
		func(message models.Message) {
			if c.session.OnRemoteInsert(message) {
				c.push(serverFrame{Type: frameMessage, ChatID: message.ChatID, Message: &message})
			}
		},
		func(message models.Message) {
			if c.session.OnRemoteUpdate(message) {
				c.push(serverFrame{Type: frameMessageUpdate, ChatID: message.ChatID, Message: &message})
			}
		},
		func(err error) {
			c.pushConnection(false, err.Error())
		},
	)
	if err != nil {
		c.pushConnection(false, err.Error())
		return
	}

	messages, err := c.session.Load(ctx, chat)
	if err != nil {
		c.pushError(chatID, err.Error())
		return
	}
	if messages == nil {
		// Superseded by a newer open_chat while loading.
		return
	}

	c.pushConnection(true, "")
	c.push(serverFrame{Type: frameMessages, ChatID: chat.ID, Messages: messages})
}

func (c *Client) sendMessage(ctx context.Context, content string) {
	message, err := c.session.Send(ctx, content)
	if err != nil {
		// The client keeps the unsent text; only the reason comes back.
		c.pushError(c.session.ActiveChat(), err.Error())
		return
	}

	c.push(serverFrame{Type: frameMessage, ChatID: message.ChatID, Message: message})
	c.manager.NotifyInbox(message.ReceiverID)
	c.manager.NotifyInbox(message.SenderID)
}

func (c *Client) markRead(ctx context.Context) {
	if err := c.session.MarkAsRead(ctx); err != nil {
		c.pushError(c.session.ActiveChat(), err.Error())
		return
	}
	c.push(serverFrame{Type: frameMessages, ChatID: c.session.ActiveChat(), Messages: c.session.Messages()})
}

func (c *Client) watchInbox() {
	err := c.watch.WatchInbox(c.viewerID,
		func() {
			c.push(serverFrame{Type: frameInboxUpdate})
		},
		func(err error) {
			c.pushConnection(false, err.Error())
		},
	)
	if err != nil {
		c.pushConnection(false, err.Error())
	}
}

func (c *Client) push(frame serverFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Error("Failed to marshal frame: %v", err)
		return
	}
	if !c.enqueue(payload) {
		log.Warn("Dropping frame for %s: client gone or buffer full", c.viewerID)
	}
}

func (c *Client) pushError(chatID uuid.UUID, message string) {
	c.push(serverFrame{Type: frameError, ChatID: chatID, Error: message})
}

func (c *Client) pushConnection(connected bool, message string) {
	c.push(serverFrame{Type: frameConnection, Connected: &connected, Error: message})
}
