package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/chatsync"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/database"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/logger"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/realtime"
)

var log = logger.New("websocket")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin policy is enforced by the CORS layer in front.
		return true
	},
}

// Manager maintains the set of connected clients. A viewer can be connected
// from several surfaces at once (web and mobile), so clients are grouped by
// viewer id.
type Manager struct {
	db   database.DBInterface
	feed realtime.Feed

	sendGrace  time.Duration
	recentSize int

	mutex      sync.Mutex
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
}

// NewManager creates the hub through which clients open chat sessions and
// receive pushes.
func NewManager(db database.DBInterface, feed realtime.Feed, sendGrace time.Duration, recentSize int) *Manager {
	return &Manager{
		db:         db,
		feed:       feed,
		sendGrace:  sendGrace,
		recentSize: recentSize,
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub loop.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			group := m.clients[client.viewerID]
			if group == nil {
				group = make(map[*Client]struct{})
				m.clients[client.viewerID] = group
			}
			group[client] = struct{}{}
			m.mutex.Unlock()
			log.Info("Client connected: %s", client.viewerID)

		case client := <-m.unregister:
			m.mutex.Lock()
			if group, ok := m.clients[client.viewerID]; ok {
				if _, ok := group[client]; ok {
					delete(group, client)
					if len(group) == 0 {
						delete(m.clients, client.viewerID)
					}
					client.closeSend()
					log.Info("Client disconnected: %s", client.viewerID)
				}
			}
			m.mutex.Unlock()
		}
	}
}

// SendToUser delivers a payload to every connected surface of one viewer.
// A surface whose buffer is full is dropped rather than allowed to block
// everyone else.
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for client := range m.clients[userID] {
		if !client.enqueue(payload) {
			client.closeSend()
			delete(m.clients[userID], client)
			log.Warn("Dropping unresponsive client for user %s", userID)
		}
	}
}

// NotifyInbox pushes a lightweight refresh signal; it carries no message
// content, the client recomputes its inbox through the query API.
func (m *Manager) NotifyInbox(userID string) {
	payload, err := json.Marshal(serverFrame{Type: frameInboxUpdate})
	if err != nil {
		return
	}
	m.SendToUser(userID, payload)
}

// HandleWebSocket upgrades the request and runs the client's session until
// the connection drops. The viewer id must already be in the gin context.
func (m *Manager) HandleWebSocket(c *gin.Context) {
	viewerID := c.GetString("userID")
	if viewerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("Upgrade failed for %s: %v", c.Request.RemoteAddr, err)
		return
	}

	client := &Client{
		manager:  m,
		viewerID: viewerID,
		socket:   socket,
		send:     make(chan []byte, 64),
		session:  chatsync.NewSessionWithGrace(m.db, viewerID, m.sendGrace, m.recentSize),
		watch:    realtime.NewManager(m.feed),
	}

	m.register <- client

	go client.writePump()
	go client.readPump()
}
