package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/database"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/inbox"
)

// Notifier pushes realtime signals to connected clients
type Notifier interface {
	NotifyInbox(userID string)
}

// WSManager is set at startup; nil disables push signals (e.g. in tests).
var WSManager Notifier

func notifyInbox(userID string) {
	if WSManager != nil {
		WSManager.NotifyInbox(userID)
	}
}

// ConversationHandler serves the inbox view
type ConversationHandler struct {
	DB    database.DBInterface
	Inbox *inbox.Aggregator
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(db database.DBInterface) *ConversationHandler {
	return &ConversationHandler{DB: db, Inbox: inbox.New(db)}
}

// GetConversations returns the viewer's aggregated conversation list. This
// is also the manual refresh trigger: clients re-request it whenever they
// receive an inbox_update push.
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conversations, err := h.Inbox.Load(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// GetUnreadCount returns the viewer's unread message count across all chats
func (h *ConversationHandler) GetUnreadCount(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	count, err := h.DB.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}
