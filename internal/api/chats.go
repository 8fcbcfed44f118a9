package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/chatsync"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/database"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/identity"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

// ChatHandler handles chat and message routes
type ChatHandler struct {
	DB database.DBInterface
}

// NewChatHandler creates a new chat handler
func NewChatHandler(db database.DBInterface) *ChatHandler {
	return &ChatHandler{DB: db}
}

// CreateChat gets or creates the chat between the viewer and another user,
// optionally attaching the post or listing the contact started from.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OtherUserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot start a chat with yourself"})
		return
	}

	chat, err := h.DB.GetOrCreateChat(c.Request.Context(), userID, req.OtherUserID, req.PostID, req.ListingID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chat)
}

// GetMessages returns the chat's messages, oldest first
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chat, _, ok := h.participantChat(c)
	if !ok {
		return
	}

	messages, err := h.DB.ListMessages(c.Request.Context(), chat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// SendMessage appends a message to the chat. Content is validated before
// any store call; on failure the client keeps the unsent text.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	chat, userID, ok := h.participantChat(c)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, err := chatsync.ValidateContent(req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receiverID := identity.OtherParticipant(chat, userID)
	message, err := h.DB.CreateMessage(c.Request.Context(), chat.ID, userID, receiverID, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	notifyInbox(receiverID)
	notifyInbox(userID)

	c.JSON(http.StatusCreated, message)
}

// MarkRead flips every unread message addressed to the viewer in this chat
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chat, userID, ok := h.participantChat(c)
	if !ok {
		return
	}

	if err := h.DB.MarkChatRead(c.Request.Context(), chat.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	notifyInbox(userID)
	c.Status(http.StatusNoContent)
}

// participantChat resolves the chat from the route and verifies the viewer
// participates in it. It writes the error response itself when it fails.
func (h *ChatHandler) participantChat(c *gin.Context) (*models.Chat, string, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, "", false
	}

	chatID, err := uuid.Parse(c.Param("chatID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chat ID"})
		return nil, "", false
	}

	chat, err := h.DB.GetChat(c.Request.Context(), chatID)
	if errors.Is(err, database.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
		return nil, "", false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, "", false
	}

	if !identity.IsParticipant(chat, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this chat"})
		return nil, "", false
	}

	return chat, userID, true
}
