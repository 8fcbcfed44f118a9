package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

// DBInterface is the contract the chat core has with the relational store.
// Every call is a round trip; nothing is cached here.
type DBInterface interface {
	// Chat methods
	ListChatsForUser(ctx context.Context, userID string) ([]*models.Chat, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
	GetOrCreateChat(ctx context.Context, userA, userB string, postID, listingID *uuid.UUID) (*models.Chat, error)

	// Message methods
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error)
	CreateMessage(ctx context.Context, chatID uuid.UUID, senderID, receiverID, content string) (*models.Message, error)
	MarkChatRead(ctx context.Context, chatID uuid.UUID, receiverID string) error
	CountUnread(ctx context.Context, userID string) (int, error)

	// Enrichment methods, read-only from this core's perspective
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetRoommatePostLocation(ctx context.Context, postID uuid.UUID) (string, error)
	GetLeaseTakeoverPostLocation(ctx context.Context, postID uuid.UUID) (string, error)

	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
)

func NewDatabase(dbType DatabaseType, connStr string) (DBInterface, error) {
	switch dbType {
	case PostgreSQL:
		return NewPostgresDB(connStr)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
