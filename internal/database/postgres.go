package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/identity"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/logger"
	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrPostNotFound    = errors.New("post not found")
)

// pq error code for unique_violation
const uniqueViolation = "23505"

var log = logger.New("database")

type PostgresDB struct {
	db *sqlx.DB
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, err
	}

	return &PostgresDB{db: db}, nil
}

func (db *PostgresDB) Close() error {
	return db.db.Close()
}

// ListChatsForUser returns every chat the user participates in, most
// recently active first.
func (db *PostgresDB) ListChatsForUser(ctx context.Context, userID string) ([]*models.Chat, error) {
	chats := []*models.Chat{}
	err := db.db.SelectContext(ctx, &chats, `
		SELECT id, user1_id, user2_id, post_id, listing_id, created_at, updated_at
		FROM chats
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}

	return chats, nil
}

func (db *PostgresDB) GetChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := db.db.GetContext(ctx, &chat, `
		SELECT id, user1_id, user2_id, post_id, listing_id, created_at, updated_at
		FROM chats
		WHERE id = $1`, chatID)

	if err == sql.ErrNoRows {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}

	return &chat, nil
}

// GetOrCreateChat finds the chat between the two users, creating it on first
// contact. The pair is stored in canonical order and the chats table carries
// a unique index on (user1_id, user2_id), so when both participants race the
// insert the loser re-reads the winner's row. Post and listing context is
// patched onto an existing row first-write-wins: a non-null value already
// present is never overwritten.
func (db *PostgresDB) GetOrCreateChat(ctx context.Context, userA, userB string, postID, listingID *uuid.UUID) (*models.Chat, error) {
	user1, user2 := identity.CanonicalPair(userA, userB)

	chat, err := db.getChatByPair(ctx, user1, user2)
	if err == nil {
		return db.attachContext(ctx, chat, postID, listingID)
	}
	if !errors.Is(err, ErrChatNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	chat = &models.Chat{
		ID:        uuid.New(),
		User1ID:   user1,
		User2ID:   user2,
		PostID:    postID,
		ListingID: listingID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = db.db.ExecContext(ctx, `
		INSERT INTO chats (id, user1_id, user2_id, post_id, listing_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		chat.ID, chat.User1ID, chat.User2ID, chat.PostID, chat.ListingID, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// The other participant created the chat between our select and
			// insert; their row is the canonical one.
			existing, selErr := db.getChatByPair(ctx, user1, user2)
			if selErr != nil {
				return nil, selErr
			}
			return db.attachContext(ctx, existing, postID, listingID)
		}
		return nil, err
	}

	return chat, nil
}

// getChatByPair matches the canonical pair in either stored order, so rows
// written before canonical ordering was enforced are still found.
func (db *PostgresDB) getChatByPair(ctx context.Context, user1, user2 string) (*models.Chat, error) {
	var chat models.Chat
	err := db.db.GetContext(ctx, &chat, `
		SELECT id, user1_id, user2_id, post_id, listing_id, created_at, updated_at
		FROM chats
		WHERE (user1_id = $1 AND user2_id = $2) OR (user1_id = $2 AND user2_id = $1)`,
		user1, user2)

	if err == sql.ErrNoRows {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}

	return &chat, nil
}

func (db *PostgresDB) attachContext(ctx context.Context, chat *models.Chat, postID, listingID *uuid.UUID) (*models.Chat, error) {
	needsPost := postID != nil && chat.PostID == nil
	needsListing := listingID != nil && chat.ListingID == nil
	if !needsPost && !needsListing {
		return chat, nil
	}

	// A concurrent caller may have attached a different value between our
	// read and this update; RETURNING reports what the row actually kept.
	var updated models.Chat
	err := db.db.GetContext(ctx, &updated, `
		UPDATE chats
		SET post_id = COALESCE(post_id, $1), listing_id = COALESCE(listing_id, $2)
		WHERE id = $3
		RETURNING id, user1_id, user2_id, post_id, listing_id, created_at, updated_at`,
		postID, listingID, chat.ID)
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// ListMessages returns the chat's messages oldest first.
func (db *PostgresDB) ListMessages(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	messages := []*models.Message{}
	err := db.db.SelectContext(ctx, &messages, `
		SELECT id, chat_id, sender_id, receiver_id, content, read, created_at, updated_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// CreateMessage inserts the message and then bumps the parent chat's
// updated_at. The two statements are deliberately not one transaction: if
// the bump fails the message still exists and inbox ordering is stale until
// the next write, which is acceptable.
func (db *PostgresDB) CreateMessage(ctx context.Context, chatID uuid.UUID, senderID, receiverID, content string) (*models.Message, error) {
	now := time.Now().UTC()
	message := &models.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Read:       false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, receiver_id, content, read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		message.ID, message.ChatID, message.SenderID, message.ReceiverID,
		message.Content, message.Read, message.CreatedAt, message.UpdatedAt)
	if err != nil {
		return nil, err
	}

	_, err = db.db.ExecContext(ctx, `UPDATE chats SET updated_at = $1 WHERE id = $2`, now, chatID)
	if err != nil {
		log.Warn("Failed to bump chat %s after message insert: %v", chatID, err)
	}

	return message, nil
}

// MarkChatRead flips read=true on every unread message addressed to
// receiverID in the chat.
func (db *PostgresDB) MarkChatRead(ctx context.Context, chatID uuid.UUID, receiverID string) error {
	_, err := db.db.ExecContext(ctx, `
		UPDATE messages
		SET read = TRUE, updated_at = $1
		WHERE chat_id = $2 AND receiver_id = $3 AND read = FALSE`,
		time.Now().UTC(), chatID, receiverID)

	return err
}

// CountUnread returns the user's unread message count across all chats.
func (db *PostgresDB) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (db *PostgresDB) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := db.db.GetContext(ctx, &profile, `
		SELECT user_id, COALESCE(display_name, '') AS display_name,
		       handle, COALESCE(avatar_url, '') AS avatar_url
		FROM user_profiles
		WHERE user_id = $1`, userID)

	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

func (db *PostgresDB) GetRoommatePostLocation(ctx context.Context, postID uuid.UUID) (string, error) {
	return db.postLocation(ctx, `SELECT location FROM roommate_posts WHERE id = $1`, postID)
}

func (db *PostgresDB) GetLeaseTakeoverPostLocation(ctx context.Context, postID uuid.UUID) (string, error) {
	return db.postLocation(ctx, `SELECT location FROM lease_takeover_posts WHERE id = $1`, postID)
}

func (db *PostgresDB) postLocation(ctx context.Context, query string, postID uuid.UUID) (string, error) {
	var location string
	err := db.db.GetContext(ctx, &location, query, postID)

	if err == sql.ErrNoRows {
		return "", ErrPostNotFound
	}
	if err != nil {
		return "", err
	}

	return location, nil
}
