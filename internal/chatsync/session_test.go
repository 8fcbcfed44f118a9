package chatsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/models"
)

// fakeDB lets each test plug in just the store behavior it needs. Blocking
// behavior (for the stale-load cases) is easier to express with function
// fields than with a recorded mock.
type fakeDB struct {
	listMessagesFn  func(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error)
	createMessageFn func(ctx context.Context, chatID uuid.UUID, senderID, receiverID, content string) (*models.Message, error)
	markChatReadFn  func(ctx context.Context, chatID uuid.UUID, receiverID string) error

	createCalls int
	markCalls   int
}

func (f *fakeDB) ListMessages(ctx context.Context, chatID uuid.UUID) ([]*models.Message, error) {
	if f.listMessagesFn != nil {
		return f.listMessagesFn(ctx, chatID)
	}
	return []*models.Message{}, nil
}

func (f *fakeDB) CreateMessage(ctx context.Context, chatID uuid.UUID, senderID, receiverID, content string) (*models.Message, error) {
	f.createCalls++
	if f.createMessageFn != nil {
		return f.createMessageFn(ctx, chatID, senderID, receiverID, content)
	}
	now := time.Now().UTC()
	return &models.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (f *fakeDB) MarkChatRead(ctx context.Context, chatID uuid.UUID, receiverID string) error {
	f.markCalls++
	if f.markChatReadFn != nil {
		return f.markChatReadFn(ctx, chatID, receiverID)
	}
	return nil
}

func (f *fakeDB) ListChatsForUser(context.Context, string) ([]*models.Chat, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) GetChat(context.Context, uuid.UUID) (*models.Chat, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) GetOrCreateChat(context.Context, string, string, *uuid.UUID, *uuid.UUID) (*models.Chat, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) CountUnread(context.Context, string) (int, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeDB) GetProfile(context.Context, string) (*models.Profile, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) GetRoommatePostLocation(context.Context, uuid.UUID) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeDB) GetLeaseTakeoverPostLocation(context.Context, uuid.UUID) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeDB) Close() error { return nil }

func testChat(viewerID, otherID string) *models.Chat {
	user1, user2 := viewerID, otherID
	if user1 > user2 {
		user1, user2 = user2, user1
	}
	return &models.Chat{ID: uuid.New(), User1ID: user1, User2ID: user2}
}

func openSession(t *testing.T, db *fakeDB) (*Session, *models.Chat) {
	t.Helper()
	s := NewSession(db, "a1")
	chat := testChat("a1", "b2")
	_, err := s.Load(context.Background(), chat)
	require.NoError(t, err)
	return s, chat
}

func remoteMessage(chatID uuid.UUID, content string, at time.Time) models.Message {
	return models.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		SenderID:   "b2",
		ReceiverID: "a1",
		Content:    content,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestSendRejectsInvalidContentBeforeIO(t *testing.T) {
	db := &fakeDB{}
	s, _ := openSession(t, db)

	_, err := s.Send(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = s.Send(context.Background(), strings.Repeat("x", MaxContentLength+1))
	assert.ErrorIs(t, err, ErrContentTooLong)

	assert.Equal(t, 0, db.createCalls, "validation failures must not reach the store")
}

func TestSendAppendsTrimmedMessage(t *testing.T) {
	db := &fakeDB{}
	s, _ := openSession(t, db)

	message, err := s.Send(context.Background(), "  hello ")
	require.NoError(t, err)

	assert.Equal(t, "hello", message.Content)
	assert.Equal(t, "a1", message.SenderID)
	assert.Equal(t, "b2", message.ReceiverID)

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
}

func TestSendFailureLeavesStateUntouched(t *testing.T) {
	db := &fakeDB{
		createMessageFn: func(context.Context, uuid.UUID, string, string, string) (*models.Message, error) {
			return nil, errors.New("store down")
		},
	}
	s, _ := openSession(t, db)

	_, err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, s.Messages(), "a failed send must not appear locally")
}

func TestSendWithoutOpenChat(t *testing.T) {
	s := NewSession(&fakeDB{}, "a1")

	_, err := s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoActiveChat)
}

func TestRemoteInsertIsIdempotent(t *testing.T) {
	db := &fakeDB{}
	s, chat := openSession(t, db)

	msg := remoteMessage(chat.ID, "hey", time.Now().UTC())
	assert.True(t, s.OnRemoteInsert(msg))
	assert.False(t, s.OnRemoteInsert(msg))

	assert.Len(t, s.Messages(), 1)
}

func TestRemoteInsertSuppressesOwnEcho(t *testing.T) {
	db := &fakeDB{}
	s, _ := openSession(t, db)

	sent, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)

	// The change feed echoes the row the viewer just wrote.
	assert.False(t, s.OnRemoteInsert(*sent))
	assert.Len(t, s.Messages(), 1)
}

func TestRemoteInsertIgnoresOtherChats(t *testing.T) {
	db := &fakeDB{}
	s, _ := openSession(t, db)

	assert.False(t, s.OnRemoteInsert(remoteMessage(uuid.New(), "stray", time.Now().UTC())))
	assert.Empty(t, s.Messages())
}

func TestOrderingInvariantUnderOutOfOrderDelivery(t *testing.T) {
	db := &fakeDB{}
	s, chat := openSession(t, db)

	base := time.Now().UTC()
	third := remoteMessage(chat.ID, "third", base.Add(2*time.Second))
	first := remoteMessage(chat.ID, "first", base)
	second := remoteMessage(chat.ID, "second", base.Add(time.Second))

	for _, msg := range []models.Message{third, first, second} {
		require.True(t, s.OnRemoteInsert(msg))
		messages := s.Messages()
		for i := 1; i < len(messages); i++ {
			assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
				"list must stay sorted by created_at after every insert")
		}
	}

	messages := s.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
}

func TestRemoteUpdateReplacesInPlace(t *testing.T) {
	db := &fakeDB{}
	s, chat := openSession(t, db)

	msg := remoteMessage(chat.ID, "hey", time.Now().UTC())
	require.True(t, s.OnRemoteInsert(msg))

	updated := msg
	updated.Read = true
	assert.True(t, s.OnRemoteUpdate(updated))
	assert.True(t, s.Messages()[0].Read)

	// Unknown ids are a no-op.
	assert.False(t, s.OnRemoteUpdate(remoteMessage(chat.ID, "ghost", time.Now().UTC())))
}

func TestRemoteUpdateNeverUnreads(t *testing.T) {
	db := &fakeDB{}
	s, chat := openSession(t, db)

	msg := remoteMessage(chat.ID, "hey", time.Now().UTC())
	msg.Read = true
	require.True(t, s.OnRemoteInsert(msg))

	stale := msg
	stale.Read = false
	assert.True(t, s.OnRemoteUpdate(stale))
	assert.True(t, s.Messages()[0].Read, "read flag is monotonic")
}

func TestMarkAsReadFlipsViewerMessagesOnly(t *testing.T) {
	db := &fakeDB{}
	s, chat := openSession(t, db)

	incoming := remoteMessage(chat.ID, "for viewer", time.Now().UTC())
	require.True(t, s.OnRemoteInsert(incoming))
	_, err := s.Send(context.Background(), "from viewer")
	require.NoError(t, err)

	require.NoError(t, s.MarkAsRead(context.Background()))

	for _, m := range s.Messages() {
		if m.ReceiverID == "a1" {
			assert.True(t, m.Read)
		} else {
			assert.False(t, m.Read, "the sender cannot read-flag their own message")
		}
	}
}

func TestMarkAsReadTwiceIsNoop(t *testing.T) {
	db := &fakeDB{}
	s, chat := openSession(t, db)

	require.True(t, s.OnRemoteInsert(remoteMessage(chat.ID, "hey", time.Now().UTC())))

	require.NoError(t, s.MarkAsRead(context.Background()))
	before := s.Messages()
	require.NoError(t, s.MarkAsRead(context.Background()))

	assert.Equal(t, before, s.Messages())
	assert.Equal(t, 2, db.markCalls)
}

func TestMarkAsReadKeepsOptimisticFlipOnStoreFailure(t *testing.T) {
	db := &fakeDB{
		markChatReadFn: func(context.Context, uuid.UUID, string) error {
			return errors.New("store down")
		},
	}
	s, chat := openSession(t, db)
	require.True(t, s.OnRemoteInsert(remoteMessage(chat.ID, "hey", time.Now().UTC())))

	err := s.MarkAsRead(context.Background())
	require.Error(t, err)

	// The local flip is not rolled back; the next load reconciles.
	assert.True(t, s.Messages()[0].Read)
}

func TestStaleLoadNeverOverwritesNewChat(t *testing.T) {
	chatX := testChat("a1", "b2")
	chatY := testChat("a1", "c3")

	release := make(chan struct{})
	started := make(chan struct{})
	db := &fakeDB{
		listMessagesFn: func(_ context.Context, chatID uuid.UUID) ([]*models.Message, error) {
			if chatID == chatX.ID {
				close(started)
				<-release
				return []*models.Message{{
					ID:        uuid.New(),
					ChatID:    chatX.ID,
					SenderID:  "b2",
					Content:   "old chat",
					CreatedAt: time.Now().UTC(),
				}}, nil
			}
			return []*models.Message{{
				ID:        uuid.New(),
				ChatID:    chatY.ID,
				SenderID:  "c3",
				Content:   "new chat",
				CreatedAt: time.Now().UTC(),
			}}, nil
		},
	}

	s := NewSession(db, "a1")

	staleDone := make(chan []*models.Message, 1)
	go func() {
		messages, err := s.Load(context.Background(), chatX)
		assert.NoError(t, err)
		staleDone <- messages
	}()

	<-started
	messages, err := s.Load(context.Background(), chatY)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	close(release)
	assert.Nil(t, <-staleDone, "a stale load resolves empty")

	current := s.Messages()
	require.Len(t, current, 1)
	assert.Equal(t, "new chat", current[0].Content)
	assert.Equal(t, chatY.ID, s.ActiveChat())
}

func TestLoadRejectsNonParticipant(t *testing.T) {
	s := NewSession(&fakeDB{}, "stranger")

	_, err := s.Load(context.Background(), testChat("a1", "b2"))
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestLoadMergesMessagesArrivedDuringFetch(t *testing.T) {
	chat := testChat("a1", "b2")
	backlog := remoteMessage(chat.ID, "older", time.Now().UTC().Add(-time.Minute))

	fetching := make(chan struct{})
	release := make(chan struct{})
	db := &fakeDB{
		listMessagesFn: func(context.Context, uuid.UUID) ([]*models.Message, error) {
			close(fetching)
			<-release
			m := backlog
			return []*models.Message{&m}, nil
		},
	}

	s := NewSession(db, "a1")
	require.NoError(t, s.Open(chat))

	loaded := make(chan []*models.Message, 1)
	go func() {
		messages, err := s.Load(context.Background(), chat)
		assert.NoError(t, err)
		loaded <- messages
	}()
	<-fetching

	// Inserted after the session opened but before the backlog fetch
	// resolved. The load must merge around it, not wipe it.
	arrived := remoteMessage(chat.ID, "while loading", time.Now().UTC())
	assert.True(t, s.OnRemoteInsert(arrived))

	close(release)
	messages := <-loaded

	require.Len(t, messages, 2)
	assert.Equal(t, "older", messages[0].Content)
	assert.Equal(t, "while loading", messages[1].Content)
}

func TestRecentCacheExpiresOnLookup(t *testing.T) {
	cache := newRecentCache(3*time.Second, 8)
	now := time.Now()
	cache.now = func() time.Time { return now }

	id := uuid.New()
	cache.Add(id)
	assert.True(t, cache.Contains(id))

	now = now.Add(2 * time.Second)
	assert.True(t, cache.Contains(id))

	now = now.Add(2 * time.Second)
	assert.False(t, cache.Contains(id), "entries expire after the grace window")
	assert.False(t, cache.Contains(id))
}

func TestRecentCacheIsBounded(t *testing.T) {
	cache := newRecentCache(time.Minute, 2)

	first := uuid.New()
	second := uuid.New()
	third := uuid.New()
	cache.Add(first)
	cache.Add(second)
	cache.Add(third)

	assert.False(t, cache.Contains(first), "oldest entry is evicted at capacity")
	assert.True(t, cache.Contains(second))
	assert.True(t, cache.Contains(third))
}

func TestRecentCacheRefreshKeepsEvictionOrder(t *testing.T) {
	cache := newRecentCache(time.Minute, 8)
	now := time.Now()
	cache.now = func() time.Time { return now }

	first := uuid.New()
	second := uuid.New()
	cache.Add(first)
	now = now.Add(10 * time.Second)
	cache.Add(second)
	now = now.Add(10 * time.Second)
	cache.Add(first)

	// Past second's deadline, within first's refreshed one. The next Add
	// must sweep second out even though first sits in front of it.
	now = now.Add(51 * time.Second)
	cache.Add(uuid.New())

	_, stillThere := cache.deadlines[second]
	assert.False(t, stillThere, "expired entry behind a refreshed one is swept")
	assert.Len(t, cache.order, 2)
	assert.True(t, cache.Contains(first))
}
