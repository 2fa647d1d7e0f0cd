package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	users map[string]*models.User
}

func (d *fakeDirectory) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

type fakeStore struct {
	mu         sync.Mutex
	created    []*models.Message
	history    []*models.Message
	failCreate bool
}

func (s *fakeStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errors.New("store unavailable")
	}
	s.created = append(s.created, msg)
	return nil
}

func (s *fakeStore) QueryRoomMessages(ctx context.Context, roomID string, limit int, before time.Time) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, errors.New("store unavailable")
	}
	return s.history, nil
}

func (s *fakeStore) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func newTestRouter(store *fakeStore) (*Router, *PresenceTracker, *RoomHub) {
	tracker := NewPresenceTracker()
	hub := NewRoomHub(64)
	dir := &fakeDirectory{users: map[string]*models.User{
		"u1": {ID: "u1", Username: "alice"},
		"u2": {ID: "u2", Username: "bob"},
	}}
	return NewRouter(tracker, hub, dir, store), tracker, hub
}

func TestJoinRoomTracksAndBroadcasts(t *testing.T) {
	router, tracker, hub := newTestRouter(&fakeStore{})
	observer := hub.Subscribe("general")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{
		Type: TypeJoinRoom, RoomID: "general", UserID: "u1",
	})

	assert.Equal(t, EffectSetUserAndSubscription, eff.Kind)
	assert.Equal(t, "u1", eff.UserID)
	assert.Equal(t, "alice", eff.Username)
	assert.Equal(t, "general", eff.RoomID)
	require.NotNil(t, eff.Subscription)
	require.NotNil(t, eff.Response)
	assert.Equal(t, TypeSuccess, eff.Response.Type)

	assert.Equal(t, 1, tracker.RoomMemberCount("general"))

	joined, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, TypeUserJoined, joined.Type)
	assert.Equal(t, "u1", joined.UserID)

	list, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, TypeOnlineUsersList, list.Type)
	require.Len(t, list.Users, 1)
	assert.Equal(t, "alice", list.Users[0].Username)
}

func TestJoinRoomUnknownUser(t *testing.T) {
	router, tracker, hub := newTestRouter(&fakeStore{})
	observer := hub.Subscribe("tech")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{
		Type: TypeJoinRoom, RoomID: "tech", UserID: "ghost",
	})

	assert.Equal(t, EffectDirectResponse, eff.Kind)
	require.NotNil(t, eff.Response)
	assert.Equal(t, TypeError, eff.Response.Type)

	// No room-index mutation, no broadcast.
	assert.Equal(t, 0, tracker.RoomMemberCount("tech"))
	hub.Publish("tech", Envelope{Type: TypeSuccess, Text: "sentinel"})
	env, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", env.Text)
}

func TestJoinRoomSwitchAnnouncesDepartureToOldRoom(t *testing.T) {
	router, tracker, hub := newTestRouter(&fakeStore{})

	router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeJoinRoom, RoomID: "general", UserID: "u1"})
	oldRoom := hub.Subscribe("general")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeJoinRoom, RoomID: "tech", UserID: "u1"})
	assert.Equal(t, EffectSetUserAndSubscription, eff.Kind)

	assert.Equal(t, 0, tracker.RoomMemberCount("general"))
	assert.Equal(t, 1, tracker.RoomMemberCount("tech"))

	left, err := recvTimeout(t, oldRoom)
	require.NoError(t, err)
	assert.Equal(t, TypeUserLeft, left.Type)
	assert.Equal(t, "u1", left.UserID)

	list, err := recvTimeout(t, oldRoom)
	require.NoError(t, err)
	assert.Equal(t, TypeOnlineUsersList, list.Type)
	assert.Empty(t, list.Users)
}

func TestLeaveRoomClearsPresenceAndBroadcasts(t *testing.T) {
	router, tracker, hub := newTestRouter(&fakeStore{})
	router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeJoinRoom, RoomID: "general", UserID: "u1"})
	observer := hub.Subscribe("general")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeLeaveRoom, RoomID: "general"})
	assert.Equal(t, EffectClearRoom, eff.Kind)
	assert.Equal(t, 0, tracker.RoomMemberCount("general"))

	left, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, TypeUserLeft, left.Type)

	list, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, TypeOnlineUsersList, list.Type)
	assert.Empty(t, list.Users)
}

func TestLeaveRoomWithoutRoom(t *testing.T) {
	router, _, _ := newTestRouter(&fakeStore{})

	eff := router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeLeaveRoom, RoomID: "general"})
	assert.Equal(t, EffectDirectResponse, eff.Kind)
	require.NotNil(t, eff.Response)
	assert.Equal(t, TypeError, eff.Response.Type)
}

func TestSendMessagePersistsThenPublishes(t *testing.T) {
	store := &fakeStore{}
	router, _, hub := newTestRouter(store)
	router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeJoinRoom, RoomID: "general", UserID: "u1"})
	observer := hub.Subscribe("general")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{
		Type: TypeSendMessage, RoomID: "general", Content: "hello", MessageType: "text",
	})
	assert.Equal(t, EffectNone, eff.Kind)
	require.Equal(t, 1, store.createdCount())

	env, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, TypeNewMessage, env.Type)
	require.NotNil(t, env.Message)
	assert.Equal(t, "hello", env.Message.Content)
	assert.Equal(t, "u1", env.Message.UserID)
	assert.Equal(t, "alice", env.Message.Username)
	assert.NotEmpty(t, env.Message.ID)
	assert.False(t, env.Message.CreatedAt.IsZero())
}

// The sender identity comes from presence, not the envelope: a client cannot
// speak as another user.
func TestSendMessageIgnoresClientSuppliedIdentity(t *testing.T) {
	store := &fakeStore{}
	router, _, hub := newTestRouter(store)
	router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeJoinRoom, RoomID: "general", UserID: "u1"})
	observer := hub.Subscribe("general")

	router.Dispatch(context.Background(), "c1", &Envelope{
		Type: TypeSendMessage, RoomID: "general", Content: "spoofed", UserID: "u2", Username: "bob",
	})

	env, err := recvTimeout(t, observer)
	require.NoError(t, err)
	require.NotNil(t, env.Message)
	assert.Equal(t, "u1", env.Message.UserID)
	assert.Equal(t, "alice", env.Message.Username)
}

func TestSendMessageWithoutJoin(t *testing.T) {
	store := &fakeStore{}
	router, _, _ := newTestRouter(store)

	eff := router.Dispatch(context.Background(), "c1", &Envelope{
		Type: TypeSendMessage, RoomID: "general", Content: "hello",
	})
	assert.Equal(t, EffectDirectResponse, eff.Kind)
	assert.Equal(t, TypeError, eff.Response.Type)
	assert.Equal(t, 0, store.createdCount())
}

func TestSendMessagePersistenceFailureSuppressesBroadcast(t *testing.T) {
	store := &fakeStore{failCreate: true}
	router, _, hub := newTestRouter(store)
	router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeJoinRoom, RoomID: "general", UserID: "u1"})
	observer := hub.Subscribe("general")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{
		Type: TypeSendMessage, RoomID: "general", Content: "doomed",
	})
	assert.Equal(t, EffectDirectResponse, eff.Kind)
	assert.Equal(t, TypeError, eff.Response.Type)

	// Only the sentinel arrives: the unpersisted message was not broadcast.
	hub.Publish("general", Envelope{Type: TypeSuccess, Text: "sentinel"})
	env, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", env.Text)
}

func TestGetMessagesRespondsDirectly(t *testing.T) {
	store := &fakeStore{history: []*models.Message{
		models.NewMessage("u1", "alice", "first", "general", models.MessageTypeText),
		models.NewMessage("u2", "bob", "second", "general", models.MessageTypeText),
	}}
	router, _, hub := newTestRouter(store)
	observer := hub.Subscribe("general")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{
		Type: TypeGetMessages, RoomID: "general", Limit: 10,
	})
	assert.Equal(t, EffectDirectResponse, eff.Kind)
	require.NotNil(t, eff.Response)
	assert.Equal(t, TypeMessagesResponse, eff.Response.Type)
	assert.Len(t, eff.Response.Messages, 2)

	// History is never broadcast.
	hub.Publish("general", Envelope{Type: TypeSuccess, Text: "sentinel"})
	env, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", env.Text)
}

func TestGetOnlineUsersBroadcastsToRoom(t *testing.T) {
	router, _, hub := newTestRouter(&fakeStore{})
	router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeJoinRoom, RoomID: "general", UserID: "u1"})
	router.Dispatch(context.Background(), "c2", &Envelope{Type: TypeJoinRoom, RoomID: "general", UserID: "u2"})
	observer := hub.Subscribe("general")

	eff := router.Dispatch(context.Background(), "c1", &Envelope{Type: TypeGetOnlineUsers, RoomID: "general"})
	assert.Equal(t, EffectNone, eff.Kind)

	env, err := recvTimeout(t, observer)
	require.NoError(t, err)
	assert.Equal(t, TypeOnlineUsersList, env.Type)
	require.Len(t, env.Users, 2)
	assert.Equal(t, "alice", env.Users[0].Username)
	assert.Equal(t, "bob", env.Users[1].Username)
}

func TestUnknownKindIsNoOp(t *testing.T) {
	router, _, _ := newTestRouter(&fakeStore{})

	eff := router.Dispatch(context.Background(), "c1", &Envelope{Type: "bogus"})
	assert.Equal(t, EffectNone, eff.Kind)
	assert.Nil(t, eff.Response)
}
