package websocket

import (
	"context"
	"errors"
	"sort"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

// UserDirectory resolves user identities. Satisfied by the postgres user
// repository; the core only needs lookups.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// MessageStore persists and queries room history. The core treats both
// operations as fallible and externally owned: a failed Create aborts the
// send, and history queries never touch the broadcast path.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	QueryRoomMessages(ctx context.Context, roomID string, limit int, before time.Time) ([]*models.Message, error)
}

const defaultHistoryLimit = 50

type handlerFunc func(ctx context.Context, conn ConnID, env *Envelope) Effect

// Router dispatches inbound commands to a fixed table of handlers, one per
// command kind. Handlers mutate the shared presence tracker and room hub and
// describe session-local changes as an Effect.
type Router struct {
	tracker  *PresenceTracker
	hub      *RoomHub
	users    UserDirectory
	messages MessageStore
	handlers map[EnvelopeType]handlerFunc
}

func NewRouter(tracker *PresenceTracker, hub *RoomHub, users UserDirectory, messages MessageStore) *Router {
	r := &Router{
		tracker:  tracker,
		hub:      hub,
		users:    users,
		messages: messages,
	}
	r.handlers = map[EnvelopeType]handlerFunc{
		TypeJoinRoom:       r.handleJoinRoom,
		TypeLeaveRoom:      r.handleLeaveRoom,
		TypeSendMessage:    r.handleSendMessage,
		TypeGetMessages:    r.handleGetMessages,
		TypeGetOnlineUsers: r.handleGetOnlineUsers,
	}
	return r
}

// SupportedCommandKinds lists the command kinds the router handles, sorted
// for stable output.
func (r *Router) SupportedCommandKinds() []EnvelopeType {
	kinds := make([]EnvelopeType, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch routes env to its handler. Unrecognized kinds are logged and
// treated as no-ops; they never abort the connection.
func (r *Router) Dispatch(ctx context.Context, conn ConnID, env *Envelope) Effect {
	handler, ok := r.handlers[env.Type]
	if !ok {
		logger.Warn("Unhandled message type %q from connection %s", env.Type, conn)
		return noopEffect()
	}
	return handler(ctx, conn, env)
}

func (r *Router) handleJoinRoom(ctx context.Context, conn ConnID, env *Envelope) Effect {
	if env.RoomID == "" {
		return respondEffect(errorEnvelope("room_id is required"))
	}

	user, err := r.users.FindUserByID(ctx, env.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return respondEffect(errorEnvelope("user %s not found", env.UserID))
		}
		logger.Error("User lookup failed for %s: %v", env.UserID, err)
		return respondEffect(errorEnvelope("unable to verify user"))
	}

	// A tracked connection is switching rooms; a fresh one joins. Both paths
	// leave the two presence indices consistent in one step.
	if oldRoom, tracked := r.tracker.SwitchRoom(conn, env.RoomID); tracked {
		if oldRoom != "" && oldRoom != env.RoomID {
			r.broadcastDeparture(oldRoom, user.ID, user.Username)
		}
	} else {
		r.tracker.JoinAndTrack(conn, user.ID, user.Username, env.RoomID)
	}

	sub := r.hub.Subscribe(env.RoomID)

	r.hub.Publish(env.RoomID, Envelope{
		Type:     TypeUserJoined,
		UserID:   user.ID,
		Username: user.Username,
		RoomID:   env.RoomID,
	})
	r.broadcastOnlineUsers(env.RoomID)

	logger.Info("User %s joined room %s", user.Username, env.RoomID)

	return Effect{
		Kind:         EffectSetUserAndSubscription,
		UserID:       user.ID,
		Username:     user.Username,
		RoomID:       env.RoomID,
		Subscription: sub,
		Response:     successEnvelope("joined room %s", env.RoomID),
	}
}

func (r *Router) handleLeaveRoom(ctx context.Context, conn ConnID, env *Envelope) Effect {
	left, ok := r.tracker.ClearRoom(conn)
	if !ok {
		return respondEffect(errorEnvelope("not in a room"))
	}

	r.broadcastDeparture(left.CurrentRoom, left.UserID, left.Username)
	logger.Info("User %s left room %s", left.Username, left.CurrentRoom)

	// The subscription is replaced on the next join or canceled on
	// disconnect, not torn down here.
	return Effect{Kind: EffectClearRoom}
}

func (r *Router) handleSendMessage(ctx context.Context, conn ConnID, env *Envelope) Effect {
	// The sender's identity comes from the presence tracker, never from the
	// envelope. A client cannot speak as another user.
	sender, ok := r.tracker.UserByConnection(conn)
	if !ok {
		return respondEffect(errorEnvelope("join a room before sending messages"))
	}
	if env.RoomID == "" || env.Content == "" {
		return respondEffect(errorEnvelope("room_id and content are required"))
	}

	msg := models.NewMessage(sender.UserID, sender.Username, env.Content, env.RoomID,
		models.ParseMessageType(env.MessageType))

	if err := r.messages.CreateMessage(ctx, msg); err != nil {
		// An unpersisted message is never broadcast, and there is no retry.
		logger.Error("Failed to persist message from %s in room %s: %v", sender.UserID, env.RoomID, err)
		return respondEffect(errorEnvelope("message could not be saved"))
	}

	r.hub.Publish(env.RoomID, Envelope{
		Type:    TypeNewMessage,
		RoomID:  env.RoomID,
		Message: msg,
	})
	return noopEffect()
}

func (r *Router) handleGetMessages(ctx context.Context, conn ConnID, env *Envelope) Effect {
	if env.RoomID == "" {
		return respondEffect(errorEnvelope("room_id is required"))
	}

	limit := env.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var before time.Time
	if env.Before > 0 {
		before = time.Unix(env.Before, 0).UTC()
	}

	history, err := r.messages.QueryRoomMessages(ctx, env.RoomID, limit, before)
	if err != nil {
		logger.Error("History query failed for room %s: %v", env.RoomID, err)
		return respondEffect(errorEnvelope("unable to load messages"))
	}

	return respondEffect(&Envelope{
		Type:     TypeMessagesResponse,
		RoomID:   env.RoomID,
		Messages: history,
	})
}

func (r *Router) handleGetOnlineUsers(ctx context.Context, conn ConnID, env *Envelope) Effect {
	if env.RoomID == "" {
		return respondEffect(errorEnvelope("room_id is required"))
	}

	// Broadcast rather than unicast so every member converges on the same
	// view of the room.
	r.broadcastOnlineUsers(env.RoomID)
	return noopEffect()
}

func (r *Router) broadcastOnlineUsers(roomID string) {
	r.hub.Publish(roomID, Envelope{
		Type:   TypeOnlineUsersList,
		RoomID: roomID,
		Users:  r.tracker.RoomMembers(roomID),
	})
}

func (r *Router) broadcastDeparture(roomID, userID, username string) {
	r.hub.Publish(roomID, Envelope{
		Type:     TypeUserLeft,
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
	})
	r.broadcastOnlineUsers(roomID)
}
