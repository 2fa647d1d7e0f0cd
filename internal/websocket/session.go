package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	maxFrameSize  = 64 * 1024
	sendQueueSize = 256
)

// Session is the per-connection loop. It decodes inbound frames, dispatches
// them through the router, applies the resulting effects to its local state,
// and concurrently drains its active room subscription to the socket.
//
// State machine: connected (no user) -> in room -> disconnected. A join while
// in a room switches rooms; nothing else transitions.
type Session struct {
	id      ConnID
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	router  *Router
	tracker *PresenceTracker
	hub     *RoomHub

	mu       sync.Mutex
	userID   string
	username string
	roomID   string
	sub      *Subscription
}

// ReadPump runs the inbound half of the session until the socket fails or the
// client closes. Teardown runs exactly once on exit, whichever path broke the
// loop.
func (s *Session) ReadPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error on connection %s: %v", s.id, err)
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			// A decode failure gets an error envelope back; it never
			// terminates the connection.
			s.enqueue(errorEnvelope("invalid message: %v", err))
			continue
		}

		s.applyEffect(s.router.Dispatch(ctx, s.id, env))
	}
}

// WritePump serializes all socket writes: queued envelopes, pings, and the
// final close frame.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error("Write error on connection %s: %v", s.id, err)
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) applyEffect(eff Effect) {
	switch eff.Kind {
	case EffectNone, EffectDirectResponse:

	case EffectSetUser:
		s.mu.Lock()
		s.userID, s.username = eff.UserID, eff.Username
		s.mu.Unlock()

	case EffectSetRoom:
		s.mu.Lock()
		s.roomID = eff.RoomID
		s.mu.Unlock()

	case EffectClearRoom:
		// The subscription stays; it is replaced on the next join or
		// canceled at teardown.
		s.mu.Lock()
		s.roomID = ""
		s.mu.Unlock()

	case EffectSetSubscription:
		s.mu.Lock()
		s.roomID = eff.RoomID
		s.mu.Unlock()
		s.attachSubscription(eff.Subscription, eff.RoomID)

	case EffectSetUserAndSubscription:
		s.mu.Lock()
		s.userID, s.username, s.roomID = eff.UserID, eff.Username, eff.RoomID
		s.mu.Unlock()
		s.attachSubscription(eff.Subscription, eff.RoomID)
	}

	if eff.Response != nil {
		s.enqueue(eff.Response)
	}
}

// attachSubscription replaces the active subscription and starts a drain
// goroutine for it. The previous drain wakes on Cancel and exits.
func (s *Session) attachSubscription(sub *Subscription, roomID string) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	if s.sub != nil {
		s.sub.Cancel()
	}
	s.sub = sub
	userID := s.userID
	s.mu.Unlock()

	go s.drainSubscription(sub, roomID, userID)
}

// swapSubscription installs fresh in place of old after a channel
// replacement. Reports false if old is no longer the active subscription, in
// which case fresh is canceled and the caller should stop draining.
func (s *Session) swapSubscription(old, fresh *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != old {
		fresh.Cancel()
		return false
	}
	s.sub = fresh
	return true
}

// drainSubscription forwards room broadcasts to the socket. A lag is a
// resynchronization, not an error; a closed channel means the hub replaced it
// and the drain re-subscribes.
func (s *Session) drainSubscription(sub *Subscription, roomID, userID string) {
	for {
		env, err := sub.Recv()
		if err != nil {
			var lag *LagError
			switch {
			case errors.As(err, &lag):
				logger.Warn("Connection %s lagged in room %s, %d entries dropped", s.id, roomID, lag.Missed)
				continue
			case errors.Is(err, ErrChannelClosed):
				fresh := s.hub.Subscribe(roomID)
				if !s.swapSubscription(sub, fresh) {
					return
				}
				sub = fresh
				continue
			default:
				return
			}
		}

		// Suppress the echo of the user's own messages; every other
		// broadcast kind is always delivered.
		if env.Type == TypeNewMessage && env.Message != nil && env.Message.UserID == userID {
			continue
		}

		data, err := env.Encode()
		if err != nil {
			logger.Error("Failed to encode broadcast for connection %s: %v", s.id, err)
			continue
		}
		s.enqueueRaw(data)
	}
}

func (s *Session) enqueue(env *Envelope) {
	data, err := env.Encode()
	if err != nil {
		logger.Error("Failed to encode envelope for connection %s: %v", s.id, err)
		return
	}
	s.enqueueRaw(data)
}

func (s *Session) enqueueRaw(data []byte) {
	select {
	case s.send <- data:
	default:
		logger.Warn("Dropping message for slow connection %s", s.id)
	}
}

// teardown is the single cleanup path for every way a session can end. It
// removes the connection's presence, announces the departure to the last
// room, and releases the drain and write goroutines.
func (s *Session) teardown() {
	if p, ok := s.tracker.Disconnect(s.id); ok && p.CurrentRoom != "" {
		s.router.broadcastDeparture(p.CurrentRoom, p.UserID, p.Username)
		logger.Info("User %s disconnected from room %s", p.Username, p.CurrentRoom)
	}

	s.mu.Lock()
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.mu.Unlock()

	close(s.done)
	logger.Debug("Session %s closed", s.id)
}
