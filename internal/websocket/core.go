package websocket

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Core wires the presence tracker, room hub and command router together and
// spawns one session per accepted connection. The tracker and hub are shared
// by every session; they are explicit services handed in here, never globals.
type Core struct {
	tracker *PresenceTracker
	hub     *RoomHub
	router  *Router
}

func NewCore(users UserDirectory, messages MessageStore, channelCapacity int) *Core {
	tracker := NewPresenceTracker()
	hub := NewRoomHub(channelCapacity)
	return &Core{
		tracker: tracker,
		hub:     hub,
		router:  NewRouter(tracker, hub, users, messages),
	}
}

// Accept takes ownership of an upgraded connection and runs a session for it.
func (c *Core) Accept(conn *websocket.Conn) {
	s := &Session{
		id:      ConnID(uuid.NewString()),
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		router:  c.router,
		tracker: c.tracker,
		hub:     c.hub,
	}
	go s.WritePump()
	go s.ReadPump()
}

// RoomMemberCount reports the live member count for health and metrics.
func (c *Core) RoomMemberCount(roomID string) int {
	return c.tracker.RoomMemberCount(roomID)
}

// SupportedCommandKinds lists the inbound command kinds the router handles.
func (c *Core) SupportedCommandKinds() []EnvelopeType {
	return c.router.SupportedCommandKinds()
}

// Shutdown closes every room channel, releasing all subscription drains.
func (c *Core) Shutdown() {
	c.hub.Shutdown()
}
