package websocket

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultChannelCapacity bounds each room's broadcast ring. Memory per room
// stays fixed regardless of publish rate or subscriber count; a subscriber
// that falls more than a full ring behind loses the oldest unread entries.
const DefaultChannelCapacity = 1000

// ErrChannelClosed is returned by Recv once a closed channel has been fully
// drained. Stale subscribers should re-subscribe through the hub, which
// transparently replaces closed channels.
var ErrChannelClosed = errors.New("broadcast channel closed")

// ErrSubscriptionCanceled is returned by Recv after Cancel, the session-side
// teardown path.
var ErrSubscriptionCanceled = errors.New("subscription canceled")

// LagError reports a gap: entries were evicted before the subscriber read
// them. The subscription has already resynchronized to the oldest retained
// entry; the caller just keeps receiving.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged, %d entries dropped", e.Missed)
}

// broadcastChannel is a fixed-capacity ring of envelopes shared by all
// subscribers of one room. Publishing overwrites the oldest entry when full
// and never blocks; each subscriber tracks its own read cursor.
type broadcastChannel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Envelope
	seq    uint64 // sequence number of the next publish
	closed bool
}

func newBroadcastChannel(capacity int) *broadcastChannel {
	c := &broadcastChannel{buf: make([]Envelope, capacity)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *broadcastChannel) publish(env Envelope) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.buf[c.seq%uint64(len(c.buf))] = env
	c.seq++
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *broadcastChannel) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *broadcastChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *broadcastChannel) subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Subscription{ch: c, cursor: c.seq}
}

// Subscription is one subscriber's cursor into a room's broadcast channel.
// Not safe for concurrent Recv calls; each session drains its subscription
// from a single goroutine.
type Subscription struct {
	ch       *broadcastChannel
	cursor   uint64
	canceled bool
}

// Recv blocks until the next entry is available and returns it. It returns
// *LagError after a gap (the cursor has been moved up to the oldest retained
// entry), ErrChannelClosed once a closed channel is drained, and
// ErrSubscriptionCanceled after Cancel.
func (s *Subscription) Recv() (Envelope, error) {
	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if s.canceled {
			return Envelope{}, ErrSubscriptionCanceled
		}
		if c.seq > s.cursor {
			var oldest uint64
			if c.seq > uint64(len(c.buf)) {
				oldest = c.seq - uint64(len(c.buf))
			}
			if s.cursor < oldest {
				missed := oldest - s.cursor
				s.cursor = oldest
				return Envelope{}, &LagError{Missed: missed}
			}
			env := c.buf[s.cursor%uint64(len(c.buf))]
			s.cursor++
			return env, nil
		}
		if c.closed {
			return Envelope{}, ErrChannelClosed
		}
		c.cond.Wait()
	}
}

// Cancel wakes any pending Recv and makes all future ones fail with
// ErrSubscriptionCanceled.
func (s *Subscription) Cancel() {
	c := s.ch
	c.mu.Lock()
	s.canceled = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// RoomHub owns one broadcast channel per room. Channels are created lazily on
// first subscribe and replaced transparently when a previous one was closed.
type RoomHub struct {
	mu       sync.Mutex
	channels map[string]*broadcastChannel
	capacity int
}

func NewRoomHub(capacity int) *RoomHub {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &RoomHub{
		channels: make(map[string]*broadcastChannel),
		capacity: capacity,
	}
}

func (h *RoomHub) getOrCreateChannel(roomID string) *broadcastChannel {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.channels[roomID]; ok && !ch.isClosed() {
		return ch
	}
	ch := newBroadcastChannel(h.capacity)
	h.channels[roomID] = ch
	return ch
}

// Subscribe returns a fresh subscription bound to the room channel's current
// generation, creating the channel if needed.
func (h *RoomHub) Subscribe(roomID string) *Subscription {
	return h.getOrCreateChannel(roomID).subscribe()
}

// Publish fans env out to every current subscriber of the room. It never
// blocks: a full ring evicts its oldest entry, and a room with no channel yet
// has no subscribers, so the envelope is dropped.
func (h *RoomHub) Publish(roomID string, env Envelope) {
	h.mu.Lock()
	ch, ok := h.channels[roomID]
	h.mu.Unlock()
	if !ok {
		return
	}
	ch.publish(env)
}

// CloseRoom closes the room's current channel. Subscribers drain what is
// buffered, observe ErrChannelClosed and re-subscribe; the next Subscribe
// allocates a replacement.
func (h *RoomHub) CloseRoom(roomID string) {
	h.mu.Lock()
	ch, ok := h.channels[roomID]
	h.mu.Unlock()
	if ok {
		ch.close()
	}
}

// Shutdown closes every channel, releasing all blocked subscribers.
func (h *RoomHub) Shutdown() {
	h.mu.Lock()
	channels := make([]*broadcastChannel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		ch.close()
	}
}
