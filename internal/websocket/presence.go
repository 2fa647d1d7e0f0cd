package websocket

import (
	"sort"
	"sync"
)

// ConnID is an opaque token identifying one live connection. It is minted
// when a session starts and has no meaning outside the presence tracker.
type ConnID string

// UserPresence associates a connected user with their current room.
type UserPresence struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	CurrentRoom string `json:"current_room,omitempty"`
}

// PresenceTracker is the single source of truth for who is connected where.
// It keeps two views of the same fact: connection -> presence and
// room -> members. Every mutation touches both views inside one critical
// section, so no reader can observe them disagreeing.
type PresenceTracker struct {
	mu    sync.RWMutex
	conns map[ConnID]*UserPresence
	rooms map[string]map[string]*UserPresence // room id -> user id -> presence
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		conns: make(map[ConnID]*UserPresence),
		rooms: make(map[string]map[string]*UserPresence),
	}
}

// JoinAndTrack creates or replaces the presence for conn and inserts it into
// the room index. Joining the same room twice is idempotent: any stale entry
// with the same user id is replaced.
func (t *PresenceTracker) JoinAndTrack(conn ConnID, userID, username, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &UserPresence{UserID: userID, Username: username, CurrentRoom: roomID}
	t.conns[conn] = p

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]*UserPresence)
		t.rooms[roomID] = members
	}
	members[userID] = p
}

// SwitchRoom atomically moves the user for conn from their current room into
// newRoom, returning both room ids. Returns ok=false for an untracked
// connection, leaving all state untouched.
func (t *PresenceTracker) SwitchRoom(conn ConnID, newRoom string) (oldRoom string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, tracked := t.conns[conn]
	if !tracked {
		return "", false
	}

	oldRoom = p.CurrentRoom
	if oldRoom != "" {
		if members, exists := t.rooms[oldRoom]; exists {
			delete(members, p.UserID)
		}
	}

	p.CurrentRoom = newRoom
	members, exists := t.rooms[newRoom]
	if !exists {
		members = make(map[string]*UserPresence)
		t.rooms[newRoom] = members
	}
	members[p.UserID] = p

	return oldRoom, true
}

// ClearRoom removes the user for conn from their current room while keeping
// the connection tracked. The returned presence carries the room that was
// left so the caller can emit departure broadcasts.
func (t *PresenceTracker) ClearRoom(conn ConnID) (UserPresence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, tracked := t.conns[conn]
	if !tracked || p.CurrentRoom == "" {
		return UserPresence{}, false
	}

	left := *p
	if members, exists := t.rooms[p.CurrentRoom]; exists {
		delete(members, p.UserID)
	}
	p.CurrentRoom = ""

	return left, true
}

// Disconnect removes all trace of conn. The returned presence carries the
// last known room for cleanup broadcasts. A missing entry means the
// connection was already cleaned up; that is not an error.
func (t *PresenceTracker) Disconnect(conn ConnID) (UserPresence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, tracked := t.conns[conn]
	if !tracked {
		return UserPresence{}, false
	}
	delete(t.conns, conn)

	if p.CurrentRoom != "" {
		if members, exists := t.rooms[p.CurrentRoom]; exists {
			delete(members, p.UserID)
		}
	}

	return *p, true
}

// UserByConnection returns a copy of the presence for conn.
func (t *PresenceTracker) UserByConnection(conn ConnID) (UserPresence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.conns[conn]
	if !ok {
		return UserPresence{}, false
	}
	return *p, true
}

// RoomMembers returns a snapshot of the room's member list, ordered by
// username for stable presence payloads.
func (t *PresenceTracker) RoomMembers(roomID string) []UserPresence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members, ok := t.rooms[roomID]
	if !ok {
		return nil
	}

	snapshot := make([]UserPresence, 0, len(members))
	for _, p := range members {
		snapshot = append(snapshot, *p)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Username < snapshot[j].Username
	})
	return snapshot
}

// RoomMemberCount reports how many users are currently in the room.
func (t *PresenceTracker) RoomMemberCount(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[roomID])
}
