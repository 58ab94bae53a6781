/*
Package presence contains the core logic for tracking connected principals, room
membership, and relaying named events between live WebSocket connections.

This file defines the RoomTable, a single-slot "current room" tracker. It answers
"what room is this user nominally in" and deliberately stays separate from the
transport-level group membership held by the Hub: an admin stays in the admins
group for the whole connection while this table only records their latest explicit
join or leave.
*/
package presence

import "sync"

// RoomTable maps each user ID to at most one tracked room ID.
// Joining a new room overwrites the previous slot; it does not accumulate.
type RoomTable struct {
	mu      sync.RWMutex
	current map[string]string
}

// NewRoomTable constructs an empty RoomTable.
func NewRoomTable() *RoomTable {
	return &RoomTable{
		current: make(map[string]string),
	}
}

// Join records roomID as the user's current room, overwriting any prior value.
func (t *RoomTable) Join(userID, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current[userID] = roomID
}

// Leave clears the tracked entry only if it currently equals roomID.
// It reports whether the entry was cleared.
func (t *RoomTable) Leave(userID, roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current[userID] != roomID {
		return false
	}

	delete(t.current, userID)
	return true
}

// Room returns the tracked room for userID, if any.
func (t *RoomTable) Room(userID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	roomID, ok := t.current[userID]
	return roomID, ok
}

// Forget drops the tracked entry for userID regardless of its value.
// Used on disconnect.
func (t *RoomTable) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.current, userID)
}
