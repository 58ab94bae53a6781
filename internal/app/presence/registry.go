/*
Package presence contains the core logic for tracking connected principals, room
membership, and relaying named events between live WebSocket connections.

This file defines the Registry, the in-memory table mapping user identifiers to
their live connection and identity data. Absence from the registry means "offline"
for the purposes of all lookups; it is never an error.
*/
package presence

import (
	"sync"
)

// registryEntry binds a Principal to its current connection handle.
type registryEntry struct {
	principal Principal
	client    *Client
}

// Registry tracks currently connected principals keyed by their stable user ID.
// At most one entry exists per user ID: a second connect with the same ID silently
// replaces the entry (last-writer-wins) without closing the prior connection.
//
// All state is process memory; nothing survives a restart. All mutation is
// serialized under a single mutex so that connect/disconnect races cannot corrupt
// the map, and HTTP readers can snapshot concurrently with the hub loop.
type Registry struct {
	mu sync.RWMutex

	// entries maps userID to the live registry entry.
	entries map[string]*registryEntry

	// order preserves insertion order for stable display in snapshots.
	// A replace moves the ID to the end; consumers must not rely on ordering
	// for correctness.
	order []string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Register inserts or replaces the entry for the principal's user ID.
// Replacement is silent: the previous connection keeps running but is no longer
// reachable through Lookup.
func (r *Registry) Register(p Principal, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[p.UserID]; ok {
		r.removeFromOrder(p.UserID)
	}

	r.entries[p.UserID] = &registryEntry{principal: p, client: c}
	r.order = append(r.order, p.UserID)
}

// Unregister removes the entry for userID if present. Calling it for an absent
// ID is a no-op, not an error.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return
	}

	delete(r.entries, userID)
	r.removeFromOrder(userID)
}

// Release removes the entry for userID only if it is still owned by c.
// It reports whether the entry was removed. A disconnect of a connection that
// was already replaced by a newer one must not evict the replacement.
func (r *Registry) Release(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.client != c {
		return false
	}

	delete(r.entries, userID)
	r.removeFromOrder(userID)
	return true
}

// Lookup returns the live connection and identity for userID.
// The third return value is false when the principal is not connected.
func (r *Registry) Lookup(userID string) (*Client, Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	if !ok {
		return nil, Principal{}, false
	}
	return entry.client, entry.principal, true
}

// ListAll returns a snapshot of all current entries in insertion order.
func (r *Registry) ListAll() []OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]OnlineUser, 0, len(r.order))
	for _, userID := range r.order {
		entry, ok := r.entries[userID]
		if !ok {
			continue
		}

		snapshot = append(snapshot, OnlineUser{
			UserID:      entry.principal.UserID,
			Username:    entry.principal.Username,
			DisplayName: entry.principal.DisplayName,
			Role:        entry.principal.Role,
			ConnID:      entry.client.ConnID(),
			ConnectedAt: entry.client.ConnectedAt(),
		})
	}

	return snapshot
}

// Size returns the number of currently registered principals.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// CountByRole returns the number of registered admins and regular users.
func (r *Registry) CountByRole() (admins int, students int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.principal.Role == RoleAdmin {
			admins++
		} else {
			students++
		}
	}

	return admins, students
}

// removeFromOrder deletes userID from the insertion-order slice.
// Caller must hold the write lock.
func (r *Registry) removeFromOrder(userID string) {
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
