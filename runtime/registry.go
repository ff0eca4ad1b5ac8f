// Package runtime contains the broadcast engine: live membership,
// fan-out, and room lifecycle orchestration. It holds no domain rules and
// no transport details.
package runtime

import (
	"sync"

	"whiteboard-hub/contract"
	"whiteboard-hub/domain"
)

type memberSet map[string]contract.Subscriber

// Registry owns the live relation room -> subscriber set. Membership is
// in-memory only and does not survive restarts; the persisted log is a
// separate concern. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	roomMembers map[domain.RoomID]memberSet
}

func NewRegistry() *Registry {
	return &Registry{
		roomMembers: make(map[domain.RoomID]memberSet),
	}
}

// Register adds the subscriber to the room's membership if absent.
// Returns whether it was newly added; a duplicate registration is a no-op.
// If the room does not yet exist in the registry, it is initialized on
// the fly.
func (r *Registry) Register(room domain.RoomID, sub contract.Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[room]
	if !ok {
		members = make(memberSet)
		r.roomMembers[room] = members
	}
	if _, exists := members[sub.ID()]; exists {
		return false
	}
	members[sub.ID()] = sub
	return true
}

// Unregister removes the subscriber from the room and reports whether a
// removal occurred. When no one is left in the room, the room entry is
// removed entirely; pure memory reclamation, the persisted log is
// untouched.
func (r *Registry) Unregister(room domain.RoomID, subscriberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return false
	}
	if _, exists := members[subscriberID]; !exists {
		return false
	}
	delete(members, subscriberID)
	if len(members) == 0 {
		delete(r.roomMembers, room)
	}
	return true
}

// MembersOf returns a snapshot of the room's current members, safe to
// iterate while other goroutines mutate membership. Callers perform their
// blocking pushes on the snapshot, never under the registry lock.
func (r *Registry) MembersOf(room domain.RoomID) []contract.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	snapshot := make([]contract.Subscriber, 0, len(members))
	for _, sub := range members {
		snapshot = append(snapshot, sub)
	}
	return snapshot
}

// Snapshot reports the member count per live room.
func (r *Registry) Snapshot() map[domain.RoomID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.RoomID]int, len(r.roomMembers))
	for room, members := range r.roomMembers {
		counts[room] = len(members)
	}
	return counts
}
