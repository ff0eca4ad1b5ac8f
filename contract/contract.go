//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"whiteboard-hub/domain"
)

// Subscriber is a remote endpoint able to receive room notifications.
// Identity is the stable ID assigned at join time: two handles denote the
// same subscriber iff their IDs are equal. The concrete transport behind
// the endpoint is an implementation detail of the collaborator.
type Subscriber interface {
	ID() string
	// Initialize replays the room's accumulated history, once, right
	// after a successful join.
	Initialize(ctx context.Context, history []domain.DrawingEvent) error
	// Push delivers one event published by another room member.
	Push(ctx context.Context, event domain.DrawingEvent) error
	// Reset tells the subscriber to drop its local state after a clear.
	Reset(ctx context.Context) error
}

// EventLog is the durable append-only store of drawing events keyed by
// room. It is the single source of truth for a room's accumulated state
// and survives hub restarts; membership does not.
type EventLog interface {
	Append(room domain.RoomID, event domain.DrawingEvent) error
	// ReadAll returns the room's events in append order; an unknown room
	// yields an empty sequence, not an error.
	ReadAll(room domain.RoomID) ([]domain.DrawingEvent, error)
	DeleteAll(room domain.RoomID) error
	// ListRooms returns the distinct rooms holding at least one persisted
	// event, sorted lexicographically.
	ListRooms() ([]domain.RoomID, error)
}

// Registry tracks live room membership. All methods are safe under
// concurrent registration, unregistration, and broadcast.
type Registry interface {
	// Register adds the subscriber to the room if absent and reports
	// whether it was newly added.
	Register(room domain.RoomID, sub Subscriber) bool
	// Unregister removes the subscriber and reclaims the room entry when
	// it empties; reports whether a removal occurred.
	Unregister(room domain.RoomID, subscriberID string) bool
	// MembersOf returns a snapshot safe to iterate while membership
	// mutates concurrently.
	MembersOf(room domain.RoomID) []Subscriber
	// Snapshot reports the member count per live room.
	Snapshot() map[domain.RoomID]int
}
