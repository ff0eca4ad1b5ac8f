package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"whiteboard-hub/contract"
	"whiteboard-hub/domain"
	apperrors "whiteboard-hub/errors"
	"whiteboard-hub/observability"
)

// Hub orchestrates the lifecycle of rooms: join, leave, publish, clear,
// and room discovery. Rooms have no explicit creation event; a room
// exists when its log or its membership is non-empty.
//
// All operations may be invoked concurrently, for the same room and the
// same or different subscribers.
type Hub struct {
	log         *slog.Logger
	registry    contract.Registry
	broadcaster *Broadcaster
	events      contract.EventLog
	monitor     *observability.Monitor
	initTimeout time.Duration

	// Per-room order lock: append and fan-out run under it so that every
	// member observes events in log append order. Unrelated rooms never
	// serialize against each other here.
	mu        sync.Mutex
	roomLocks map[domain.RoomID]*sync.Mutex
}

func NewHub(log *slog.Logger, registry contract.Registry, broadcaster *Broadcaster,
	events contract.EventLog, monitor *observability.Monitor, initTimeout time.Duration) *Hub {
	return &Hub{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		events:      events,
		monitor:     monitor,
		initTimeout: initTimeout,
		roomLocks:   make(map[domain.RoomID]*sync.Mutex),
	}
}

// Join registers the subscriber and replays the room's persisted history
// to it as a single initialize call.
//
// Registration happens strictly before the history read: any event that
// durably appends after registration additionally reaches the joiner via
// the normal broadcast path, so the only possible artifact is a duplicate
// delivery, never a silent loss. A failed history read degrades to an
// empty canvas rather than failing the join; a failed initialize undoes
// the registration and is surfaced to the caller, without retry.
func (h *Hub) Join(ctx context.Context, room domain.RoomID, sub contract.Subscriber) error {
	if room == "" {
		return apperrors.ErrEmptyRoom
	}
	if !h.registry.Register(room, sub) {
		h.log.Debug("subscriber already registered",
			"room", room, "subscriber_id", sub.ID())
		return nil
	}
	h.monitor.IncrJoins()

	history, err := h.events.ReadAll(room)
	if err != nil {
		h.log.Warn("history read failed, joining with empty canvas",
			"room", room, "subscriber_id", sub.ID(), "error", err)
		history = nil
	}

	ictx, cancel := context.WithTimeout(ctx, h.initTimeout)
	defer cancel()
	if err := sub.Initialize(ictx, history); err != nil {
		h.registry.Unregister(room, sub.ID())
		return fmt.Errorf("initialize subscriber %s in room %q: %w", sub.ID(), room, err)
	}
	h.log.Info("subscriber joined",
		"room", room, "subscriber_id", sub.ID(), "history_len", len(history))
	return nil
}

// Leave removes the subscriber from the room's live membership. The
// persisted log is untouched. An unknown target is not an error.
func (h *Hub) Leave(room domain.RoomID, subscriberID string) {
	if !h.registry.Unregister(room, subscriberID) {
		h.log.Debug("leave for unknown subscriber",
			"room", room, "subscriber_id", subscriberID)
		return
	}
	h.monitor.IncrLeaves()
	h.log.Info("subscriber left", "room", room, "subscriber_id", subscriberID)
}

// Publish durably appends the event, then broadcasts it to every member
// of the room except the sender. Durability before visibility: a storage
// failure aborts the publish and is surfaced to the caller; delivery
// failures are contained inside the broadcaster and never abort the
// publish as a whole.
func (h *Hub) Publish(ctx context.Context, room domain.RoomID,
	event domain.DrawingEvent, senderID string) error {
	if room == "" {
		return apperrors.ErrEmptyRoom
	}
	lock := h.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	if err := h.events.Append(room, event); err != nil {
		h.monitor.IncrStorageErrors()
		return fmt.Errorf("publish to room %q: %w", room, err)
	}
	h.monitor.IncrPublishes()
	h.broadcaster.Broadcast(ctx, room, event, senderID)
	return nil
}

// Clear wipes the room's persisted log, then tells every current member
// to reset. The durable truth is wiped before any subscriber is told, so
// a subscriber joining mid-clear never observes stale pre-clear events
// afterwards.
func (h *Hub) Clear(ctx context.Context, room domain.RoomID) error {
	if room == "" {
		return apperrors.ErrEmptyRoom
	}
	lock := h.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	if err := h.events.DeleteAll(room); err != nil {
		h.monitor.IncrStorageErrors()
		return fmt.Errorf("clear room %q: %w", room, err)
	}
	h.monitor.IncrClears()
	h.broadcaster.BroadcastClear(ctx, room)
	return nil
}

// Rooms lists every room with at least one persisted event, sorted
// lexicographically. Discovery is best-effort: a storage failure yields
// an empty list, never an error.
func (h *Hub) Rooms() []domain.RoomID {
	rooms, err := h.events.ListRooms()
	if err != nil {
		h.log.Warn("room listing unavailable", "error", err)
		return []domain.RoomID{}
	}
	if rooms == nil {
		rooms = []domain.RoomID{}
	}
	return rooms
}

func (h *Hub) roomLock(room domain.RoomID) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.roomLocks[room]
	if !ok {
		lock = &sync.Mutex{}
		h.roomLocks[room] = lock
	}
	return lock
}
