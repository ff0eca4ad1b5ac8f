package runtime

import (
	"context"
	"log/slog"
	"time"

	"whiteboard-hub/contract"
	"whiteboard-hub/domain"
	"whiteboard-hub/observability"
)

// DeliveryReport summarizes one fan-out: how many members were reached
// and which ones were evicted after a failed delivery. Informational
// only; an empty room is a no-op, never an error.
type DeliveryReport struct {
	Delivered int
	Evicted   []string
}

// Broadcaster delivers one event (or a reset signal) to every current
// member of a room except an excluded originator.
//
// Delivery is best-effort with per-subscriber isolation: a push that
// fails or exceeds the delivery timeout evicts that one subscriber from
// that one room, permanently and without retry, and never aborts delivery
// to the remaining members. Eviction on first failure is deliberate
// policy, traded for simplicity and availability.
type Broadcaster struct {
	log      *slog.Logger
	registry contract.Registry
	monitor  *observability.Monitor
	timeout  time.Duration
}

func NewBroadcaster(log *slog.Logger, registry contract.Registry,
	monitor *observability.Monitor, timeout time.Duration) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, monitor: monitor, timeout: timeout}
}

// Broadcast pushes an already-persisted event to the room's members,
// skipping excludingID (empty when the sender is not a room member).
func (b *Broadcaster) Broadcast(ctx context.Context, room domain.RoomID,
	event domain.DrawingEvent, excludingID string) DeliveryReport {
	return b.fanout(ctx, room, excludingID, func(pctx context.Context, sub contract.Subscriber) error {
		return sub.Push(pctx, event)
	})
}

// BroadcastClear delivers a reset-to-empty signal to every member of the
// room; same failure isolation and eviction policy as Broadcast.
func (b *Broadcaster) BroadcastClear(ctx context.Context, room domain.RoomID) DeliveryReport {
	return b.fanout(ctx, room, "", func(pctx context.Context, sub contract.Subscriber) error {
		return sub.Reset(pctx)
	})
}

func (b *Broadcaster) fanout(ctx context.Context, room domain.RoomID, excludingID string,
	deliver func(context.Context, contract.Subscriber) error) DeliveryReport {
	var report DeliveryReport
	for _, sub := range b.registry.MembersOf(room) {
		if excludingID != "" && sub.ID() == excludingID {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, b.timeout)
		err := deliver(pctx, sub)
		cancel()
		if err != nil {
			b.registry.Unregister(room, sub.ID())
			report.Evicted = append(report.Evicted, sub.ID())
			b.log.Warn("subscriber evicted after failed delivery",
				"room", room,
				"subscriber_id", sub.ID(),
				"error", err)
			continue
		}
		report.Delivered++
	}
	b.monitor.AddDelivered(report.Delivered)
	b.monitor.AddEvicted(len(report.Evicted))
	return report
}
