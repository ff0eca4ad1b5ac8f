package ws

import (
	"context"

	"github.com/google/uuid"

	"whiteboard-hub/domain"
)

// Subscriber adapts one WebSocket connection to the hub's notification
// contract. Deliveries are queued on a buffered channel and drained by
// the connection's writer goroutine; a queue that stays full until the
// caller's deadline expires counts as a failed delivery, which the
// broadcaster turns into an eviction.
type Subscriber struct {
	id  string
	out chan serverFrame
}

// NewSubscriber assigns the stable identity used for deduplication and
// sender exclusion for the lifetime of the connection.
func NewSubscriber(bufferSize int) *Subscriber {
	return &Subscriber{
		id:  uuid.NewString(),
		out: make(chan serverFrame, bufferSize),
	}
}

func (s *Subscriber) ID() string { return s.id }

func (s *Subscriber) Initialize(ctx context.Context, history []domain.DrawingEvent) error {
	return s.enqueue(ctx, initFrame(history))
}

func (s *Subscriber) Push(ctx context.Context, event domain.DrawingEvent) error {
	return s.enqueue(ctx, eventFrame(event))
}

func (s *Subscriber) Reset(ctx context.Context) error {
	return s.enqueue(ctx, resetFrame())
}

// Outbound exposes the delivery queue to the connection's writer.
func (s *Subscriber) Outbound() <-chan serverFrame { return s.out }

func (s *Subscriber) enqueue(ctx context.Context, frame serverFrame) error {
	select {
	case s.out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
