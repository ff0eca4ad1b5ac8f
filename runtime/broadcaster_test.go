package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"whiteboard-hub/domain"
	"whiteboard-hub/mocks"
	"whiteboard-hub/observability"
)

func newTestBroadcaster(registry *Registry, timeout time.Duration) *Broadcaster {
	log := slog.Default()
	return NewBroadcaster(log, registry, observability.NewMonitor(log), timeout)
}

func mockSubscriber(ctrl *gomock.Controller, id string) *mocks.MockSubscriber {
	sub := mocks.NewMockSubscriber(ctrl)
	sub.EXPECT().ID().Return(id).AnyTimes()
	return sub
}

func TestBroadcaster_Delivers_To_All_Except_Sender(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	broadcaster := newTestBroadcaster(registry, time.Second)
	room := domain.RoomID("alpha")
	event := domain.DrawingEvent{X: 10, Y: 20, Size: 4}

	sender := mockSubscriber(ctrl, "sender")
	member1 := mockSubscriber(ctrl, "member-1")
	member2 := mockSubscriber(ctrl, "member-2")
	registry.Register(room, sender)
	registry.Register(room, member1)
	registry.Register(room, member2)

	// The sender gets no expectation: any push back to it fails the test.
	member1.EXPECT().Push(gomock.Any(), event).Return(nil).Times(1)
	member2.EXPECT().Push(gomock.Any(), event).Return(nil).Times(1)

	report := broadcaster.Broadcast(context.Background(), room, event, "sender")

	req.Equal(2, report.Delivered)
	req.Empty(report.Evicted)
}

func TestBroadcaster_Evicts_Failing_Subscriber(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	broadcaster := newTestBroadcaster(registry, time.Second)
	room := domain.RoomID("alpha")
	event := domain.DrawingEvent{X: 1, Y: 2, Size: 1}

	healthy := mockSubscriber(ctrl, "healthy")
	broken := mockSubscriber(ctrl, "broken")
	registry.Register(room, healthy)
	registry.Register(room, broken)

	healthy.EXPECT().Push(gomock.Any(), event).Return(nil).Times(1)
	broken.EXPECT().Push(gomock.Any(), event).Return(fmt.Errorf("connection reset")).Times(1)

	report := broadcaster.Broadcast(context.Background(), room, event, "")

	// One failing subscriber never aborts delivery to the rest
	req.Equal(1, report.Delivered)
	req.Equal([]string{"broken"}, report.Evicted)

	// Eviction is permanent: the broken endpoint is no longer a member
	members := registry.MembersOf(room)
	req.Len(members, 1)
	req.Equal("healthy", members[0].ID())
}

func TestBroadcaster_Timeout_Counts_As_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	broadcaster := newTestBroadcaster(registry, 50*time.Millisecond)
	room := domain.RoomID("alpha")
	event := domain.DrawingEvent{X: 1, Y: 2, Size: 1}

	stuck := mockSubscriber(ctrl, "stuck")
	registry.Register(room, stuck)

	stuck.EXPECT().Push(gomock.Any(), event).DoAndReturn(
		func(ctx context.Context, _ domain.DrawingEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	report := broadcaster.Broadcast(context.Background(), room, event, "")

	req.Zero(report.Delivered)
	req.Equal([]string{"stuck"}, report.Evicted)
	req.Nil(registry.MembersOf(room))
}

func TestBroadcaster_Clear_Reaches_Every_Member(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	broadcaster := newTestBroadcaster(registry, time.Second)
	room := domain.RoomID("alpha")

	member1 := mockSubscriber(ctrl, "member-1")
	member2 := mockSubscriber(ctrl, "member-2")
	registry.Register(room, member1)
	registry.Register(room, member2)

	// No exclusion on clear: the signal is system-generated
	member1.EXPECT().Reset(gomock.Any()).Return(nil).Times(1)
	member2.EXPECT().Reset(gomock.Any()).Return(nil).Times(1)

	report := broadcaster.BroadcastClear(context.Background(), room)

	req.Equal(2, report.Delivered)
	req.Empty(report.Evicted)
}

func TestBroadcaster_Empty_Room_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	broadcaster := newTestBroadcaster(registry, time.Second)

	report := broadcaster.Broadcast(context.Background(), "ghost", domain.DrawingEvent{}, "")

	req.Zero(report.Delivered)
	req.Empty(report.Evicted)
}
