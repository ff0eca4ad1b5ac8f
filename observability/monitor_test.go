package observability

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Monitor_Counters_Accumulate(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor(slog.Default())

	monitor.IncrJoins()
	monitor.IncrJoins()
	monitor.IncrLeaves()
	monitor.IncrPublishes()
	monitor.IncrClears()
	monitor.IncrStorageErrors()
	monitor.AddDelivered(3)
	monitor.AddEvicted(2)

	stats := monitor.Collect(4, 7)
	req.Equal(uint64(2), stats.Joins)
	req.Equal(uint64(1), stats.Leaves)
	req.Equal(uint64(1), stats.Publishes)
	req.Equal(uint64(1), stats.Clears)
	req.Equal(uint64(1), stats.StorageErrors)
	req.Equal(uint64(3), stats.Delivered)
	req.Equal(uint64(2), stats.Evicted)
	req.Equal(4, stats.LiveRooms)
	req.Equal(7, stats.LiveSubscribers)
}

func Test_Monitor_Counters_Are_Safe_Under_Concurrency(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor(slog.Default())

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				monitor.IncrPublishes()
				monitor.AddDelivered(1)
			}
		}()
	}
	wg.Wait()

	stats := monitor.Collect(0, 0)
	req.Equal(uint64(3200), stats.Publishes)
	req.Equal(uint64(3200), stats.Delivered)
}

func Test_Monitor_Report_Stops_On_Cancel(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- monitor.Report(ctx, time.Millisecond, func() (int, int) { return 0, 0 })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("report loop did not stop")
	}
}
