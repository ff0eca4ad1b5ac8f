// Package observability aggregates hub telemetry: operation counters and
// process self-stats, exposed on the debug endpoint and logged
// periodically.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is one aggregated snapshot for the /debug/stats endpoint.
type Stats struct {
	Joins           uint64  `json:"joins"`
	Leaves          uint64  `json:"leaves"`
	Publishes       uint64  `json:"publishes"`
	Clears          uint64  `json:"clears"`
	Delivered       uint64  `json:"delivered"`
	Evicted         uint64  `json:"evicted"`
	StorageErrors   uint64  `json:"storage_errors"`
	LiveRooms       int     `json:"live_rooms"`
	LiveSubscribers int     `json:"live_subscribers"`
	AllocMemMb      uint64  `json:"alloc_mem_mb"`
	NumGC           uint32  `json:"num_gc"`
	RssMb           uint64  `json:"rss_mb"`
	CPUPercent      float64 `json:"cpu_percent"`
}

// Monitor collects counters from the hub and broadcaster. Counters are
// atomic; Monitor is safe for concurrent use.
type Monitor struct {
	log  *slog.Logger
	proc *process.Process

	joins         uint64
	leaves        uint64
	publishes     uint64
	clears        uint64
	delivered     uint64
	evicted       uint64
	storageErrors uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process self-stats unavailable", "error", err)
	}
	return &Monitor{log: log, proc: p}
}

func (m *Monitor) IncrJoins()         { atomic.AddUint64(&m.joins, 1) }
func (m *Monitor) IncrLeaves()        { atomic.AddUint64(&m.leaves, 1) }
func (m *Monitor) IncrPublishes()     { atomic.AddUint64(&m.publishes, 1) }
func (m *Monitor) IncrClears()        { atomic.AddUint64(&m.clears, 1) }
func (m *Monitor) IncrStorageErrors() { atomic.AddUint64(&m.storageErrors, 1) }

func (m *Monitor) AddDelivered(n int) { atomic.AddUint64(&m.delivered, uint64(n)) }
func (m *Monitor) AddEvicted(n int)   { atomic.AddUint64(&m.evicted, uint64(n)) }

// Collect builds a snapshot. Live membership figures come from the
// caller, which owns the registry.
func (m *Monitor) Collect(liveRooms, liveSubscribers int) Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := Stats{
		Joins:           atomic.LoadUint64(&m.joins),
		Leaves:          atomic.LoadUint64(&m.leaves),
		Publishes:       atomic.LoadUint64(&m.publishes),
		Clears:          atomic.LoadUint64(&m.clears),
		Delivered:       atomic.LoadUint64(&m.delivered),
		Evicted:         atomic.LoadUint64(&m.evicted),
		StorageErrors:   atomic.LoadUint64(&m.storageErrors),
		LiveRooms:       liveRooms,
		LiveSubscribers: liveSubscribers,
		AllocMemMb:      ms.Alloc / 1024 / 1024,
		NumGC:           ms.NumGC,
	}
	if m.proc != nil {
		if mem, err := m.proc.MemoryInfo(); err == nil {
			stats.RssMb = mem.RSS / 1024 / 1024
		}
		if cpu, err := m.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
	}
	return stats
}

// Report logs a stats snapshot every interval until ctx is done.
func (m *Monitor) Report(ctx context.Context, interval time.Duration, membership func() (int, int)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rooms, subscribers := membership()
			stats := m.Collect(rooms, subscribers)
			m.log.Info("hub stats",
				"live_rooms", stats.LiveRooms,
				"live_subscribers", stats.LiveSubscribers,
				"publishes", stats.Publishes,
				"delivered", stats.Delivered,
				"evicted", stats.Evicted,
				"storage_errors", stats.StorageErrors,
				"rss_mb", stats.RssMb,
				"cpu_percent", stats.CPUPercent)
		}
	}
}
