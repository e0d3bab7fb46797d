package observability

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"time"
)

// RuntimeMetrics captures Go process health at a point in time.
type RuntimeMetrics struct {
	GoroutinesCount int
	MemoryAllocMB   float64
	MemorySysMB     float64
	GCCount         uint32
}

// CollectRuntimeMetrics reads current Go runtime stats.
func CollectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(mem.Alloc) / 1024 / 1024,
		MemorySysMB:     float64(mem.Sys) / 1024 / 1024,
		GCCount:         mem.NumGC,
	}
}

// Heartbeat periodically records runtime metrics through a MetricsManager,
// labelled with the host and pid.
type Heartbeat struct {
	mm       *MetricsManager
	labels   map[string]string
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeat creates a sampler. Recommended interval: 15s.
func NewHeartbeat(mm *MetricsManager, instance string, interval time.Duration) *Heartbeat {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Heartbeat{
		mm: mm,
		labels: map[string]string{
			"instance": instance,
			"host":     hostname,
			"pid":      strconv.Itoa(os.Getpid()),
		},
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start samples once immediately, then at every interval until Stop or
// context cancellation.
func (hb *Heartbeat) Start(ctx context.Context) {
	go hb.loop(ctx)
}

// Stop signals the sampler to exit and waits for it.
func (hb *Heartbeat) Stop() {
	close(hb.stop)
	<-hb.done
}

// Sample records one set of runtime metrics.
func (hb *Heartbeat) Sample() {
	m := CollectRuntimeMetrics()
	now := time.Now()
	hb.mm.Record(&Metric{Name: MetricGoroutinesCount, Timestamp: now, Value: float64(m.GoroutinesCount), Labels: hb.labels, Unit: "count"})
	hb.mm.Record(&Metric{Name: MetricMemoryAllocMB, Timestamp: now, Value: m.MemoryAllocMB, Labels: hb.labels, Unit: "megabytes"})
	hb.mm.Record(&Metric{Name: MetricGCCount, Timestamp: now, Value: float64(m.GCCount), Labels: hb.labels, Unit: "count"})
}

func (hb *Heartbeat) loop(ctx context.Context) {
	defer close(hb.done)
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	hb.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.stop:
			return
		case <-ticker.C:
			hb.Sample()
		}
	}
}
