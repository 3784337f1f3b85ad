package metrics

import (
	"runtime"
	"time"
)

// RuntimeCollector samples Go runtime statistics into gauges.
type RuntimeCollector struct {
	goroutines *Gauge
	heapAlloc  *Gauge
	heapInuse  *Gauge
	gcCycles   *Gauge
	gcPause    *Gauge
	goInfo     *Gauge

	uptime    *Gauge
	startTime time.Time
}

// NewRuntimeCollector registers the runtime gauges on r. uptime may be nil.
func NewRuntimeCollector(r *Registry, uptime *Gauge) *RuntimeCollector {
	rc := &RuntimeCollector{
		startTime:  time.Now(),
		uptime:     uptime,
		goroutines: r.NewGauge("go_goroutines", "Number of goroutines that currently exist"),
		heapAlloc:  r.NewGauge("go_memstats_heap_alloc_bytes", "Number of heap bytes allocated and still in use"),
		heapInuse:  r.NewGauge("go_memstats_heap_inuse_bytes", "Number of heap bytes that are in use"),
		gcCycles:   r.NewGauge("go_gc_cycles_total", "Total number of completed GC cycles"),
		gcPause:    r.NewGauge("go_gc_duration_seconds", "Total GC pause duration in seconds"),
		goInfo:     r.NewGauge("go_info", "Information about the Go environment", "version"),
	}
	if vec, err := rc.goInfo.WithLabels(runtime.Version()); err == nil {
		vec.Set(1)
	}
	return rc
}

// Collect refreshes every gauge. It reads MemStats, which briefly stops the
// world, so it runs on scrape rather than on a timer.
func (rc *RuntimeCollector) Collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	if rc.uptime != nil {
		_ = rc.uptime.Set(time.Since(rc.startTime).Seconds())
	}
	_ = rc.goroutines.Set(float64(runtime.NumGoroutine()))
	_ = rc.heapAlloc.Set(float64(mem.HeapAlloc))
	_ = rc.heapInuse.Set(float64(mem.HeapInuse))
	_ = rc.gcCycles.Set(float64(mem.NumGC))
	_ = rc.gcPause.Set(float64(mem.PauseTotalNs) / 1e9)
}
