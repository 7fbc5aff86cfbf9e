// Package stats tracks dispatch outcomes and process statistics for Critic.
package stats

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

// Outcome is one finished dispatch.
type Outcome struct {
	Kind     string // critique, palette, recipes
	Source   string // on-device, cloud; empty on failure
	FellBack bool   // a local attempt failed before the cloud call
	Duration time.Duration
	Err      error
}

// Collector collects and tracks dispatch statistics.
type Collector struct {
	mu sync.Mutex

	startTime time.Time
	kinds     map[string]*KindStats
}

// KindStats aggregates outcomes for one request kind.
type KindStats struct {
	Requests      int64   `json:"requests"`
	OnDevice      int64   `json:"on_device"`
	Cloud         int64   `json:"cloud"`
	Fallbacks     int64   `json:"fallbacks"`
	Errors        int64   `json:"errors"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	totalDuration time.Duration
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		kinds:     make(map[string]*KindStats),
	}
}

// Stats represents dispatch and system statistics at a point in time.
type Stats struct {
	// System resources
	MemoryStats MemoryStats `json:"memory"`
	Goroutines  int         `json:"goroutines"`
	Uptime      string      `json:"uptime"`

	// Dispatch metrics
	RequestCount  int64                `json:"request_count"`
	OnDeviceCount int64                `json:"on_device_count"`
	CloudCount    int64                `json:"cloud_count"`
	FallbackCount int64                `json:"fallback_count"`
	ErrorCount    int64                `json:"error_count"`
	LocalRate     float64              `json:"local_rate"` // Percentage served on-device
	AvgLatencyMs  float64              `json:"avg_latency_ms"`
	Kinds         map[string]KindStats `json:"kinds"`
}

// MemoryStats represents memory usage statistics.
type MemoryStats struct {
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	HeapInuseMB  float64 `json:"heap_inuse_mb"`
	StackInuseMB float64 `json:"stack_inuse_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// Record records a finished dispatch.
func (c *Collector) Record(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k, ok := c.kinds[o.Kind]
	if !ok {
		k = &KindStats{}
		c.kinds[o.Kind] = k
	}

	k.Requests++
	k.totalDuration += o.Duration
	if o.FellBack {
		k.Fallbacks++
	}
	switch {
	case o.Err != nil:
		k.Errors++
	case o.Source == "on-device":
		k.OnDevice++
	case o.Source == "cloud":
		k.Cloud++
	}
}

// Collect returns current statistics.
func (c *Collector) Collect() *Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.mu.Lock()
	defer c.mu.Unlock()

	out := &Stats{
		MemoryStats: MemoryStats{
			HeapAllocMB:  bytesToMB(int64(m.HeapAlloc)),
			HeapInuseMB:  bytesToMB(int64(m.HeapInuse)),
			StackInuseMB: bytesToMB(int64(m.StackInuse)),
			NumGC:        m.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Kinds:      make(map[string]KindStats, len(c.kinds)),
	}

	var total time.Duration
	for name, k := range c.kinds {
		snap := *k
		snap.AvgLatencyMs = avgMs(k.totalDuration, k.Requests)
		out.Kinds[name] = snap

		out.RequestCount += k.Requests
		out.OnDeviceCount += k.OnDevice
		out.CloudCount += k.Cloud
		out.FallbackCount += k.Fallbacks
		out.ErrorCount += k.Errors
		total += k.totalDuration
	}

	out.AvgLatencyMs = avgMs(total, out.RequestCount)
	if served := out.OnDeviceCount + out.CloudCount; served > 0 {
		out.LocalRate = float64(out.OnDeviceCount) / float64(served) * 100
	}
	return out
}

// KindNames returns the recorded kinds in sorted order.
func (s *Stats) KindNames() []string {
	names := make([]string, 0, len(s.Kinds))
	for name := range s.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartTime returns when the collector started.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

func avgMs(total time.Duration, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(n)
}

// bytesToMB converts bytes to megabytes.
func bytesToMB(b int64) float64 {
	return float64(b) / 1024 / 1024
}
