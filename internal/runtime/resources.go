package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// ResourceUsage is a coarse view of the process reported by the status endpoint.
type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

const (
	sampleCPU        = "/sched/cpu:seconds"
	sampleHeap       = "/memory/classes/heap/objects:bytes"
	sampleGoroutines = "/sched/goroutines:goroutines"
)

// resourceTracker reads runtime/metrics samples. CPU is reported as the share
// of all cores used since the previous snapshot.
type resourceTracker struct {
	mu      sync.Mutex
	samples []metrics.Sample
	numCPU  float64

	prevCPU float64
	prevAt  time.Time
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{numCPU: float64(runtime.NumCPU())}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: sampleCPU}, {Name: sampleHeap}, {Name: sampleGoroutines}}
	}
	metrics.Read(r.samples)
	now := time.Now()

	var usage ResourceUsage
	for _, s := range r.samples {
		switch {
		case s.Name == sampleHeap && s.Value.Kind() == metrics.KindUint64:
			usage.MemoryBytes = s.Value.Uint64()
		case s.Name == sampleGoroutines && s.Value.Kind() == metrics.KindUint64:
			usage.Goroutines = int(s.Value.Uint64())
		case s.Name == sampleCPU && s.Value.Kind() == metrics.KindFloat64:
			cpu := s.Value.Float64()
			if !r.prevAt.IsZero() && r.numCPU > 0 {
				if wall := now.Sub(r.prevAt).Seconds(); wall > 0 {
					usage.CPUPercent = (cpu - r.prevCPU) / wall / r.numCPU * 100
				}
			}
			r.prevCPU = cpu
		}
	}
	r.prevAt = now

	if usage.Goroutines == 0 {
		usage.Goroutines = runtime.NumGoroutine()
	}
	return usage
}
