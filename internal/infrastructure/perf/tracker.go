// Package perf measures the resource footprint of one sync job run:
// wall time, external call counts and durations, heap growth and process
// CPU usage.
package perf

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	domainsync "github.com/truthsource/backend/internal/domain/sync"
)

// CallKind classifies a tracked call
type CallKind string

const (
	// CallAPI is a call to an external platform
	CallAPI CallKind = "api"
	// CallStorage is a call to the persistence layer
	CallStorage CallKind = "storage"
)

// Tracker accumulates measurements for one job run. Construct with Start
// just before the run and call Finish exactly once when it ends. Recording
// methods are safe for concurrent use.
type Tracker struct {
	startWall time.Time
	startHeap uint64
	startCPU  float64
	proc      *process.Process

	mu              sync.Mutex
	apiCalls        int
	apiDuration     time.Duration
	storageCalls    int
	storageDuration time.Duration
	bytesSent       int64
	bytesReceived   int64
}

// Start begins tracking. CPU sampling is best-effort; when process stats
// are unavailable the finished metrics report zero CPU.
func Start() *Tracker {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	t := &Tracker{
		startWall: time.Now(),
		startHeap: ms.HeapInuse,
		startCPU:  -1,
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if times, err := proc.Times(); err == nil {
			t.proc = proc
			t.startCPU = times.User + times.System
		}
	}

	return t
}

// RecordAPICall records one external platform call
func (t *Tracker) RecordAPICall(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apiCalls++
	t.apiDuration += d
}

// RecordStorageCall records one persistence call
func (t *Tracker) RecordStorageCall(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storageCalls++
	t.storageDuration += d
}

// RecordBytes adds payload byte counts for traffic to external platforms
func (t *Tracker) RecordBytes(sent, received int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytesSent += sent
	t.bytesReceived += received
}

// Track times fn and records it under the given kind. The measurement is
// taken whether or not fn errors; the error is returned unchanged.
func (t *Tracker) Track(kind CallKind, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	switch kind {
	case CallStorage:
		t.RecordStorageCall(elapsed)
	default:
		t.RecordAPICall(elapsed)
	}
	return err
}

// Finish closes the measurement window and returns the metrics.
// Heap shrinkage during the run reports a zero delta, and CPU percent is
// capped at 100 so multi-core bursts don't produce nonsense ratios.
func (t *Tracker) Finish() *domainsync.PerformanceMetrics {
	wall := time.Since(t.startWall)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	var memDelta uint64
	if ms.HeapInuse > t.startHeap {
		memDelta = ms.HeapInuse - t.startHeap
	}

	var cpuPercent float64
	if t.proc != nil && t.startCPU >= 0 && wall > 0 {
		if times, err := t.proc.Times(); err == nil {
			used := times.User + times.System - t.startCPU
			if used > 0 {
				cpuPercent = used / wall.Seconds() * 100
				if cpuPercent > 100 {
					cpuPercent = 100
				}
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return &domainsync.PerformanceMetrics{
		WallTime:            wall,
		APICallCount:        t.apiCalls,
		APICallDuration:     t.apiDuration,
		StorageCallCount:    t.storageCalls,
		StorageCallDuration: t.storageDuration,
		MemoryDeltaBytes:    memDelta,
		CPUPercent:          cpuPercent,
		BytesSent:           t.bytesSent,
		BytesReceived:       t.bytesReceived,
	}
}
