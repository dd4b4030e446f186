package stress

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/oakstress/internal/monitoring"
)

// StreamSnapshot is one stream's rates over the last logging interval.
type StreamSnapshot struct {
	Stream       string
	FramesPerSec float64
	MBPerSec     float64
	TotalFrames  int64
	Timestamp    time.Time
}

type streamCounter struct {
	frames      int64
	bytes       int64
	totalFrames int64
	totalBytes  int64
}

// RunStats tracks per-stream frame throughput with thread-safe
// operations. Interval counters reset on every GetAndReset; totals
// accumulate for the run summary.
type RunStats struct {
	mu        sync.Mutex
	streams   map[string]*streamCounter
	lastReset time.Time
	startTime time.Time
	latest    []StreamSnapshot
}

// NewRunStats creates a new RunStats instance.
func NewRunStats() *RunStats {
	now := time.Now()
	return &RunStats{
		streams:   make(map[string]*streamCounter),
		lastReset: now,
		startTime: now,
	}
}

// AddFrame counts one received frame on a stream.
func (rs *RunStats) AddFrame(stream string, bytes int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	c := rs.streams[stream]
	if c == nil {
		c = &streamCounter{}
		rs.streams[stream] = c
	}
	c.frames++
	c.bytes += int64(bytes)
	c.totalFrames++
	c.totalBytes += int64(bytes)
}

// GetAndReset returns per-stream rates since the last reset, sorted by
// stream name, and resets the interval counters.
func (rs *RunStats) GetAndReset() []StreamSnapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := time.Now()
	secs := now.Sub(rs.lastReset).Seconds()
	if secs <= 0 {
		secs = 1e-9
	}

	snapshots := make([]StreamSnapshot, 0, len(rs.streams))
	for name, c := range rs.streams {
		snapshots = append(snapshots, StreamSnapshot{
			Stream:       name,
			FramesPerSec: float64(c.frames) / secs,
			MBPerSec:     float64(c.bytes) / secs / (1024 * 1024),
			TotalFrames:  c.totalFrames,
			Timestamp:    now,
		})
		c.frames = 0
		c.bytes = 0
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Stream < snapshots[j].Stream })

	rs.lastReset = now
	rs.latest = snapshots
	return snapshots
}

// LogStats logs one line per active stream and stores the snapshot for
// the web interface.
func (rs *RunStats) LogStats() []StreamSnapshot {
	snapshots := rs.GetAndReset()
	for _, s := range snapshots {
		if s.FramesPerSec == 0 && s.TotalFrames == 0 {
			continue
		}
		monitoring.Logf("Stream %s: %.1f frames/sec, %.2f MB/sec, %s total",
			s.Stream, s.FramesPerSec, s.MBPerSec, FormatWithCommas(s.TotalFrames))
	}
	return snapshots
}

// GetLatestSnapshot returns the most recent interval snapshot for the
// web interface.
func (rs *RunStats) GetLatestSnapshot() []StreamSnapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]StreamSnapshot, len(rs.latest))
	copy(out, rs.latest)
	return out
}

// Totals returns cumulative frame and byte counts per stream.
func (rs *RunStats) Totals() map[string]struct{ Frames, Bytes int64 } {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]struct{ Frames, Bytes int64 }, len(rs.streams))
	for name, c := range rs.streams {
		out[name] = struct{ Frames, Bytes int64 }{c.totalFrames, c.totalBytes}
	}
	return out
}

// GetUptime returns the time since the stats were created.
func (rs *RunStats) GetUptime() time.Duration {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return time.Since(rs.startTime)
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
