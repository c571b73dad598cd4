package progress

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of a Meter.
type Stats struct {
	BytesDone  int64
	Total      int64
	ChunksDone uint64
	ChunkTotal uint64
	RateBps    float64 // smoothed
	AvgBps     float64 // since Start
	ETA        time.Duration
	Percent    float64
	Elapsed    time.Duration
}

// Meter tracks chunk and byte progress and computes an EWMA rate.
type Meter struct {
	mu         sync.Mutex
	total      int64
	done       int64
	chunkTotal uint64
	chunks     uint64
	startedAt  time.Time
	lastAt     time.Time
	lastDone   int64
	rateBps    float64
	alpha      float64
	now        func() time.Time
}

// NewMeter returns a meter with a default smoothing factor.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Start resets the meter for a transfer of totalBytes in totalChunks chunks.
func (m *Meter) Start(totalBytes int64, totalChunks uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = totalBytes
	m.chunkTotal = totalChunks
	m.done = 0
	m.chunks = 0
	m.startedAt = m.now()
	m.lastAt = m.startedAt
	m.lastDone = 0
	m.rateBps = 0
}

// Add records one completed chunk of n bytes.
func (m *Meter) Add(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks++
	if n <= 0 {
		return
	}
	now := m.now()
	m.done += int64(n)
	deltaTime := now.Sub(m.lastAt).Seconds()
	if deltaTime <= 0 {
		return
	}
	inst := float64(m.done-m.lastDone) / deltaTime
	if m.rateBps == 0 {
		m.rateBps = inst
	} else {
		m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
	}
	m.lastAt = now
	m.lastDone = m.done
}

// Snapshot returns the current stats.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		BytesDone:  m.done,
		Total:      m.total,
		ChunksDone: m.chunks,
		ChunkTotal: m.chunkTotal,
		RateBps:    m.rateBps,
	}
	if !m.startedAt.IsZero() {
		stats.Elapsed = m.now().Sub(m.startedAt)
	}
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		stats.AvgBps = float64(m.done) / secs
	}
	if m.total > 0 {
		stats.Percent = float64(m.done) / float64(m.total) * 100
	}
	if m.rateBps > 0 && m.total > m.done {
		remaining := float64(m.total - m.done)
		stats.ETA = time.Duration(remaining / m.rateBps * float64(time.Second))
	}
	return stats
}
