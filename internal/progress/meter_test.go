package progress

import (
	"testing"
	"time"
)

func TestMeterRateAndETA(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start(2000, 2)

	now = now.Add(1 * time.Second)
	m.Add(1000)

	stats := m.Snapshot()
	if stats.BytesDone != 1000 || stats.ChunksDone != 1 {
		t.Fatalf("expected 1000 bytes in 1 chunk, got %d in %d", stats.BytesDone, stats.ChunksDone)
	}
	if stats.RateBps < 900 || stats.RateBps > 1100 {
		t.Fatalf("expected rate around 1000 B/s, got %.2f", stats.RateBps)
	}
	if stats.ETA < 900*time.Millisecond || stats.ETA > 1100*time.Millisecond {
		t.Fatalf("expected ETA around 1s, got %s", stats.ETA)
	}
	if stats.Percent != 50 {
		t.Fatalf("expected 50%%, got %.1f", stats.Percent)
	}
}

func TestMeterEWMASmoothing(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start(10000, 10)

	now = now.Add(1 * time.Second)
	m.Add(1000)

	now = now.Add(1 * time.Second)
	m.Add(3000)

	stats := m.Snapshot()
	if stats.RateBps < 1300 || stats.RateBps > 1500 {
		t.Fatalf("expected smoothed rate around 1400 B/s, got %.2f", stats.RateBps)
	}
	if stats.AvgBps != 2000 {
		t.Fatalf("expected average 2000 B/s, got %.2f", stats.AvgBps)
	}
	if stats.Elapsed != 2*time.Second {
		t.Fatalf("expected elapsed 2s, got %s", stats.Elapsed)
	}
}

func TestMeterNoRateNoETA(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(func() time.Time { return now })
	m.Start(1000, 1)

	stats := m.Snapshot()
	if stats.RateBps != 0 {
		t.Fatalf("expected rate 0, got %.2f", stats.RateBps)
	}
	if stats.ETA != 0 {
		t.Fatalf("expected ETA 0, got %s", stats.ETA)
	}
}

func TestMeterEmptyChunk(t *testing.T) {
	m := NewMeter()
	m.Start(0, 1)
	m.Add(0)
	if s := m.Snapshot(); s.ChunksDone != 1 || s.BytesDone != 0 {
		t.Fatalf("expected one empty chunk, got %d chunks %d bytes", s.ChunksDone, s.BytesDone)
	}
}
