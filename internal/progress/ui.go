package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sheerbytes/chunkshare/internal/termio"
)

// SenderView is one frame of the sender dashboard.
type SenderView struct {
	Address        string
	Transport      string
	FileName       string
	FileSize       uint64
	ChunkSize      uint64
	Chunks         uint64
	ActiveSessions int64
	TotalSessions  uint64
	ChunksServed   uint64
	BytesServed    uint64
	RateBps        float64
	Uptime         time.Duration
}

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

func colorize(s string, color string, enabled bool) string {
	if !enabled || color == "" {
		return s
	}
	return color + s + colorReset
}

// RenderSender shows the sender dashboard on w until ctx ends or the
// returned stop function is called. On a terminal it runs a full-screen
// view and calls interrupt on ctrl+c; otherwise it logs a status line every
// interval.
func RenderSender(ctx context.Context, w io.Writer, logger *slog.Logger, interval time.Duration, view func() SenderView, interrupt func()) func() {
	view = withRate(view)
	if termio.IsTerminal(w) {
		return renderSenderTea(ctx, termio.Underlying(w), view, interrupt)
	}
	return renderSenderLog(ctx, logger, interval, view)
}

func renderSenderLog(ctx context.Context, logger *slog.Logger, interval time.Duration, view func() SenderView) func() {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})
	done := make(chan struct{})

	logOnce := func() {
		v := view()
		logger.Info("sender status",
			"active_sessions", v.ActiveSessions,
			"sessions", v.TotalSessions,
			"chunks_served", v.ChunksServed,
			"sent", formatBytes(v.BytesServed),
			"rate", formatRate(v.RateBps))
	}

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				logOnce()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			logOnce()
		})
	}
}

// withRate fills in RateBps as an EWMA over successive BytesServed samples.
func withRate(view func() SenderView) func() SenderView {
	var (
		mu        sync.Mutex
		lastAt    time.Time
		lastBytes uint64
		rate      float64
	)
	return func() SenderView {
		v := view()
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if !lastAt.IsZero() {
			if dt := now.Sub(lastAt).Seconds(); dt > 0 {
				inst := float64(v.BytesServed-lastBytes) / dt
				rate = 0.2*inst + 0.8*rate
			}
		}
		lastAt, lastBytes = now, v.BytesServed
		v.RateBps = rate
		return v
	}
}

func renderSenderView(v SenderView, color bool) string {
	var b strings.Builder
	fmt.Fprintln(&b, colorize(fmt.Sprintf("hosting %s (%s, %d chunks of %s)",
		v.FileName, formatBytes(v.FileSize), v.Chunks, formatBytes(v.ChunkSize)), colorCyan, color))
	connect := "chunkshare receive " + v.Address
	if v.Transport != "" && v.Transport != "tcp" {
		connect += " --transport " + v.Transport
	}
	fmt.Fprintln(&b, colorize(connect, colorGreen, color))

	headers := []string{"active", "sessions", "chunks", "sent", "rate", "uptime"}
	widths := []int{6, 8, 10, 10, 10, 8}
	rows := [][]string{{
		fmt.Sprintf("%d", v.ActiveSessions),
		fmt.Sprintf("%d", v.TotalSessions),
		fmt.Sprintf("%d", v.ChunksServed),
		formatBytes(v.BytesServed),
		formatRate(v.RateBps),
		formatElapsed(v.Uptime),
	}}
	renderTable(&b, headers, rows, widths)
	return strings.TrimSuffix(b.String(), "\n")
}

func renderTable(w io.Writer, headers []string, rows [][]string, widths []int) int {
	lines := 0
	border := buildBorder(widths)
	fmt.Fprintln(w, border)
	lines++
	fmt.Fprintln(w, buildRow(headers, widths))
	lines++
	fmt.Fprintln(w, border)
	lines++
	for _, row := range rows {
		fmt.Fprintln(w, buildRow(row, widths))
		lines++
	}
	fmt.Fprintln(w, border)
	lines++
	return lines
}

func buildBorder(widths []int) string {
	var b strings.Builder
	b.WriteString("+")
	for _, width := range widths {
		b.WriteString(strings.Repeat("-", width+2))
		b.WriteString("+")
	}
	return b.String()
}

func buildRow(values []string, widths []int) string {
	var b strings.Builder
	b.WriteString("|")
	for i, width := range widths {
		cell := ""
		if i < len(values) {
			cell = values[i]
		}
		b.WriteString(" ")
		b.WriteString(padRight(cell, width))
		b.WriteString(" |")
	}
	return b.String()
}

func padRight(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func formatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	if bps >= g {
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	}
	if bps >= m {
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	}
	if bps >= k {
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

func formatBytes(n uint64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	switch {
	case n >= g:
		return fmt.Sprintf("%.2f GiB", float64(n)/float64(g))
	case n >= m:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(m))
	case n >= k:
		return fmt.Sprintf("%.1f KiB", float64(n)/float64(k))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
