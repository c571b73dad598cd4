package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ChunkBar reports receiver progress as a per-chunk progress bar and keeps
// a Meter for the final summary. It satisfies the receiver's observer
// interface.
type ChunkBar struct {
	w      io.Writer
	hidden bool
	meter  *Meter

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewChunkBar returns a bar drawing to w. A hidden bar only keeps stats.
func NewChunkBar(w io.Writer, hidden bool) *ChunkBar {
	return &ChunkBar{w: w, hidden: hidden, meter: NewMeter()}
}

func (c *ChunkBar) TransferStarted(name string, chunks, bytes uint64) {
	c.meter.Start(int64(bytes), chunks)
	if c.hidden {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bar = progressbar.NewOptions64(int64(chunks),
		progressbar.OptionSetWriter(c.w),
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.w)
		}),
	)
}

func (c *ChunkBar) ChunkWritten(index uint64, n int) {
	c.meter.Add(n)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		_ = c.bar.Add(1)
	}
}

func (c *ChunkBar) TransferFinished(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar == nil {
		return
	}
	if err == nil {
		_ = c.bar.Finish()
	} else {
		_ = c.bar.Exit()
	}
}

// Stats returns the transfer stats so far.
func (c *ChunkBar) Stats() Stats {
	return c.meter.Snapshot()
}

// FormatSummary renders the one-line report printed after a download.
func FormatSummary(path string, s Stats) string {
	return fmt.Sprintf("received %s (%s in %d chunks) in %s, avg %s",
		path,
		formatBytes(uint64(max(s.BytesDone, 0))),
		s.ChunksDone,
		s.Elapsed.Round(time.Millisecond),
		formatRate(s.AvgBps))
}
