package termio

import (
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// SyncWriter serialises writes so log records and progress redraws sharing
// one terminal never interleave mid-line.
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w.
func NewSyncWriter(w io.Writer) *SyncWriter {
	return &SyncWriter{w: w}
}

func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Unwrap returns the underlying writer.
func (s *SyncWriter) Unwrap() io.Writer {
	return s.w
}

var (
	stdout = sync.OnceValue(func() *SyncWriter { return NewSyncWriter(os.Stdout) })
	stderr = sync.OnceValue(func() *SyncWriter { return NewSyncWriter(os.Stderr) })
)

// Stdout returns the process-wide synchronised stdout.
func Stdout() *SyncWriter { return stdout() }

// Stderr returns the process-wide synchronised stderr.
func Stderr() *SyncWriter { return stderr() }

// Underlying strips any wrappers from w.
func Underlying(w io.Writer) io.Writer {
	for {
		u, ok := w.(interface{ Unwrap() io.Writer })
		if !ok {
			return w
		}
		w = u.Unwrap()
	}
}

// IsTerminal reports whether w, or the writer it wraps, is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := Underlying(w).(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
