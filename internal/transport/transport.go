package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/sheerbytes/chunkshare/internal/config"
)

// Stream is one bidirectional byte stream between a receiver and the sender.
// Every protocol session runs over exactly one Stream.
type Stream interface {
	io.Reader
	io.Writer
	// Close tears down the stream and its underlying connection. Blocked
	// Read and Write calls return an error.
	Close() error
	RemoteAddr() net.Addr
}

// Listener accepts incoming streams.
type Listener interface {
	Accept(ctx context.Context) (Stream, error)
	Addr() net.Addr
	Close() error
}

// Dialer opens streams to a listening sender.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Stream, error)
}

// Transport can both listen and dial.
type Transport interface {
	Dialer
	Listen(ctx context.Context, addr string) (Listener, error)
	Name() string
}

// Options tune transports that have knobs.
type Options struct {
	// ChunkSize sizes QUIC flow-control windows so a full chunk frame fits.
	ChunkSize uint64
	Logger    *slog.Logger
}

// New returns the transport registered under name.
func New(name string, opts Options) (Transport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch name {
	case config.TransportTCP, "":
		return NewTCP(logger), nil
	case config.TransportQUIC:
		return NewQUIC(opts.ChunkSize, logger), nil
	case config.TransportWS:
		return NewWS(logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// CloseOnDone closes c when ctx is cancelled, unblocking any pending I/O.
// The returned stop function releases the watcher; it reports whether the
// context fired first.
func CloseOnDone(ctx context.Context, c io.Closer) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
}
