package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const tcpDialTimeout = 5 * time.Second

type tcpTransport struct {
	logger *slog.Logger
}

// NewTCP returns the plain TCP transport.
func NewTCP(logger *slog.Logger) Transport {
	return &tcpTransport{logger: logger}
}

func (t *tcpTransport) Name() string { return "tcp" }

func (t *tcpTransport) Listen(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	t.logger.Debug("tcp listener created", "local_addr", ln.Addr())
	return &tcpListener{ln: ln}, nil
}

func (t *tcpTransport) Dial(ctx context.Context, addr string) (Stream, error) {
	d := net.Dialer{Timeout: tcpDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

type tcpListener struct {
	ln net.Listener
}

// Accept waits for the next connection or for ctx to end. Cancelling ctx
// closes the listener.
func (l *tcpListener) Accept(ctx context.Context) (Stream, error) {
	type res struct {
		conn net.Conn
		err  error
	}
	ch := make(chan res, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- res{conn: c, err: err}
	}()
	select {
	case <-ctx.Done():
		_ = l.ln.Close()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	}
}

func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

func (l *tcpListener) Close() error { return l.ln.Close() }
